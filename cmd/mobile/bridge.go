// Package main is the shared library loaded by the mobile app. Every call
// takes and returns JSON; ffi.go exposes these functions over cgo.
package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/wahabsharif/premierspaces-app/backend/internal/app"
	"github.com/wahabsharif/premierspaces-app/backend/internal/config"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	"github.com/wahabsharif/premierspaces-app/backend/internal/upload"
)

var (
	coreMu sync.Mutex
	core   *app.App

	errNotInitialized = apperrors.New(apperrors.ErrInternal, "core not initialized")
)

// initRequest is the argument of Init.
type initRequest struct {
	ConfigFile string `json:"config_file"`
	DataDir    string `json:"data_dir"`
	BaseURL    string `json:"base_url"`
	Online     bool   `json:"online"`
}

func current() (*app.App, error) {
	coreMu.Lock()
	defer coreMu.Unlock()
	if core == nil {
		return nil, errNotInitialized
	}
	return core, nil
}

func encode(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "failed to serialize", err)
	}
	return string(data), nil
}

func decodeArg(arg string, v interface{}) error {
	if err := json.Unmarshal([]byte(arg), v); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid argument", err)
	}
	return nil
}

// initCore builds and starts the core. Calling it again while running is a
// no-op.
func initCore(arg string) error {
	var req initRequest
	if arg != "" {
		if err := decodeArg(arg, &req); err != nil {
			return err
		}
	}

	coreMu.Lock()
	defer coreMu.Unlock()
	if core != nil {
		return nil
	}

	loader, err := config.Load(req.ConfigFile)
	if err != nil {
		return err
	}
	cfg := *loader.Config()
	if req.DataDir != "" {
		cfg.DataDir = req.DataDir
	}
	if req.BaseURL != "" {
		cfg.API.BaseURL = req.BaseURL
	}

	a, err := app.New(&cfg, app.Options{Online: req.Online})
	if err != nil {
		return err
	}
	a.Start(context.Background())
	core = a
	return nil
}

func closeCore() error {
	coreMu.Lock()
	defer coreMu.Unlock()
	if core == nil {
		return nil
	}
	err := core.Close()
	core = nil
	return err
}

func setOnline(online bool) error {
	a, err := current()
	if err != nil {
		return err
	}
	a.Monitor.SetOnline(online)
	return nil
}

func login(arg string) error {
	a, err := current()
	if err != nil {
		return err
	}
	var sess models.Session
	if err := decodeArg(arg, &sess); err != nil {
		return err
	}
	return a.Session.Login(sess)
}

func logout() error {
	a, err := current()
	if err != nil {
		return err
	}
	return a.Session.Logout()
}

func createJob(arg string) (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	var job models.Job
	if err := decodeArg(arg, &job); err != nil {
		return "", err
	}
	res, err := a.JobService.Create(context.Background(), &job)
	if err != nil {
		return "", err
	}
	return encode(res)
}

func createCost(arg string) (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	var cost models.Cost
	if err := decodeArg(arg, &cost); err != nil {
		return "", err
	}
	res, err := a.CostService.Create(context.Background(), &cost)
	if err != nil {
		return "", err
	}
	return encode(res)
}

func syncNow() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	res, err := a.Scheduler.SyncNow(context.Background())
	if err != nil {
		return "", err
	}
	return encode(res)
}

func pendingCount() (int, error) {
	a, err := current()
	if err != nil {
		return 0, err
	}
	return a.Sync.PendingCount()
}

func syncState() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	return encode(a.Sync.State())
}

// uploadRequest is the argument of UploadFiles. Paths are read from the
// app sandbox.
type uploadRequest struct {
	Batch upload.Batch `json:"batch"`
	Files []struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Path string `json:"path"`
	} `json:"files"`
}

type uploadResponse struct {
	Queued   bool                `json:"queued"`
	Batch    upload.Batch        `json:"batch"`
	Statuses []upload.FileStatus `json:"statuses,omitempty"`
	Success  int                 `json:"success"`
	Failed   int                 `json:"failed"`
}

// uploadFiles uploads a batch and waits for it when online. Offline the
// files are stored and sent by the next sync.
func uploadFiles(arg string) (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	var req uploadRequest
	if err := decodeArg(arg, &req); err != nil {
		return "", err
	}

	files := make([]upload.File, 0, len(req.Files))
	for _, f := range req.Files {
		content, err := os.ReadFile(f.Path)
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrValidation, "failed to read "+f.Path, err)
		}
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		files = append(files, upload.File{Name: name, Type: f.Type, Content: content})
	}

	ctx := context.Background()
	if !a.Monitor.IsOnline(ctx) {
		batch, err := a.Uploads.Enqueue(ctx, req.Batch, files)
		if err != nil {
			return "", err
		}
		return encode(uploadResponse{Queued: true, Batch: batch})
	}

	run := a.Uploads.Start(ctx, req.Batch, files)
	if err := run.Wait(ctx); err != nil {
		return "", err
	}
	success, failed, _ := run.Counts()
	return encode(uploadResponse{
		Batch:    run.Batch,
		Statuses: run.Statuses(),
		Success:  success,
		Failed:   failed,
	})
}

func main() {}
