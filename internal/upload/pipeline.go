// Package upload sends multi-file batches to the media endpoint with a
// bounded number of requests in flight, and keeps batches created offline
// until they can be sent.
package upload

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wahabsharif/premierspaces-app/backend/internal/api"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/metrics"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	"github.com/wahabsharif/premierspaces-app/backend/internal/uuid"
)

// DefaultConcurrency is the number of uploads in flight.
const DefaultConcurrency = 3

// Uploader sends one segment.
type Uploader interface {
	UploadSegment(ctx context.Context, seg *models.UploadSegment, userName string, progress api.ProgressFunc) error
}

// SegmentStore persists segments queued while offline.
type SegmentStore interface {
	Create(ctx context.Context, seg *models.UploadSegment) (string, error)
	List(ctx context.Context) ([]*models.UploadSegment, error)
	Delete(ctx context.Context, key string) (int64, error)
}

// Batch is the metadata shared by every file of an upload.
type Batch struct {
	ID             string `json:"id"`
	MainCategory   string `json:"main_category"`
	CategoryLevel1 string `json:"category_level_1"`
	PropertyID     string `json:"property_id"`
	JobID          string `json:"job_id"`
	UserName       string `json:"user_name"`
	TotalSegments  int    `json:"total_segments"`
}

// File is one file of a batch.
type File struct {
	Name          string
	Type          string
	Content       []byte
	SegmentNumber int
}

// Pipeline uploads batches.
type Pipeline struct {
	uploader Uploader
	segments SegmentStore
	limit    int64
	clock    func() time.Time
	log      *logging.Logger
}

// NewPipeline creates a pipeline. segments may be nil when offline queuing
// is not needed.
func NewPipeline(uploader Uploader, segments SegmentStore, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pipeline{
		uploader: uploader,
		segments: segments,
		limit:    int64(concurrency),
		clock:    time.Now,
		log:      logging.Component("upload"),
	}
}

// prepare assigns a batch id when missing and numbers the files from 1.
func prepare(batch Batch, files []File) (Batch, []File) {
	if batch.ID == "" {
		batch.ID = uuid.NewBatchID()
	}
	batch.TotalSegments = len(files)
	out := make([]File, len(files))
	for i, f := range files {
		f.SegmentNumber = i + 1
		out[i] = f
	}
	return batch, out
}

func (p *Pipeline) segment(batch Batch, f File) *models.UploadSegment {
	return &models.UploadSegment{
		ID:             batch.ID,
		TotalSegments:  batch.TotalSegments,
		SegmentNumber:  f.SegmentNumber,
		MainCategory:   batch.MainCategory,
		CategoryLevel1: batch.CategoryLevel1,
		PropertyID:     batch.PropertyID,
		JobID:          batch.JobID,
		FileName:       f.Name,
		FileType:       f.Type,
		FileSize:       int64(len(f.Content)),
		UserName:       batch.UserName,
		Content:        f.Content,
		CreatedAt:      p.clock().UnixMilli(),
	}
}

// Start uploads files in order, at most the configured number at a time,
// and returns immediately. watch, when given, is registered before the
// first upload starts.
func (p *Pipeline) Start(ctx context.Context, batch Batch, files []File, watch ...func(FileStatus)) *Run {
	batch, files = prepare(batch, files)
	run := newRun(batch, files)
	for _, w := range watch {
		run.Watch(w)
	}
	go p.drive(ctx, run, batch)
	return run
}

// Retry uploads again only the files of run that failed, keeping the batch
// id, total and segment numbers.
func (p *Pipeline) Retry(ctx context.Context, run *Run, watch ...func(FileStatus)) *Run {
	retry := newRun(run.Batch, run.failedFiles())
	for _, w := range watch {
		retry.Watch(w)
	}
	go p.drive(ctx, retry, run.Batch)
	return retry
}

// drive issues one request per file. When the window is full it waits for
// the first in-flight request to finish before starting the next.
func (p *Pipeline) drive(ctx context.Context, run *Run, batch Batch) {
	sem := semaphore.NewWeighted(p.limit)
	for i, f := range run.files {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(run.files); j++ {
				run.finish(j, apperrors.Wrap(apperrors.ErrUploadFailed, "upload cancelled", err))
			}
			return
		}
		go func(i int, f File) {
			defer sem.Release(1)
			p.uploadOne(ctx, run, i, p.segment(batch, f))
		}(i, f)
	}
}

func (p *Pipeline) uploadOne(ctx context.Context, run *Run, i int, seg *models.UploadSegment) {
	err := p.uploader.UploadSegment(ctx, seg, seg.UserName, func(pct int) {
		run.progress(i, pct)
	})
	if err != nil {
		metrics.UploadFiles.WithLabelValues("failed").Inc()
		p.log.Error("file upload failed", err, map[string]interface{}{
			"batch_id": seg.ID, "segment": seg.SegmentNumber, "file_name": seg.FileName,
		})
		run.finish(i, err)
		return
	}
	metrics.UploadFiles.WithLabelValues("complete").Inc()
	run.finish(i, nil)
}

// Enqueue stores a batch for a later SyncPending. It returns the batch
// with its id and total filled in.
func (p *Pipeline) Enqueue(ctx context.Context, batch Batch, files []File) (Batch, error) {
	if p.segments == nil {
		return batch, apperrors.New(apperrors.ErrInternal, "offline upload storage not configured")
	}
	if len(files) == 0 {
		return batch, apperrors.New(apperrors.ErrValidation, "no files to upload")
	}
	batch, files = prepare(batch, files)
	for _, f := range files {
		if _, err := p.segments.Create(ctx, p.segment(batch, f)); err != nil {
			return batch, err
		}
	}
	p.log.Info("upload queued for later", map[string]interface{}{
		"batch_id": batch.ID, "files": len(files),
	})
	return batch, nil
}

// SyncPending uploads every stored segment and deletes those that were
// accepted. Failed segments stay stored for the next call.
func (p *Pipeline) SyncPending(ctx context.Context) (synced, failed int, err error) {
	if p.segments == nil {
		return 0, 0, nil
	}
	segs, err := p.segments.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(segs) == 0 {
		return 0, 0, nil
	}

	batches := make(map[string]*batchSegments)
	var order []string
	for _, s := range segs {
		b, ok := batches[s.ID]
		if !ok {
			b = &batchSegments{batch: Batch{
				ID:             s.ID,
				MainCategory:   s.MainCategory,
				CategoryLevel1: s.CategoryLevel1,
				PropertyID:     s.PropertyID,
				JobID:          s.JobID,
				UserName:       s.UserName,
				TotalSegments:  s.TotalSegments,
			}}
			batches[s.ID] = b
			order = append(order, s.ID)
		}
		b.files = append(b.files, File{
			Name:          s.FileName,
			Type:          s.FileType,
			Content:       s.Content,
			SegmentNumber: s.SegmentNumber,
		})
	}

	for _, id := range order {
		b := batches[id]
		run := newRun(b.batch, b.files)
		p.drive(ctx, run, b.batch)
		if err := run.Wait(ctx); err != nil {
			return synced, failed, err
		}

		for _, st := range run.Statuses() {
			if st.State != StateComplete {
				failed++
				continue
			}
			if _, err := p.segments.Delete(ctx, models.SegmentKey(id, st.SegmentNumber)); err != nil {
				return synced, failed, err
			}
			synced++
		}
	}
	p.log.Info("pending uploads processed", map[string]interface{}{"synced": synced, "failed": failed})
	return synced, failed, nil
}

type batchSegments struct {
	batch Batch
	files []File
}
