package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
*/
import "C"
import (
	"sync"
	"unsafe"
)

var (
	lastErr string
	lastMu  sync.RWMutex
)

func setLastError(err error) {
	lastMu.Lock()
	defer lastMu.Unlock()
	if err == nil {
		lastErr = ""
		return
	}
	lastErr = err.Error()
}

// status converts err into the C return convention: 0 on success, -1 with
// the message kept for GetLastError.
func status(err error) C.int {
	setLastError(err)
	if err != nil {
		return -1
	}
	return 0
}

// result converts a JSON result into a C string, or nil on error.
func result(s string, err error) *C.char {
	setLastError(err)
	if err != nil {
		return nil
	}
	return C.CString(s)
}

// Init opens the data directory and starts the core. config is a JSON
// object with config_file, data_dir, base_url and online.
//
//export Init
func Init(config *C.char) C.int {
	return status(initCore(C.GoString(config)))
}

// Cleanup stops the core.
//
//export Cleanup
func Cleanup() C.int {
	return status(closeCore())
}

// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
//
//export GetLastError
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return C.CString(lastErr)
}

// FreeString releases a string returned by this library.
//
//export FreeString
func FreeString(s *C.char) {
	C.free(unsafe.Pointer(s))
}

// SetOnline reports the platform network state.
//
//export SetOnline
func SetOnline(online C.int) C.int {
	return status(setOnline(online != 0))
}

//export Login
func Login(session *C.char) C.int {
	return status(login(C.GoString(session)))
}

//export Logout
func Logout() C.int {
	return status(logout())
}

// CreateJob posts or queues a job.
// Returns JSON string that must be freed by the caller.
//
//export CreateJob
func CreateJob(job *C.char) *C.char {
	return result(createJob(C.GoString(job)))
}

// Returns JSON string that must be freed by the caller.
//
//export CreateCost
func CreateCost(cost *C.char) *C.char {
	return result(createCost(C.GoString(cost)))
}

// SyncNow runs a manual sync pass and waits for it.
// Returns JSON string that must be freed by the caller.
//
//export SyncNow
func SyncNow() *C.char {
	return result(syncNow())
}

// Returns JSON string that must be freed by the caller.
//
//export SyncState
func SyncState() *C.char {
	return result(syncState())
}

// PendingCount returns the number of queued jobs, or -1 on error.
//
//export PendingCount
func PendingCount() C.int {
	n, err := pendingCount()
	setLastError(err)
	if err != nil {
		return -1
	}
	return C.int(n)
}

// UploadFiles uploads a batch of files, or stores it while offline.
// Returns JSON string that must be freed by the caller.
//
//export UploadFiles
func UploadFiles(request *C.char) *C.char {
	return result(uploadFiles(C.GoString(request)))
}
