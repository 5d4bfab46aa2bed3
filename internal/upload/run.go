package upload

import (
	"context"
	"sync"
)

// File states after the upload finished.
const (
	StateComplete = "Complete"
	StateFailed   = "Failed"
)

// FileStatus is the progress of one file. State is empty while the file is
// pending or uploading.
type FileStatus struct {
	SegmentNumber int    `json:"segment_number"`
	FileName      string `json:"file_name"`
	Percent       int    `json:"percent"`
	State         string `json:"state,omitempty"`
	Err           error  `json:"-"`
}

// Done reports whether the file reached a terminal state.
func (s FileStatus) Done() bool {
	return s.State == StateComplete || s.State == StateFailed
}

// Run tracks one batch upload. Files finish in any order; Done closes once
// every file is complete or failed.
type Run struct {
	Batch Batch

	files []File

	mu       sync.Mutex
	statuses []FileStatus
	success  int
	failed   int
	done     chan struct{}
	watchers []func(FileStatus)
}

func newRun(batch Batch, files []File) *Run {
	r := &Run{
		Batch:    batch,
		files:    files,
		statuses: make([]FileStatus, len(files)),
		done:     make(chan struct{}),
	}
	for i, f := range files {
		r.statuses[i] = FileStatus{SegmentNumber: f.SegmentNumber, FileName: f.Name}
	}
	if len(files) == 0 {
		close(r.done)
	}
	return r
}

// Watch registers fn for every status change. Register before Start
// returns to see all of them; fn must not block.
func (r *Run) Watch(fn func(FileStatus)) {
	r.mu.Lock()
	r.watchers = append(r.watchers, fn)
	r.mu.Unlock()
}

func (r *Run) update(i int, fn func(*FileStatus)) {
	r.mu.Lock()
	st := &r.statuses[i]
	wasDone := st.Done()
	fn(st)
	snapshot := *st
	if !wasDone && st.Done() {
		if st.State == StateComplete {
			r.success++
		} else {
			r.failed++
		}
		if r.success+r.failed == len(r.statuses) {
			close(r.done)
		}
	}
	watchers := append([]func(FileStatus){}, r.watchers...)
	r.mu.Unlock()

	for _, w := range watchers {
		w(snapshot)
	}
}

func (r *Run) progress(i, percent int) {
	r.update(i, func(st *FileStatus) {
		if !st.Done() && percent > st.Percent {
			st.Percent = percent
		}
	})
}

func (r *Run) finish(i int, err error) {
	r.update(i, func(st *FileStatus) {
		st.Err = err
		if err != nil {
			st.State = StateFailed
			return
		}
		st.Percent = 100
		st.State = StateComplete
	})
}

// Statuses returns a snapshot of every file.
func (r *Run) Statuses() []FileStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FileStatus(nil), r.statuses...)
}

// Counts returns the number of completed, failed and total files.
func (r *Run) Counts() (success, failed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.success, r.failed, len(r.statuses)
}

// Done is closed when success + failed equals the number of files.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run is done or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failedFiles returns the files that ended in StateFailed.
func (r *Run) failedFiles() []File {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []File
	for i, st := range r.statuses {
		if st.State == StateFailed {
			out = append(out, r.files[i])
		}
	}
	return out
}
