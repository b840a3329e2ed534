package store

import (
	"context"
	"log"
	"sync"

	"github.com/hourglass-app/hourglass/internal/models"
)

// AsyncWriter decouples the sampling loops from database latency. Writes are
// queued and drained by a single goroutine; a full queue or a failed insert
// logs and drops the record rather than blocking a caller. Durability here is
// best effort: the in-memory state machines keep accumulating either way.
type AsyncWriter struct {
	repo *Repository
	jobs chan writeJob
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

type writeJob struct {
	period   *models.ActivityPeriod
	activity *models.WindowActivity
}

const defaultQueueSize = 64

func NewAsyncWriter(repo *Repository, queueSize int) *AsyncWriter {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	w := &AsyncWriter{
		repo: repo,
		jobs: make(chan writeJob, queueSize),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for job := range w.jobs {
		switch {
		case job.period != nil:
			if err := w.repo.InsertPeriod(job.period); err != nil {
				log.Printf("Dropping activity period write: %v", err)
			}
		case job.activity != nil:
			if err := w.repo.InsertWindowActivity(job.activity); err != nil {
				log.Printf("Dropping window activity write: %v", err)
			}
		}
	}
}

// EnqueuePeriod queues a period for insertion. Never blocks.
func (w *AsyncWriter) EnqueuePeriod(period *models.ActivityPeriod) {
	w.enqueue(writeJob{period: period})
}

// EnqueueWindowActivity queues a window dwell record for insertion. Never blocks.
func (w *AsyncWriter) EnqueueWindowActivity(activity *models.WindowActivity) {
	w.enqueue(writeJob{activity: activity})
}

func (w *AsyncWriter) enqueue(job writeJob) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		log.Printf("Dropping write enqueued after writer close")
		return
	}
	select {
	case w.jobs <- job:
	default:
		log.Printf("Write queue full, dropping record")
	}
}

// Close stops accepting writes and drains the queue, bounded by ctx. On
// deadline the remaining queue is abandoned; a hung shutdown is worse than a
// lost write.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
