package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pyscan/internal/data/queue"
)

var ErrWriterBusy = errors.New("history writer queue is full")

const (
	writerBatch = 16
	writerWait  = 500 * time.Millisecond
)

// Writer records snapshots on a background goroutine so that watch mode
// never waits on sqlite. Snapshots offered while the queue is full are
// rejected with ErrWriterBusy.
type Writer struct {
	store *Store
	q     *queue.Memory[Snapshot]
	done  chan struct{}
	start sync.Once
	stop  sync.Once
}

func NewWriter(store *Store, capacity int) *Writer {
	return &Writer{
		store: store,
		q:     queue.NewMemory[Snapshot](capacity),
		done:  make(chan struct{}),
	}
}

// Start launches the drain loop. Calling it more than once is a no-op.
func (w *Writer) Start() {
	w.start.Do(func() { go w.drain() })
}

// SaveSnapshot queues snap and returns its run id right away.
func (w *Writer) SaveSnapshot(_ context.Context, snap Snapshot) (string, error) {
	if snap.RunID == "" {
		snap.RunID = uuid.NewString()
	}
	if w.q.Enqueue(snap) == queue.EnqueueDropped {
		return "", ErrWriterBusy
	}
	return snap.RunID, nil
}

// Pending reports how many snapshots are waiting to be written.
func (w *Writer) Pending() int { return w.q.Len() }

// Close stops accepting snapshots and waits until the queued ones are
// written. The underlying store stays open.
func (w *Writer) Close() error {
	w.stop.Do(func() {
		_ = w.q.Close()
		w.Start()
		<-w.done
	})
	return nil
}

func (w *Writer) drain() {
	defer close(w.done)
	for {
		batch, err := w.q.DequeueBatch(context.Background(), writerBatch, writerWait)
		for _, snap := range batch {
			if _, serr := w.store.SaveSnapshot(context.Background(), snap); serr != nil {
				slog.Warn("failed to record run", "run_id", snap.RunID, "path", w.store.Path(), "error", serr)
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
	}
}
