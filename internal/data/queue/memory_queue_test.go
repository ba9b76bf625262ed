package queue

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestMemory_EnqueueDequeue(t *testing.T) {
	q := NewMemory[string](2)
	t.Cleanup(func() { _ = q.Close() })

	for _, item := range []string{"run-a", "run-b"} {
		if got := q.Enqueue(item); got != EnqueueAccepted {
			t.Fatalf("expected enqueue accepted, got %s", got)
		}
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}

	batch, err := q.DequeueBatch(context.Background(), 5, time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if len(batch) != 2 || batch[0] != "run-a" || batch[1] != "run-b" {
		t.Fatalf("unexpected batch: %#v", batch)
	}
}

func TestMemory_FullQueueDrops(t *testing.T) {
	q := NewMemory[int](1)
	t.Cleanup(func() { _ = q.Close() })

	if got := q.Enqueue(1); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if got := q.Enqueue(2); got != EnqueueDropped {
		t.Fatalf("expected enqueue dropped, got %s", got)
	}
}

func TestMemory_EmptyQueueTimesOut(t *testing.T) {
	q := NewMemory[int](1)
	t.Cleanup(func() { _ = q.Close() })

	batch, err := q.DequeueBatch(context.Background(), 1, 5*time.Millisecond)
	if err != nil || len(batch) != 0 {
		t.Fatalf("expected empty batch without error, got %v, %v", batch, err)
	}
}

func TestMemory_CancelledContext(t *testing.T) {
	q := NewMemory[int](1)
	t.Cleanup(func() { _ = q.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.DequeueBatch(ctx, 1, time.Second); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemory_CloseReturnsEOFWhenDrained(t *testing.T) {
	q := NewMemory[int](1)
	if got := q.Enqueue(7); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := q.Enqueue(8); got != EnqueueDropped {
		t.Fatalf("expected enqueue on closed queue to drop, got %s", got)
	}

	batch, err := q.DequeueBatch(context.Background(), 2, 0)
	if len(batch) != 1 || batch[0] != 7 {
		t.Fatalf("expected final item after close, got %#v", batch)
	}
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	batch, err = q.DequeueBatch(context.Background(), 1, 0)
	if err != io.EOF || len(batch) != 0 {
		t.Fatalf("expected io.EOF on empty closed queue, got %v, %d items", err, len(batch))
	}
}
