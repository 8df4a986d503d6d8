package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// recordingHandler collects slog.Records for test assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
	block   chan struct{}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestAsyncHandler_DrainsOnClose(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 100, 2)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := inner.count(); got != 50 {
		t.Fatalf("expected 50 records, got %d", got)
	}
	if ah.DroppedCount() != 0 {
		t.Fatalf("expected no drops, got %d", ah.DroppedCount())
	}
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	inner := &recordingHandler{block: make(chan struct{})}
	ah := NewAsyncHandler(inner, 1, 1)

	// One record is held by the blocked worker, one fills the queue, the rest drop.
	for range 5 {
		_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
		time.Sleep(5 * time.Millisecond)
	}
	close(inner.block)
	ah.Close()

	if ah.DroppedCount() == 0 {
		t.Fatal("expected dropped records when the queue is full")
	}
	if got := inner.count() + int(ah.DroppedCount()); got != 5 {
		t.Fatalf("handled + dropped = %d, want 5", got)
	}
}

func TestAsyncHandler_CloseIdempotent(t *testing.T) {
	ah := NewAsyncHandler(&recordingHandler{}, 1, 1)
	ah.Close()
	ah.Close()
}

func TestAsyncHandler_DerivedShareQueue(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10, 1)
	derived := ah.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("g")

	_ = derived.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
	ah.Close()

	if got := inner.count(); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}
}
