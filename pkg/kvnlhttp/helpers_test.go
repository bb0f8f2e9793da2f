package kvnlhttp

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/lmittmann/tint"
)

const sealedMD5 = "a=hello\nc=world\nmd5=c5133712016d519e3b899e1db0fe7652\n\n"

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(tint.NewHandler(t.Output(), &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05",
	}))
}

// recordingLogger keeps every event it is given.
type recordingLogger struct {
	mu     sync.Mutex
	events []*BlockEvent
	err    error
}

func (r *recordingLogger) LogBlock(_ context.Context, event *BlockEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingLogger) all() []*BlockEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*BlockEvent(nil), r.events...)
}
