package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Emitted 12 assets (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx.
// If no logger is attached, it returns log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// logHooks traces pipeline and pool events at debug level.
type logHooks struct {
	logger *log.Logger
}

func (h *logHooks) OnPartitionStart(_ context.Context, entry string) {}

func (h *logHooks) OnPartitionComplete(_ context.Context, entry string, internal, external int, d time.Duration, err error) {
	h.logger.Debug("partition", "entry", short(entry), "internal", internal, "external", external, "duration", d, "err", err)
}

func (h *logHooks) OnEmitStart(_ context.Context, entry string, assets int) {
	h.logger.Debug("emit start", "entry", short(entry), "assets", assets)
}

func (h *logHooks) OnEmitComplete(_ context.Context, entry string, d time.Duration, err error) {
	h.logger.Debug("emit", "entry", short(entry), "duration", d, "err", err)
}

func (h *logHooks) OnRenderStart(_ context.Context, entry string) {}

func (h *logHooks) OnRenderComplete(_ context.Context, entry string, ok bool, d time.Duration, err error) {
	h.logger.Debug("render", "entry", entry, "ok", ok, "duration", d, "err", err)
}

func (h *logHooks) OnSpawn(_ context.Context, entrypoint string, err error) {
	h.logger.Debug("worker spawned", "entrypoint", entrypoint, "err", err)
}

func (h *logHooks) OnAcquire(_ context.Context, entrypoint string, wait time.Duration) {
	if wait > 10*time.Millisecond {
		h.logger.Debug("waited for worker", "entrypoint", entrypoint, "wait", wait)
	}
}

func (h *logHooks) OnRelease(_ context.Context, entrypoint string, reused bool) {
	if !reused {
		h.logger.Debug("worker discarded", "entrypoint", entrypoint)
	}
}

// short abbreviates asset IDs for display.
func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
