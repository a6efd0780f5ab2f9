package server

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/wardenops/warden/internal/logger"
)

// heartbeat touches path on every interval so external watchdogs can tell
// the agent is alive. The file's mtime is the liveness signal; contents are
// irrelevant. Stops when ctx is cancelled.
func heartbeat(ctx context.Context, path string, interval time.Duration) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Log().WithError(err).Warn("Heartbeat directory unavailable")
		return
	}

	touch(path)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			touch(path)
		}
	}
}

func touch(path string) {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Log().WithError(err).Warn("Heartbeat touch failed")
		return
	}
	f.Close()
}
