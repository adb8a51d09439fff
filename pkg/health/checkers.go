package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails while more than limit goroutines are running.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, limit)
		}
		return nil
	}
}

// GCPauseCheck fails while the most recent GC pause is longer than limit.
func GCPauseCheck(limit time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		if len(stats.Pause) > 0 && stats.Pause[0] > limit {
			return errors.Errorf("GC pause %s exceeds threshold %s", stats.Pause[0], limit)
		}
		return nil
	}
}

// StatusCheck adapts a connection status getter, such as a message broker
// client's, to a CheckFunc. status returns a description and whether the
// connection is usable.
func StatusCheck(status func() (string, bool)) CheckFunc {
	return func(context.Context) error {
		if s, ok := status(); !ok {
			return errors.Errorf("connection %s", s)
		}
		return nil
	}
}
