package events

import (
	"io"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/pingsantohq/monitord/pkg/types"
)

// LogRecorder writes events as console status lines. Failures go to errLogger.
// Failure and skip lines are throttled: the first few are always written,
// then at most one per interval.
type LogRecorder struct {
	logger    *log.Logger
	errLogger *log.Logger
	failures  *rate.Sometimes
	skips     *rate.Sometimes
}

func NewLogRecorder(logger, errLogger *log.Logger) *LogRecorder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if errLogger == nil {
		errLogger = logger
	}
	return &LogRecorder{
		logger:    logger,
		errLogger: errLogger,
		failures:  &rate.Sometimes{First: 3, Interval: time.Minute},
		skips:     &rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

func (r *LogRecorder) Record(event types.Event) {
	switch event.Type {
	case types.EventSnapshotStored:
		r.logger.Printf("stored monitors in file: %v", event.Details["path"])
	case types.EventSnapshotFailed:
		r.failures.Do(func() {
			r.errLogger.Printf("snapshot failed: %v", event.Details["error"])
		})
	case types.EventCycleSkipped:
		r.skips.Do(func() {
			r.logger.Printf("%s cycle skipped: previous cycle still running", event.Task)
		})
	case types.EventRefreshCompleted:
		// Refresh cycles run every few seconds; only failures are interesting.
		if err, ok := event.Details["error"]; ok {
			r.failures.Do(func() {
				r.errLogger.Printf("refresh failed: %v", err)
			})
		}
	case types.EventLifetimeElapsed:
		r.logger.Printf("lifetime of %v elapsed, stopping tasks", event.Details["lifetime"])
	case types.EventStopped:
		r.logger.Printf("monitor tasks stopped (run=%s)", event.RunID)
	}
}
