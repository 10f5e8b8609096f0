package worker

import "time"

// Job is one dispatched cycle of a named task.
type Job struct {
	Task         string
	ScheduledFor time.Time
	FiredAt      time.Time
}
