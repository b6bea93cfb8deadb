package reminder

import (
	"fmt"
	"time"
)

// GroupResult tracks the outcome of one group within a cycle.
type GroupResult struct {
	GroupID    int64
	Recipients []int64
	Suppressed int // resolved users skipped by cooldown
	Message    string
	Sent       bool
	Error      string
}

// CycleResult tracks the outcome of a full reminder cycle.
type CycleResult struct {
	CycleID      string
	StartedAt    time.Time
	Eligibility  Eligibility
	GroupsFound  int
	GroupsSent   int
	GroupsFailed int
	Notified     int
	Duration     time.Duration
	Errors       []string
	Groups       []GroupResult
}

// Summary returns a human-readable summary.
func (r *CycleResult) Summary() string {
	return fmt.Sprintf(
		"cycle=%s reason=%s non_compliant=%d groups=%d sent=%d failed=%d notified=%d dur=%s",
		r.CycleID, r.Eligibility.Reason, len(r.Eligibility.NonCompliant),
		r.GroupsFound, r.GroupsSent, r.GroupsFailed, r.Notified,
		r.Duration.Round(time.Millisecond))
}
