// Package run orchestrates a full notification batch: evaluate, aggregate,
// render, dispatch, and record.
package run

import (
	"fmt"
	"time"
)

// Summary is the machine-reportable outcome of one run.
type Summary struct {
	Notified       int           `json:"notified"`
	SkippedDupe    int           `json:"skipped_duplicate"`
	SkippedNoOwner int           `json:"skipped_no_owner"`
	Failed         int           `json:"failed"`
	Evaluated      int           `json:"evaluated"`
	StateResets    int           `json:"state_resets"`
	DigestsSent    int           `json:"digests_sent"`
	DryRun         bool          `json:"dry_run"`
	Duration       time.Duration `json:"duration_ms"`
	StartedAt      time.Time     `json:"started_at"`
}

// Line renders the single machine-parseable summary line.
func (s *Summary) Line() string {
	return fmt.Sprintf(
		"run_summary notified=%d skipped_duplicate=%d skipped_no_owner=%d failed=%d evaluated=%d state_resets=%d digests_sent=%d dry_run=%t duration_ms=%d",
		s.Notified, s.SkippedDupe, s.SkippedNoOwner, s.Failed,
		s.Evaluated, s.StateResets, s.DigestsSent, s.DryRun,
		s.Duration.Milliseconds(),
	)
}
