package dto

import "time"

// RunJobRequest triggers a scheduled job by hand. Date applies to generation,
// At to the sweeps; both default to the current civil time.
type RunJobRequest struct {
	Date string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	At   *time.Time `json:"at"`
}

// GenerationSummary reports one daily generation run.
type GenerationSummary struct {
	Date          string `json:"date"`
	Tenants       int    `json:"tenants"`
	FailedTenants int    `json:"failedTenants"`
	Students      int    `json:"students"`
	Created       int    `json:"created"`
	Skipped       int    `json:"skipped"`
	Existing      int    `json:"existing"`
	// Refreshed counts seat assignments whose cached schedule had drifted from
	// the timetable and was rewritten.
	Refreshed int `json:"refreshed"`
}

// SweepSummary reports one start-time or finalizer sweep.
type SweepSummary struct {
	At            time.Time `json:"at"`
	Tenants       int       `json:"tenants"`
	FailedTenants int       `json:"failedTenants"`
	Examined      int       `json:"examined"`
	Updated       int       `json:"updated"`
}

// JobRunResponse wraps a job summary.
type JobRunResponse struct {
	Job     string      `json:"job"`
	Summary interface{} `json:"summary"`
}
