// Package cron schedules recurring maintenance jobs against standard
// 5-field cron expressions and persists their run state across restarts.
package cron

import "time"

// JobState tracks runtime state of a job
type JobState struct {
	NextRunAtMs       *int64 `json:"nextRunAtMs,omitempty"`       // When to run next
	RunningAtMs       *int64 `json:"runningAtMs,omitempty"`       // When started (if running)
	LastRunAtMs       *int64 `json:"lastRunAtMs,omitempty"`       // When last executed
	LastStatus        string `json:"lastStatus,omitempty"`        // "ok", "error", or "skipped"
	LastError         string `json:"lastError,omitempty"`         // Last error message
	LastDurationMs    *int64 `json:"lastDurationMs,omitempty"`    // Last execution duration
	ConsecutiveErrors int    `json:"consecutiveErrors,omitempty"` // Sequential failure count
}

// Job represents a scheduled job definition
type Job struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Expr        string   `json:"expr"`         // Cron expression (5-field format)
	TZ          string   `json:"tz,omitempty"` // Optional timezone
	Enabled     bool     `json:"enabled"`
	CreatedAtMs int64    `json:"createdAtMs"`
	UpdatedAtMs int64    `json:"updatedAtMs"`
	State       JobState `json:"state"`
}

// AddParams contains parameters for creating a job
type AddParams struct {
	Name    string `json:"name"`
	Expr    string `json:"expr"`
	TZ      string `json:"tz,omitempty"`
	Enabled bool   `json:"enabled"`
}

// JobPatch contains fields that can be updated
type JobPatch struct {
	Expr    *string `json:"expr,omitempty"`
	TZ      *string `json:"tz,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// EventAction represents the type of event
type EventAction string

const (
	EventActionFinished EventAction = "finished"
	EventActionAdded    EventAction = "added"
	EventActionUpdated  EventAction = "updated"
	EventActionDeleted  EventAction = "deleted"
)

// Event describes a change in the scheduler
type Event struct {
	Action      EventAction `json:"action"`
	JobID       string      `json:"jobId"`
	Status      string      `json:"status,omitempty"`      // "ok", "error", or "skipped"
	Error       string      `json:"error,omitempty"`       // Error message if failed
	DurationMs  *int64      `json:"durationMs,omitempty"`  // Execution duration
	NextRunAtMs *int64      `json:"nextRunAtMs,omitempty"` // Next scheduled run
}

// RunFunc executes a job's work. The error, if any, is recorded in the
// job state and surfaced through the finished event.
type RunFunc func(job *Job) error

// ServiceOptions configures the scheduler
type ServiceOptions struct {
	StorePath string          // Path to jobs.json
	RunJob    RunFunc         // Job execution callback (required)
	OnEvent   func(evt Event) // Event callback (optional)
}

// Now returns current time in milliseconds
func Now() int64 {
	return time.Now().UnixMilli()
}

// Int64Ptr returns a pointer to an int64 value
func Int64Ptr(v int64) *int64 {
	return &v
}
