package cron

// RunStatus records the outcome of a job's most recent fire.
type RunStatus string

const (
	StatusIdle  RunStatus = "idle" // never fired
	StatusOK    RunStatus = "ok"
	StatusError RunStatus = "error"
)

// JobState is the mutable scheduling state of a job.
type JobState struct {
	NextRunAtMs *int64    `json:"next_run_at_ms,omitempty"`
	LastRunAtMs *int64    `json:"last_run_at_ms,omitempty"`
	LastStatus  RunStatus `json:"last_status"`
	LastError   string    `json:"last_error,omitempty"`
	RunCount    int       `json:"run_count"`
}

// Job is a persisted scheduled task. The Task text is handed verbatim to the
// fire handler (which spawns a background agent for it).
type Job struct {
	ID             string   `json:"id"` // 8-hex
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Task           string   `json:"task"`
	Priority       string   `json:"priority,omitempty"` // "low", "normal", "high"
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"created_at_ms"`
	DeleteAfterRun bool     `json:"delete_after_run,omitempty"`
}

// clone returns a deep copy safe to hand outside the service's lock.
func (j *Job) clone() Job {
	out := *j
	if j.State.NextRunAtMs != nil {
		v := *j.State.NextRunAtMs
		out.State.NextRunAtMs = &v
	}
	if j.State.LastRunAtMs != nil {
		v := *j.State.LastRunAtMs
		out.State.LastRunAtMs = &v
	}
	return out
}
