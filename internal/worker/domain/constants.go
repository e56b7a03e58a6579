package domain

// Job status constants
const (
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Task status constants
const (
	TaskStatusPending    = "PENDING"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusCompleted  = "COMPLETED"
)

// Report status constants
const (
	ReportStatusGenerated  = "GENERATED"
	ReportStatusDownloaded = "DOWNLOADED"
)

// IsTerminalJobStatus reports whether no further transition is allowed from status.
func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// Allowed: QUEUED→RUNNING, RUNNING→RUNNING (re-execution after a retry),
// RUNNING→COMPLETED and RUNNING→FAILED.
func CanTransition(from, to string) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusRunning || to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

var jobStatuses = []string{JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed}

// TransitionSources returns the statuses a job may move to status from.
func TransitionSources(status string) []string {
	var from []string
	for _, s := range jobStatuses {
		if CanTransition(s, status) {
			from = append(from, s)
		}
	}
	return from
}
