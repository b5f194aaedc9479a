package domain

import "time"

// ImportRequest is a single user-initiated import. It is consumed once.
type ImportRequest struct {
	RawContent []byte `json:"-"`

	// DeclaredPlatform is a hint; empty triggers full detection
	DeclaredPlatform Platform  `json:"declared_platform,omitempty"`
	Attachments      []RawFile `json:"attachments,omitempty"`
}

// ImportState is a stage of the import state machine.
// Transitions are strictly forward.
type ImportState string

const (
	StateReceived        ImportState = "received"
	StateDetecting       ImportState = "detecting"
	StateParsing         ImportState = "parsing"
	StateNormalizing     ImportState = "normalizing"
	StateMediaProcessing ImportState = "media_processing"
	StateAssembling      ImportState = "assembling"
	StateDone            ImportState = "done"
	StateFailed          ImportState = "failed"
)

// JobState is the state of an ephemeral import job
type JobState string

const (
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// ImportJob tracks an in-flight import for the at-most-one-per-fingerprint rule
type ImportJob struct {
	Fingerprint string    `json:"fingerprint"`
	State       JobState  `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	ExpiresAt   time.Time `json:"expires_at"`

	// Token owns the fingerprint lock for this admission only
	Token string `json:"-"`
}

// Admission is the outcome of asking the dedup guard to start an import
type Admission string

const (
	Admitted       Admission = "admitted"
	AlreadyRunning Admission = "already_running"
)

// ImportResult is returned to the caller of a successful import
type ImportResult struct {
	ChatRecordID  string          `json:"chat_record_id"`
	VersionNumber int             `json:"version_number"`
	Record        *ChatRecord     `json:"record,omitempty"`
	Warnings      []ImportWarning `json:"warnings,omitempty"`
}
