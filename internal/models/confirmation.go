package models

import "time"

// ConfirmationSource identifies which channel produced a confirmation result.
type ConfirmationSource string

const (
	SourceDialog  ConfirmationSource = "dialog"
	SourceChat    ConfirmationSource = "chat"
	SourceTimeout ConfirmationSource = "timeout"
	SourceError   ConfirmationSource = "error"
	SourceNone    ConfirmationSource = "none"
)

// PendingConfirmation is the in-memory-only record of a confirmation
// request racing across the dialog and chat channels.
type PendingConfirmation struct {
	ID          string
	Type        string
	Context     map[string]interface{}
	Options     []string
	DefaultOption string
	CreatedAt   time.Time
	TimeoutSeconds int

	DialogPID   int // subprocess handle, 0 if not spawned/already reaped
	ChatMessageID int

	Result      string
	ResultSource ConfirmationSource
}

// ConfirmationResult is returned to the synchronous caller once the race
// resolves.
type ConfirmationResult struct {
	Action       string
	Source       ConfirmationSource
	ResponseTime time.Duration
}
