package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is against a *SyncError.
var (
	// ErrFeedUnavailable means the source fetch failed (transport or non-2xx).
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrValidationFailure means a source record could not be transcoded.
	ErrValidationFailure = errors.New("validation failure")
	// ErrCommitFailed means the budget file commit or remote sync failed.
	ErrCommitFailed = errors.New("commit failed")
	// ErrDestinationRejected means the remote budget service refused a write.
	ErrDestinationRejected = errors.New("destination rejected")
	// ErrLedgerUnavailable means reading from or writing to the budget file session failed.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrConfigurationGap marks an account that lacks what is needed to sync it.
	// It never aborts a pass; it only labels skip outcomes.
	ErrConfigurationGap = errors.New("configuration gap")
)

// SyncError is a fatal error raised during a sync pass.
type SyncError struct {
	Kind        error
	Destination Destination
	AccountID   string
	Err         error
}

// NewSyncError builds a SyncError of the given kind around err.
func NewSyncError(kind error, dest Destination, accountID string, err error) *SyncError {
	return &SyncError{Kind: kind, Destination: dest, AccountID: accountID, Err: err}
}

func (e *SyncError) Error() string {
	msg := e.Kind.Error()
	if e.Destination != "" {
		msg = fmt.Sprintf("%s: %s", e.Destination, msg)
	}
	if e.AccountID != "" {
		msg = fmt.Sprintf("%s (account %s)", msg, e.AccountID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *SyncError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var kindNames = map[error]string{
	ErrFeedUnavailable:     "FeedUnavailable",
	ErrValidationFailure:   "ValidationFailure",
	ErrCommitFailed:        "CommitFailed",
	ErrDestinationRejected: "DestinationRejected",
	ErrLedgerUnavailable:   "LedgerUnavailable",
	ErrConfigurationGap:    "ConfigurationGap",
}

// KindName returns the taxonomy name of err, or "Unknown" for errors outside it.
func KindName(err error) string {
	var se *SyncError
	if errors.As(err, &se) {
		if name, ok := kindNames[se.Kind]; ok {
			return name
		}
	}
	return "Unknown"
}

// WithDestination fills in the destination of a SyncError that was raised
// below the orchestrator. Other errors are returned as is.
func WithDestination(err error, dest Destination) error {
	var se *SyncError
	if errors.As(err, &se) && se.Destination == "" {
		se.Destination = dest
	}
	return err
}
