package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. The mail service adapter maps provider
// status codes onto these sentinels so callers can branch with errors.Is.
var (
	// ErrTransientAPI covers rate limits, timeouts and provider 5xx. Never
	// retried inline; retry is deferred to the next scheduled run.
	ErrTransientAPI = errors.New("transient mail API error")

	// ErrPermission means the mailbox token lacks the required scope. Kept
	// distinct so the caller can trigger re-consent instead of reporting a
	// generic failure.
	ErrPermission = errors.New("insufficient mailbox permissions")

	// ErrCheckpointInvalid means the stored history watermark is too old for
	// the mail service to replay from. Triggers watch re-registration.
	ErrCheckpointInvalid = errors.New("history checkpoint no longer valid")

	// ErrMessageNotFound means the target message no longer exists. The
	// executor treats it as an already-applied mutation.
	ErrMessageNotFound = errors.New("message not found")
)

// ParseError reports classifier output that could not be turned into a
// decision: non-JSON text, or a category outside the closed set. The message
// is left unmutated and logged with state=error.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable classifier response: %s", e.Reason)
}
