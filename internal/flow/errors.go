package flow

import (
	"errors"
	"fmt"

	"github.com/brconnect/leadintake/internal/models"
)

// Sentinel errors returned by Session.Submit. All of them leave the session
// state unchanged.
var (
	// ErrSessionBusy is returned when a submission arrives while a prior one
	// is still validating or persisting.
	ErrSessionBusy = errors.New("a submission is already in progress")
	// ErrSessionClosed is returned for any action against a torn-down session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrConversationDone is returned when input arrives after the terminal step.
	ErrConversationDone = errors.New("conversation already completed")
	// ErrVerificationRejected means the registry lookup returned a definitive
	// negative for the submitted tax id.
	ErrVerificationRejected = errors.New("tax id rejected by registry lookup")
	// ErrVerificationUnavailable means the registry lookup could not be
	// reached; the value may still be correct and can be resubmitted.
	ErrVerificationUnavailable = errors.New("registry lookup unavailable")
)

// ValidationError reports a locally rejected input value.
type ValidationError struct {
	Step  models.Step
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for step %s", e.Step)
}
