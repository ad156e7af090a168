package flow

import (
	"fmt"

	"github.com/agrilens/agrilens-go/internal/errors"
)

// Kind tags a submission failure.
type Kind int

const (
	// KindValidation is a failure detected locally before any network call.
	KindValidation Kind = iota + 1
	// KindNetwork is any adapter failure: transport, non-2xx or undecodable body.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Validation reasons produced by the upload flow
const (
	ReasonNotAnImage     = "not an image"
	ReasonTooLarge       = "too large"
	ReasonNoFileSelected = "no file selected"
)

// Messages shown to the user
const (
	CropFailureMessage    = "Failed to get recommendation. Please check your inputs and try again."
	DiseaseFailureMessage = "Failed to detect disease. Please try again."
)

var reasonMessages = map[string]string{
	ReasonNotAnImage:     "Please select a valid image file",
	ReasonTooLarge:       "File size must be less than 5MB",
	ReasonNoFileSelected: "Please select an image first",
}

// ErrSubmissionInFlight is returned when a submit arrives while another one
// for the same form has not finished. The adapter is not called.
var ErrSubmissionInFlight = errors.NewStd("submission already in flight")

// Error is a failed submission: a validation reason or a network cause.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

// Validation returns a validation failure for reason.
func Validation(reason string) *Error {
	return &Error{
		Kind:   KindValidation,
		Reason: reason,
		Cause: errors.New(errors.NewStd(reason)).
			Component("flow").
			Category(errors.CategoryValidation).
			Build(),
	}
}

// Network returns a network failure wrapping cause.
func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Reason: "request failed", Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Kind == KindNetwork {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether e is a validation failure.
func (e *Error) IsValidation() bool {
	return e != nil && e.Kind == KindValidation
}

// UserMessage is the text displayed for e. Validation failures show their
// reason; network failures show the flow's static message.
func (e *Error) UserMessage(networkMessage string) string {
	if e == nil {
		return ""
	}
	if e.Kind != KindValidation {
		return networkMessage
	}
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return e.Reason
}

// asFlowError normalizes an adapter error into an *Error.
func asFlowError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Network(err)
}
