package failure

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies every error the checkout flow can surface.
type Kind int

const (
	Unknown Kind = iota
	InvalidInput
	InvalidAddress
	InvalidImage
	StepNotReady
	OperationInFlight
	SessionNotFound
	NoRatesAvailable
	LabelGenerationFailed
	UploadFailed
	CartUserError
	CartTransportError
	CheckoutURLMissing
	EventEmitFailed
)

func (k Kind) String() string {
	return [...]string{
		"unknown",
		"invalid_input",
		"invalid_address",
		"invalid_image",
		"step_not_ready",
		"operation_in_flight",
		"session_not_found",
		"no_rates_available",
		"label_generation_failed",
		"upload_failed",
		"cart_user_error",
		"cart_transport_error",
		"checkout_url_missing",
		"event_emit_failed",
	}[k]
}

// Error is a classified error. Message is safe to show to the customer; the
// cause (if any) is only logged.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. A nil cause yields nil.
func Wrap(cause error, kind Kind, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String() + ": " + e.Message
	}
	return e.Kind.String() + ": " + e.Message + ": " + e.cause.Error()
}

func (e *Error) Cause() error  { return e.cause }
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same kind, so errors.Is(err, failure.New(kind, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage returns the customer-facing text for err.
func UserMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "Something went wrong. Please try again."
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidInput, InvalidAddress, InvalidImage, StepNotReady:
		return http.StatusBadRequest
	case SessionNotFound:
		return http.StatusNotFound
	case OperationInFlight:
		return http.StatusConflict
	case CartUserError:
		return http.StatusUnprocessableEntity
	case NoRatesAvailable, LabelGenerationFailed, UploadFailed, CartTransportError, CheckoutURLMissing, EventEmitFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
