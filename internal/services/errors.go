package services

import (
	"errors"
	"strings"
)

var (
	ErrElementNotFound    = errors.New("element not found")
	ErrCaptureTimeout     = errors.New("capture timeout")
	ErrExternalService    = errors.New("external service error")
	ErrPollBudgetExceeded = errors.New("poll budget exceeded")
	ErrReplyDelivery      = errors.New("reply delivery failed")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrTimeout            = errors.New("timeout")
	ErrTransient          = errors.New("transient failure")
)

var markerKinds = map[error]string{
	ErrElementNotFound:    "element_not_found",
	ErrCaptureTimeout:     "capture_timeout",
	ErrExternalService:    "external_service",
	ErrPollBudgetExceeded: "poll_budget_exceeded",
	ErrReplyDelivery:      "reply_delivery",
	ErrValidation:         "validation",
	ErrConfiguration:      "configuration",
	ErrTimeout:            "timeout",
	ErrTransient:          "transient",
}

// ServiceError carries a sentinel marker together with the phase and
// operation that produced it.
type ServiceError struct {
	Marker    error
	Phase     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Marker.Error())
	b.WriteString(": ")
	b.WriteString(buildDetail(e.Phase, e.Operation, e.Message))
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the marker and the cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error that includes phase context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Phase:     strings.TrimSpace(phase),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// WithHint attaches an operator-facing hint to a wrapped error. Errors not
// produced by Wrap are returned unchanged.
func WithHint(err error, hint string) error {
	var svc *ServiceError
	if !errors.As(err, &svc) {
		return err
	}
	clone := *svc
	clone.Hint = strings.TrimSpace(hint)
	return &clone
}

// ErrorDetails is the structured view of an error used for logging.
type ErrorDetails struct {
	Kind      string
	Phase     string
	Operation string
	Message   string
	Hint      string
	Cause     string
}

// Details extracts the structured fields of err. Unknown errors report kind
// "unknown" with the full error text as the message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: Kind(err)}
	var svc *ServiceError
	if errors.As(err, &svc) {
		details.Phase = svc.Phase
		details.Operation = svc.Operation
		details.Message = svc.Message
		details.Hint = svc.Hint
		if svc.Cause != nil {
			details.Cause = svc.Cause.Error()
		}
		return details
	}
	details.Message = err.Error()
	return details
}

// Kind reports the snake_case name of the marker carried by err.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		if kind, ok := markerKinds[svc.Marker]; ok {
			return kind
		}
	}
	for marker, kind := range markerKinds {
		if errors.Is(err, marker) {
			return kind
		}
	}
	return "unknown"
}

// Retryable reports whether err represents a failure worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{phase, operation, message} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
