package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying stage failures. Wrap tags errors with one of
// these so callers can branch with errors.Is and error reports can name the
// failure category.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrValidation      = errors.New("validation error")
	ErrAudioProcessing = errors.New("audio processing error")
	ErrTranscription   = errors.New("transcription error")
	ErrAnalysis        = errors.New("analysis error")
	ErrStorage         = errors.New("storage error")
	ErrResource        = errors.New("resource error")
	ErrNetwork         = errors.New("network error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
)

// Error carries a classified failure with stage context and free-form
// key/value detail for error reports.
type Error struct {
	Kind      error
	Stage     string
	Operation string
	Message   string
	Cause     error
	Context   map[string]string
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind.Error(), detail, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), detail)
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// WithContext attaches a key/value pair used in error reports.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	return New(marker, stage, operation, message, err)
}

// New is Wrap returning the concrete type, for callers that attach context
// key/value pairs.
func New(marker error, stage, operation, message string, err error) *Error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{
		Kind:      marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// Details extracts structured failure information from any error. Unclassified
// errors come back with the transient kind and the raw message.
func Details(err error) (kind error, stage, operation, message string, contextual map[string]string) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind, svcErr.Stage, svcErr.Operation, svcErr.Message, svcErr.Context
	}
	message = ""
	if err != nil {
		message = err.Error()
	}
	return ErrTransient, "", "", message, nil
}

// KindName returns the short label for an error's kind, used in error report
// filenames and log attributes.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "Configuration"
	case errors.Is(err, ErrValidation):
		return "Validation"
	case errors.Is(err, ErrAudioProcessing):
		return "AudioProcessing"
	case errors.Is(err, ErrTranscription):
		return "Transcription"
	case errors.Is(err, ErrAnalysis):
		return "Analysis"
	case errors.Is(err, ErrStorage):
		return "Storage"
	case errors.Is(err, ErrResource):
		return "Resource"
	case errors.Is(err, ErrNetwork):
		return "Network"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	default:
		return "Transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
