package detect

import (
	"errors"

	"eventscan/internal/classifier"
	"eventscan/internal/config"
	"eventscan/internal/features"
)

// ErrEmptySignal is returned when the pipeline is handed no samples.
var ErrEmptySignal = features.ErrEmptySignal

// Kind groups failures by where they abort the pipeline.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers bad options, unreadable input and unreadable models.
	// The pipeline never starts.
	KindValidation
	// KindClassifier covers backend and output failures during inference.
	KindClassifier
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation error"
	case KindClassifier:
		return "Classifier error"
	default:
		return "Error"
	}
}

// Error tags an underlying error with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Validation wraps err as a KindValidation failure.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindValidation, Err: err}
}

// ClassifierFailure wraps err as a KindClassifier failure.
func ClassifierFailure(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindClassifier, Err: err}
}

// KindOf returns the Kind attached anywhere in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Describe renders err the way the worker reports it: "<Kind>: message".
func Describe(err error) string {
	return KindOf(err).String() + ": " + err.Error()
}

// OpenFailure tags a classifier load error. A missing model or bad options is a
// validation error; a backend that will not start is a classifier error.
func OpenFailure(err error) error {
	if errors.Is(err, classifier.ErrModelNotFound) || errors.Is(err, config.ErrInvalid) {
		return Validation(err)
	}
	return ClassifierFailure(err)
}
