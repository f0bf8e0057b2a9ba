// Package calerr defines the unified error type for the calibration core.
//
// It follows the category/builder pattern of the host system's error
// handling: a single struct carrying an error kind, a message, optional
// config-section/option context, and a wrapped cause.
package calerr

import "fmt"

// Kind classifies a calibration error per the error handling design.
type Kind string

const (
	// KindConfig covers refused operations due to bad or missing config,
	// e.g. decelerate_on_trigger requested without decelerate_runout.
	KindConfig Kind = "CONFIG"

	// KindState covers operations refused due to bad machine state, e.g.
	// the probe already reading triggered at cycle entry.
	KindState Kind = "STATE"

	// KindNotTriggered covers a probe motion that completed without contact.
	KindNotTriggered Kind = "NOT_TRIGGERED"

	// KindOverrun covers a decelerate-on-trigger pass that crossed its
	// runout limit before coming to rest.
	KindOverrun Kind = "OVERRUN"

	// KindHalted covers an asynchronous kill-flag abort.
	KindHalted Kind = "HALTED"

	// KindNonconvergence covers a strategy that exhausted its iteration
	// budget without reaching its target tolerance.
	KindNonconvergence Kind = "NONCONVERGENCE"
)

// CalError is the unified error type returned by every calibration-core
// operation that can fail.
type CalError struct {
	Kind    Kind
	Message string

	Section string
	Option  string

	Context map[string]interface{}

	Err error
}

// Error implements the error interface.
func (e *CalError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Section, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *CalError) Unwrap() error {
	return e.Err
}

// WithSection sets the config section this error pertains to.
func (e *CalError) WithSection(section string) *CalError {
	e.Section = section
	return e
}

// WithOption sets the config option this error pertains to.
func (e *CalError) WithOption(option string) *CalError {
	e.Option = option
	return e
}

// WithContext attaches an arbitrary key/value to the error.
func (e *CalError) WithContext(key string, value interface{}) *CalError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a CalError with no wrapped cause.
func New(kind Kind, message string) *CalError {
	return &CalError{Kind: kind, Message: message}
}

// Wrap creates a CalError that wraps an existing error.
func Wrap(err error, kind Kind, message string) *CalError {
	return &CalError{Kind: kind, Message: message, Err: err}
}

// Config creates a ConfigError.
func Config(message string) *CalError {
	return New(KindConfig, message)
}

// NewState creates a StateError.
func NewState(message string) *CalError {
	return New(KindState, message)
}

// NotTriggered creates a NotTriggered error.
func NotTriggered(message string) *CalError {
	return New(KindNotTriggered, message)
}

// Overrun creates an Overrun error.
func Overrun(message string) *CalError {
	return New(KindOverrun, message)
}

// Halted creates a Halted error.
func Halted(message string) *CalError {
	return New(KindHalted, message)
}

// Nonconvergence creates a Nonconvergence error.
func Nonconvergence(message string) *CalError {
	return New(KindNonconvergence, message)
}

// Is reports whether err is a *CalError of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*CalError)
	if !ok {
		return false
	}
	return ce.Kind == kind
}
