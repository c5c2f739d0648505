package verify

import (
	"errors"
	"fmt"
)

// Stage names the step of the check pipeline that failed.
type Stage string

const (
	StageTransport Stage = "transport"
	StageExtract   Stage = "extract"
	StageCoerce    Stage = "coerce"
	StageEvaluate  Stage = "evaluate"
)

var (
	ErrNoMatch         = errors.New("no match")
	ErrConversion      = errors.New("conversion failed")
	ErrUnknownOperator = errors.New("unknown operator")
	ErrIncomparable    = errors.New("values are not comparable")
)

// StageError is a per-check failure tagged with the stage that produced it.
type StageError struct {
	Stage Stage
	Check string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("check %q: %s: %v", e.Check, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NoMatchError reports a JSONPath that selected nothing.
type NoMatchError struct {
	Path     string
	Document string // truncated rendering of the searched document
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("JSONPath %q found no matches in response: %s", e.Path, e.Document)
}

func (e *NoMatchError) Is(target error) bool { return target == ErrNoMatch }

// ConversionError reports a value that could not be coerced. Default is set
// when the failing value was the configured default itself.
type ConversionError struct {
	Value   any
	Type    string
	Default bool
	Err     error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert %s to %s and no default provided", formatValue(e.Value), e.Type)
	if e.Default {
		msg = fmt.Sprintf("default %s cannot be converted to %s", formatValue(e.Value), e.Type)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

func (e *ConversionError) Unwrap() error { return e.Err }
