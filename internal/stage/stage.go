// Package stage tags pipeline failures with the step that produced them.
package stage

import (
	"errors"
	"fmt"
)

type Stage string

const (
	Upload     Stage = "upload"
	Normalize  Stage = "normalize"
	Transcribe Stage = "transcribe"
	Summarize  Stage = "summarize"
	Export     Stage = "export"
	Persist    Stage = "persist"
	Notify     Stage = "notify"
)

type Kind string

const (
	KindUnsupportedFormat      Kind = "UnsupportedFormatError"
	KindConversion             Kind = "ConversionError"
	KindTranscription          Kind = "TranscriptionError"
	KindSummarizationTransport Kind = "SummarizationTransportError"
	KindSummarizationParse     Kind = "SummarizationParseError"
	KindConfiguration          Kind = "ConfigurationError"
	KindExport                 Kind = "ExportError"
	KindPersistence            Kind = "PersistenceError"
	KindNotification           Kind = "NotificationError"
)

// Error is the single failure shape returned across a stage boundary.
type Error struct {
	Stage   Stage
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func New(st Stage, kind Kind, message string) *Error {
	return &Error{Stage: st, Kind: kind, Message: message}
}

func Wrap(st Stage, kind Kind, message string, err error) *Error {
	return &Error{Stage: st, Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of the first stage error in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// StageOf reports the stage of the first stage error in err's chain.
func StageOf(err error) (Stage, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
