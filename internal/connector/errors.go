package connector

import (
	"errors"
	"fmt"
)

var (
	ErrConnection        = errors.New("connector: connection failed")
	ErrQuery             = errors.New("connector: query failed")
	ErrConsistency       = errors.New("connector: unexpected metadata shape")
	ErrUnsupportedEngine = errors.New("connector: unsupported engine")
)

type Kind string

const (
	KindConnection  Kind = "connection"
	KindQuery       Kind = "query"
	KindConsistency Kind = "consistency"
)

// Error is returned by every connector operation. Its message is the
// underlying engine message, unchanged.
type Error struct {
	Kind   Kind
	Engine EngineType
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s failure", e.Engine, e.Op, e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrQuery:
		return e.Kind == KindQuery
	case ErrConsistency:
		return e.Kind == KindConsistency
	default:
		return false
	}
}

// Wrap classifies err unless it already carries a classification.
func Wrap(kind Kind, engine EngineType, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Engine: engine, Op: op, Err: err}
}

// KindOf reports the classification of err, or "" when err did not come from a connector.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}
