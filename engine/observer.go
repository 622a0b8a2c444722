package engine

import (
	"time"

	"github.com/jacentio/persist/result"
)

// Outcome summarizes a finished operation for an Observer.
type Outcome struct {
	Succeeded bool

	// Partial is set for multi-entity operations in which some sub-operations failed.
	Partial bool

	// ErrorType is set for Error results.
	ErrorType result.ErrorType

	// Fault is set when the operation returned a Go error instead of a result.
	Fault bool
}

// Label returns a short name of the outcome, suitable as a metric label.
func (o Outcome) Label() string {
	switch {
	case o.Fault:
		return "fault"
	case o.Partial:
		return "partial"
	case o.Succeeded:
		return "ok"
	}
	return "error"
}

// Observer is told about every operation an engine finishes.
type Observer interface {
	Observe(entityType string, op result.RequestedOperation, outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Observe(string, result.RequestedOperation, Outcome, time.Duration) {}

// outcomeOf summarizes res and err.
func outcomeOf[T any](res result.Result[T], err error) Outcome {
	if err != nil || res == nil {
		return Outcome{Fault: true}
	}
	if f, ok := res.AsError(); ok {
		return Outcome{ErrorType: f.ErrorType()}
	}
	if m, ok := res.(interface{ IsPartial() bool }); ok && m.IsPartial() {
		return Outcome{Partial: true}
	}
	return Outcome{Succeeded: true}
}
