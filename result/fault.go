package result

import (
	"fmt"
	"slices"
	"strings"
)

// Detail is one piece of identifying information about the entity a Fault refers to.
type Detail struct {
	Key   string
	Value string
}

// Fault is the Error variant of every result shape. Values are only produced by the
// builders in this package and are immutable once built.
type Fault struct {
	entityType  string
	requested   RequestedOperation
	errorType   ErrorType
	message     string
	cause       error
	about       []Detail
	extended    int
	hasExtended bool
}

func (f *Fault) EntityType() string                     { return f.entityType }
func (f *Fault) RequestedOperation() RequestedOperation { return f.requested }
func (f *Fault) ErrorType() ErrorType                   { return f.errorType }
func (f *Fault) Message() string                        { return f.message }

// Cause returns the underlying error, if the fault wraps one.
func (f *Fault) Cause() error { return f.cause }

// About returns the identifying details recorded for the target entity, in the order given.
func (f *Fault) About() []Detail { return slices.Clone(f.about) }

// AboutValue returns the first detail recorded under key.
func (f *Fault) AboutValue(key string) (string, bool) {
	for _, d := range f.about {
		if d.Key == key {
			return d.Value, true
		}
	}
	return "", false
}

// ExtendedCode returns the optional numeric code attached for presentation layers.
func (f *Fault) ExtendedCode() (int, bool) { return f.extended, f.hasExtended }

// HasType reports whether f is of type t.
func (f *Fault) HasType(t ErrorType) bool { return f.errorType == t }

func (f *Fault) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "persist: %s %s: %s", f.requested, f.entityType, f.errorType)
	if f.message != "" {
		b.WriteString(": ")
		b.WriteString(f.message)
	}
	if len(f.about) > 0 {
		b.WriteString(" (")
		for i, d := range f.about {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Key)
			b.WriteByte('=')
			b.WriteString(d.Value)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (f *Fault) Unwrap() error { return f.cause }

// Is matches an ErrorType target against the fault's type.
func (f *Fault) Is(target error) bool {
	t, ok := target.(ErrorType)
	return ok && t == f.errorType
}

func (f Fault) with(d Detail) Fault {
	f.about = append(slices.Clip(f.about), d)
	return f
}

func defaultMessage(t ErrorType) string {
	switch t {
	case BadRequestData:
		return "bad request data"
	case EntityNotFound:
		return "requested entity was not found"
	case EntityAlreadyExists:
		return "requested entity already exists"
	case EntityNotValid:
		return "entity is not valid"
	case OptimisticLockingError:
		return "entity was modified by another request"
	case IllegalStatus:
		return "target entity is in an illegal status"
	case RelatedRequiredEntityNotFound:
		return "related required entity was not found"
	case ClientCannotConnectServer:
		return "cannot connect to server"
	}
	return "server error"
}
