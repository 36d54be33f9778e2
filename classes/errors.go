package classes

import "fmt"

// ErrorKind enumerates the lexical/semantic failures finalization can
// surface. These are reported by message, not by Go error type, mirroring
// the specification's "kinds, not type names" taxonomy.
type ErrorKind byte

const (
	ErrUnresolvedName ErrorKind = iota
	ErrCyclicSuperclass
	ErrCyclicInterface
	ErrParameterAsInterface
	ErrWrongArity
	ErrNonConstSuperclass
	ErrNonFinalField
	ErrTypeParameterParameterized
	ErrNameCollision
	ErrIncompatibleOverride
	ErrNotAnInterface
)

// FinalizationError is the error type every finalizer entrypoint returns.
// The specification models recovery as a single per-isolate long-jump to
// the nearest finalizer boundary; here that unwind is just Go's ordinary
// error return, and the isolate is responsible for latching the message
// into its sticky-error slot (see isolate.Isolate.StickyError).
type FinalizationError struct {
	Kind    ErrorKind
	Class   *Class
	Message string
}

func (e *FinalizationError) Error() string {
	if e.Class != nil {
		return fmt.Sprintf("class %s: %s", e.Class.Name.Text(), e.Message)
	}
	return e.Message
}

func newError(kind ErrorKind, class *Class, format string, args ...interface{}) *FinalizationError {
	return &FinalizationError{Kind: kind, Class: class, Message: fmt.Sprintf(format, args...)}
}
