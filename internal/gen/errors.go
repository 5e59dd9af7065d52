package gen

import (
	"errors"
	"fmt"
)

var (
	ErrUnsatisfiable = errors.New("unsatisfiable schema")
	ErrInternal      = errors.New("internal compiler error")
)

// UnsatisfiableSchemaError is returned when no value can be produced for a
// schema: Never reached, an empty numeric range, contradictory conjuncts.
type UnsatisfiableSchemaError struct {
	// Path locates the schema or the instance being repaired.
	Path   string
	Reason string
}

func (e *UnsatisfiableSchemaError) Error() string {
	return fmt.Sprintf("%v at %s: %s", ErrUnsatisfiable, e.Path, e.Reason)
}

func (e *UnsatisfiableSchemaError) Is(target error) bool {
	return target == ErrUnsatisfiable
}

// CompilerInternalError marks a keyword combination with no generation or
// repair strategy, or a broken internal invariant. It is a defect to fix.
type CompilerInternalError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CompilerInternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v at %s: %s: %v", ErrInternal, e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v at %s: %s", ErrInternal, e.Path, e.Reason)
}

func (e *CompilerInternalError) Is(target error) bool {
	return target == ErrInternal
}

func (e *CompilerInternalError) Unwrap() error {
	return e.Err
}
