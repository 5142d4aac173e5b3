package cases

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrCollection reports an origin that cannot be turned into candidate cases.
	ErrCollection = errors.New("case collection failed")
	// ErrNoCasesDiscovered reports an origin that produced no case at all.
	ErrNoCasesDiscovered = errors.New("no cases discovered")
	// ErrFilterResultEmpty reports a filter that rejected every discovered case.
	ErrFilterResultEmpty = errors.New("no cases matched filter")
	// ErrEmptyParametrization reports a declaration left without any source.
	ErrEmptyParametrization = errors.New("empty parametrization")
	// ErrArityMismatch reports a value whose width differs from the argnames group.
	ErrArityMismatch = errors.New("arity mismatch")
	// ErrUnionInvariant reports a union with no valid active alternative.
	ErrUnionInvariant = errors.New("fixture union invariant violated")
	// ErrNotUsedLeak reports a NotUsed value reaching a consumer that needs a real value.
	ErrNotUsedLeak = errors.New("not-used value leaked")
	// ErrScopeMismatch reports a session fixture depending on a function fixture.
	ErrScopeMismatch = errors.New("fixture scope mismatch")
	// ErrCycle reports a dependency cycle between fixtures.
	ErrCycle = errors.New("fixture dependency cycle")
	// ErrUnknownArg reports an argument name the test never declared.
	ErrUnknownArg = errors.New("unknown argument")
)

// ResolveError wraps the failure of a fixture, case or lazy value body.
type ResolveError struct {
	Source     string
	Cause      error
	Context    string
	StackTrace []byte
}

func (e *ResolveError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("resolve error in %s during %s: %v", e.Source, e.Context, e.Cause)
	}
	return fmt.Sprintf("resolve error in %s: %v", e.Source, e.Cause)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

func newResolveError(source string, cause error, context string) *ResolveError {
	return &ResolveError{
		Source:     source,
		Cause:      cause,
		Context:    context,
		StackTrace: debug.Stack(),
	}
}

// ArityError reports a value of the wrong width for a multi-argument group.
type ArityError struct {
	Source   string
	Argnames []string
	Want     int
	Got      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%v: %s produced %d value(s) for %d argnames %v", ErrArityMismatch, e.Source, e.Got, e.Want, e.Argnames)
}

func (e *ArityError) Is(target error) bool {
	return target == ErrArityMismatch
}

// CleanupError contains information about a teardown failure.
type CleanupError struct {
	Source  string
	Err     error
	Context string // "invocation" or "session"
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup of %s (%s) failed: %v", e.Source, e.Context, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// SafeTypeAssertion performs a type assertion with a descriptive error. A nil value
// yields the zero value of T.
func SafeTypeAssertion[T any](value any) (T, error) {
	if value == nil {
		var zero T
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type assertion error: expected %T, got %T (value: %v)", zero, value, value)
	}

	return typed, nil
}
