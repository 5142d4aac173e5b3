package cases

import "context"

// Extension provides hooks into the invocation lifecycle
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a session
	Init(session *Session) error

	// Wrap intercepts operations (fixture setup, case and lazy value evaluation)
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError handles errors during resolution
	OnError(err error, op *Operation, exec *Execution)

	// OnPanic is called when a body panics; the panic is turned into a ResolveError
	OnPanic(exec *Execution, op *Operation, recovered any, stack []byte) error

	// OnCleanupError handles teardown failures
	// Returns true if the error was handled, false to use default behavior
	OnCleanupError(err *CleanupError) bool

	// Invocation hooks
	OnInvocationStart(exec *Execution) error
	OnInvocationEnd(exec *Execution, err error) error

	// Dispose is called when the session is disposed
	Dispose(session *Session) error
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(session *Session) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, exec *Execution) {
}

func (e *BaseExtension) OnPanic(exec *Execution, op *Operation, recovered any, stack []byte) error {
	return nil
}

func (e *BaseExtension) OnCleanupError(err *CleanupError) bool {
	return false
}

func (e *BaseExtension) OnInvocationStart(exec *Execution) error {
	return nil
}

func (e *BaseExtension) OnInvocationEnd(exec *Execution, err error) error {
	return nil
}

func (e *BaseExtension) Dispose(session *Session) error {
	return nil
}

// Operation describes what operation is happening
type Operation struct {
	Kind      OperationKind
	Fixture   AnyFixture
	Execution *Execution
}

// Source returns the name of the fixture, case or argument group being produced.
func (op *Operation) Source() string {
	if op.Fixture == nil {
		return ""
	}
	return op.Fixture.Name()
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpSetup indicates a fixture setup
	OpSetup OperationKind = "setup"
	// OpUnion indicates the resolution of a fixture union
	OpUnion OperationKind = "union"
	// OpCase indicates the evaluation of a case body
	OpCase OperationKind = "case"
	// OpLazy indicates the evaluation of a lazy value
	OpLazy OperationKind = "lazy"
)

func operationKind(f AnyFixture) OperationKind {
	switch x := f.(type) {
	case *Union:
		return OpUnion
	case *sourceFixture:
		return sourceOperation(x.src)
	case *groupFixture:
		return sourceOperation(x.src)
	default:
		return OpSetup
	}
}

func sourceOperation(src Source) OperationKind {
	switch src.kind {
	case SourceCase:
		return OpCase
	case SourceLazy:
		return OpLazy
	default:
		return OpSetup
	}
}
