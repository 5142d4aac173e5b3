package cases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// InvocationStatus is the lifecycle state of an execution.
type InvocationStatus int

const (
	StatusRunning InvocationStatus = iota
	StatusPassed
	StatusFailed
	StatusSkipped
	StatusXFailed
	StatusXPassed
	StatusCancelled
)

func (s InvocationStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusXFailed:
		return "xfailed"
	case StatusXPassed:
		return "xpassed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("InvocationStatus(%d)", int(s))
	}
}

var (
	invocationIDTag = NewTag[uuid.UUID]("invocation.id")
	startTimeTag    = NewTag[time.Time]("invocation.start_time")
	endTimeTag      = NewTag[time.Time]("invocation.end_time")
	statusTag       = NewTag[InvocationStatus]("invocation.status")
	errorTag        = NewTag[error]("invocation.error")
	panicStackTag   = NewTag[[]byte]("invocation.panic_stack")
)

func InvocationID() Tag[uuid.UUID]  { return invocationIDTag }
func StartTime() Tag[time.Time]     { return startTimeTag }
func EndTime() Tag[time.Time]       { return endTimeTag }
func Status() Tag[InvocationStatus] { return statusTag }
func ErrorTag() Tag[error]          { return errorTag }
func PanicStack() Tag[[]byte]       { return panicStackTag }

// Execution is the live context of one invocation. It memoizes every value it
// resolves and owns the function-scoped teardown stack. An execution is used by
// one goroutine at a time.
type Execution struct {
	id      uuid.UUID
	session *Session
	inv     *Invocation
	ctx     context.Context
	logger  *slog.Logger
	exts    []Extension

	memo      map[AnyFixture]any
	groups    map[*Parametrization]any
	resolving map[AnyFixture]bool
	cleanups  []cleanupEntry
	data      map[any]any
	current   CurrentCases

	setupDone bool
	setupErr  error
	failure   error
	closed    bool
	closeErr  error
}

// Begin starts an execution of inv. The context is checked before every body runs.
func (s *Session) Begin(ctx context.Context, inv *Invocation) (*Execution, error) {
	if inv == nil {
		return nil, fmt.Errorf("%w: nil invocation", ErrCollection)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id := uuid.New()
	e := &Execution{
		id:        id,
		session:   s,
		inv:       inv,
		ctx:       ctx,
		logger:    s.logger.With("invocation", inv.FullName(), "invocation_id", id.String()),
		exts:      s.snapshotExtensions(),
		memo:      make(map[AnyFixture]any),
		groups:    make(map[*Parametrization]any),
		resolving: make(map[AnyFixture]bool),
		data:      make(map[any]any),
	}
	e.Set(invocationIDTag, id)
	e.Set(startTimeTag, time.Now())
	e.Set(statusTag, StatusRunning)

	for _, ext := range e.exts {
		if err := ext.OnInvocationStart(e); err != nil {
			e.Set(statusTag, StatusFailed)
			e.Set(errorTag, err)
			return e, err
		}
	}
	return e, nil
}

func (e *Execution) ID() uuid.UUID            { return e.id }
func (e *Execution) Invocation() *Invocation  { return e.inv }
func (e *Execution) Session() *Session        { return e.session }
func (e *Execution) Context() context.Context { return e.ctx }
func (e *Execution) Logger() *slog.Logger     { return e.logger }

func (e *Execution) Set(tag any, value any) {
	e.data[tag] = value
}

func (e *Execution) Get(tag any) (any, bool) {
	v, ok := e.data[tag]
	return v, ok
}

// Lookup searches the execution data, then the session tags.
func (e *Execution) Lookup(tag any) (any, bool) {
	if v, ok := e.Get(tag); ok {
		return v, true
	}
	return e.session.GetTag(tag)
}

// Setup resolves every fixture of the test closure, dependencies first, and every
// declared argument group. Fixtures on inactive union branches become NotUsed
// without running. Setup is idempotent.
func (e *Execution) Setup() error {
	if e.setupDone {
		return e.setupErr
	}
	e.setupDone = true
	e.setupErr = e.setup()
	if e.setupErr != nil {
		e.Fail(e.setupErr)
	}
	return e.setupErr
}

func (e *Execution) setup() error {
	for _, f := range e.inv.plan.graph.order {
		if _, err := e.resolve(f); err != nil {
			return err
		}
	}
	for _, p := range e.inv.plan.Parametrizations {
		if _, err := e.group(p); err != nil {
			return err
		}
	}
	return nil
}

// Arg returns the value bound to one argument name. Values of multi-name groups
// are unpacked by position; a value of the wrong width is an ArityError.
func (e *Execution) Arg(name string) (any, error) {
	ref, ok := e.inv.plan.args[name]
	if !ok {
		return nil, fmt.Errorf("%w %q in %s", ErrUnknownArg, name, e.inv.FullName())
	}
	v, err := e.group(ref.param)
	if err != nil {
		return nil, err
	}
	if ref.param.Width() == 1 {
		return v, nil
	}
	return v.(Tuple)[ref.pos], nil
}

// Args returns the values of every declared argument name.
func (e *Execution) Args() (map[string]any, error) {
	out := make(map[string]any, len(e.inv.plan.args))
	for name := range e.inv.plan.args {
		v, err := e.Arg(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Arg returns a typed argument value.
func Arg[T any](e *Execution, name string) (T, error) {
	v, err := e.Arg(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return SafeTypeAssertion[T](v)
}

// Get resolves a fixture from the test body.
func Get[T any](e *Execution, f *Fixture[T]) (T, error) {
	v, err := e.value(f)
	if err != nil {
		var zero T
		return zero, err
	}
	return SafeTypeAssertion[T](v)
}

// group evaluates an argument group once per execution and checks its width.
func (e *Execution) group(p *Parametrization) (any, error) {
	if v, ok := e.groups[p]; ok {
		return v, nil
	}

	var (
		v   any
		err error
		src Source
	)
	if p.Union != nil {
		v, err = e.value(p.Union)
		if idx, ok := e.inv.active[p.Union]; ok {
			src = p.Union.alts[idx].source
		}
	} else {
		idx, ok := e.inv.sets[p]
		if !ok {
			return nil, fmt.Errorf("%w: no entry selected for %s in %s", ErrUnionInvariant, p.Raw, e.inv.FullName())
		}
		src = p.Sets[idx].Source
		v, err = e.produce(&groupFixture{name: p.Label + "[" + p.Sets[idx].ID + "]", src: src}, nil, false)
	}
	if err != nil {
		return nil, err
	}

	if width := p.Width(); width > 1 {
		tup, ok := asTuple(v)
		if !ok || len(tup) != width {
			got := 1
			if ok {
				got = len(tup)
			}
			return nil, &ArityError{Source: src.describe(), Argnames: p.Argnames, Want: width, Got: got}
		}
		v = tup
	}
	e.groups[p] = v
	return v, nil
}

// value resolves f for a consumer that needs a real value.
func (e *Execution) value(f AnyFixture) (any, error) {
	v, err := e.resolve(f)
	if err != nil {
		return nil, err
	}
	if IsNotUsed(v) {
		return nil, fmt.Errorf("%w: fixture %s is not used in %s", ErrNotUsedLeak, f.Name(), e.inv.FullName())
	}
	return v, nil
}

// resolve returns the memoized value of f, NotUsed for fixtures on inactive
// branches, or runs the body after its dependencies.
func (e *Execution) resolve(f AnyFixture) (any, error) {
	if v, ok := e.memo[f]; ok {
		return v, nil
	}
	if e.inv.notUsed[f] {
		e.memo[f] = NotUsed
		e.logger.Debug("fixture not used", "fixture", f.Name())
		return NotUsed, nil
	}
	if e.resolving[f] {
		return nil, fmt.Errorf("%w: %s requested while being resolved", ErrCycle, f.Name())
	}
	e.resolving[f] = true
	defer delete(e.resolving, f)

	// A union resolves only its active alternative.
	if _, isUnion := f.(*Union); !isUnion {
		for _, dep := range f.Deps() {
			v, err := e.resolve(dep)
			if err != nil {
				return nil, err
			}
			if IsNotUsed(v) {
				e.memo[f] = NotUsed
				e.logger.Debug("fixture not used", "fixture", f.Name(), "upstream", dep.Name())
				return NotUsed, nil
			}
		}
	}

	param, hasParam := any(nil), false
	if params := f.Params(); len(params) > 0 {
		if _, isUnion := f.(*Union); !isUnion {
			idx, ok := e.inv.params[f]
			if !ok {
				return nil, fmt.Errorf("%w: parametrized fixture %s is not part of %s", ErrCollection, f.Name(), e.inv.FullName())
			}
			param, hasParam = params[idx].Value, true
		}
	}

	var v any
	var err error
	if f.Scope() == ScopeSession {
		v, err = e.session.resolveShared(sessionKeyFor(f, e.inv.params), func() (any, []cleanupEntry, error) {
			return e.produceWithCleanups(f, param, hasParam)
		})
	} else {
		v, err = e.produce(f, param, hasParam)
	}
	if err != nil {
		return nil, err
	}
	e.memo[f] = v
	return v, nil
}

// produce runs a function-scoped body and keeps its cleanups on the execution.
func (e *Execution) produce(f AnyFixture, param any, hasParam bool) (any, error) {
	v, cleanups, err := e.produceWithCleanups(f, param, hasParam)
	e.cleanups = append(e.cleanups, cleanups...)
	return v, err
}

func (e *Execution) produceWithCleanups(f AnyFixture, param any, hasParam bool) (any, []cleanupEntry, error) {
	if err := e.ctx.Err(); err != nil {
		e.Set(statusTag, StatusCancelled)
		return nil, nil, err
	}

	rctx := &ResolveCtx{
		exec:     e,
		source:   f.Name(),
		param:    param,
		hasParam: hasParam,
	}
	op := &Operation{
		Kind:      operationKind(f),
		Fixture:   f,
		Execution: e,
	}

	next := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				e.Set(panicStackTag, stack)
				err = &ResolveError{
					Source:     f.Name(),
					Cause:      fmt.Errorf("panic: %v", r),
					Context:    string(op.Kind),
					StackTrace: stack,
				}
				for _, ext := range e.exts {
					if extErr := ext.OnPanic(e, op, r, stack); extErr != nil {
						err = errors.Join(err, extErr)
					}
				}
			}
		}()
		return f.produce(rctx)
	}

	// Apply extensions in reverse order (last registered wraps first)
	for i := len(e.exts) - 1; i >= 0; i-- {
		ext := e.exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(e.ctx, currentNext, op)
		}
	}

	v, err := next()
	cleanups := rctx.takeCleanups()
	if err != nil {
		err = wrapResolveError(f.Name(), op.Kind, err)
		for _, ext := range e.exts {
			ext.OnError(err, op, e)
		}
		return nil, cleanups, err
	}
	return v, cleanups, nil
}

// wrapResolveError attributes a body failure to its source once. Failures of
// dependencies, invariant violations and cancellation pass through.
func wrapResolveError(source string, kind OperationKind, err error) error {
	var re *ResolveError
	var ae *ArityError
	switch {
	case errors.As(err, &re), errors.As(err, &ae):
		return err
	case errors.Is(err, ErrUnionInvariant), errors.Is(err, ErrNotUsedLeak), errors.Is(err, ErrCycle):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return newResolveError(source, err, string(kind))
}

// Fail records a test failure. It decides the final status set by Close.
func (e *Execution) Fail(err error) {
	if err == nil || e.failure != nil {
		return
	}
	e.failure = err
	e.Set(errorTag, err)
}

// Close tears the execution down: cleanups run in reverse registration order,
// failures are reported to extensions and joined. Close is idempotent.
func (e *Execution) Close() error {
	if e.closed {
		return e.closeErr
	}
	e.closed = true

	var errs []error
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		entry := e.cleanups[i]
		if err := entry.fn(); err != nil {
			cleanupErr := &CleanupError{Source: entry.source, Err: err, Context: "invocation"}
			handled := false
			for _, ext := range e.exts {
				if ext.OnCleanupError(cleanupErr) {
					handled = true
					break
				}
			}
			if !handled {
				errs = append(errs, cleanupErr)
			}
		}
	}
	e.cleanups = nil
	e.memo = nil
	e.groups = nil

	e.Set(endTimeTag, time.Now())
	if status, _ := Status().GetFromExecution(e); status == StatusRunning {
		switch {
		case e.failure != nil && (errors.Is(e.failure, context.Canceled) || errors.Is(e.failure, context.DeadlineExceeded)):
			e.Set(statusTag, StatusCancelled)
		case e.failure != nil:
			e.Set(statusTag, StatusFailed)
		default:
			e.Set(statusTag, StatusPassed)
		}
	}

	err := errors.Join(errs...)
	for i := len(e.exts) - 1; i >= 0; i-- {
		if extErr := e.exts[i].OnInvocationEnd(e, e.failure); extErr != nil {
			err = errors.Join(err, extErr)
		}
	}
	e.closeErr = err
	return err
}

func (e *Execution) setStatus(s InvocationStatus) {
	e.Set(statusTag, s)
}

// groupFixture evaluates the selected entry of a directly parametrized group.
type groupFixture struct {
	name string
	src  Source
}

func (g *groupFixture) Name() string               { return g.name }
func (g *groupFixture) Scope() FixtureScope        { return ScopeFunction }
func (g *groupFixture) Deps() []AnyFixture         { return nil }
func (g *groupFixture) Params() []Param            { return nil }
func (g *groupFixture) GetTag(tag any) (any, bool) { return nil, false }
func (g *groupFixture) SetTag(tag any, val any)    {}

func (g *groupFixture) produce(ctx *ResolveCtx) (any, error) {
	return evalSource(ctx, g.src)
}
