package cases

import "fmt"

//go:generate go run ./internal/codegen -w

// FixtureScope controls how long a fixture value lives.
type FixtureScope int

const (
	// ScopeFunction fixtures are created once per invocation.
	ScopeFunction FixtureScope = iota
	// ScopeSession fixtures are created once per session (and parameter).
	ScopeSession
)

func (s FixtureScope) String() string {
	switch s {
	case ScopeFunction:
		return "function"
	case ScopeSession:
		return "session"
	default:
		return fmt.Sprintf("FixtureScope(%d)", int(s))
	}
}

// AnyFixture is the type-erased view of a fixture used by the collector and the
// resolver. Fixtures are compared by identity.
type AnyFixture interface {
	Name() string
	Scope() FixtureScope
	Deps() []AnyFixture
	Params() []Param
	GetTag(tag any) (any, bool)
	SetTag(tag any, val any)

	produce(ctx *ResolveCtx) (any, error)
}

type fixtureKind int

const (
	kindValue fixtureKind = iota
	kindResource
)

// Fixture is a named value provider. A value fixture runs its factory once per
// scope instance; a resource fixture additionally releases the value at teardown.
type Fixture[T any] struct {
	name    string
	scope   FixtureScope
	deps    []AnyFixture
	params  []Param
	kind    fixtureKind
	factory func(*ResolveCtx) (T, error)
	release func(T) error
	tags    map[any]any
}

type fixtureConfig struct {
	scope  FixtureScope
	deps   []AnyFixture
	params []Param
	tags   map[any]any
}

// FixtureOption is a modifier for fixtures
type FixtureOption func(*fixtureConfig)

// WithScope sets the fixture scope (default ScopeFunction).
func WithScope(scope FixtureScope) FixtureOption {
	return func(cfg *fixtureConfig) {
		cfg.scope = scope
	}
}

// DependsOn declares dependencies read through Value or ValueOf inside the factory.
// A NotUsed dependency turns the fixture into NotUsed without running it.
func DependsOn(deps ...AnyFixture) FixtureOption {
	return func(cfg *fixtureConfig) {
		cfg.deps = append(cfg.deps, deps...)
	}
}

// WithParams parametrizes the fixture. Each value may be a Param to set its id or
// marks. The current value is available through ResolveCtx.Param.
func WithParams(values ...any) FixtureOption {
	return func(cfg *fixtureConfig) {
		for _, v := range values {
			if p, ok := v.(Param); ok {
				cfg.params = append(cfg.params, p)
				continue
			}
			cfg.params = append(cfg.params, Param{Value: v})
		}
	}
}

// WithTag returns an option that sets a tag on a fixture
func WithTag[T any](tag Tag[T], val T) FixtureOption {
	return func(cfg *fixtureConfig) {
		cfg.tags[tag] = val
	}
}

func newFixture[T any](name string, kind fixtureKind, factory func(*ResolveCtx) (T, error), release func(T) error, deps []AnyFixture, opts []FixtureOption) *Fixture[T] {
	cfg := &fixtureConfig{
		scope: ScopeFunction,
		deps:  deps,
		tags:  make(map[any]any),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Fixture[T]{
		name:    name,
		scope:   cfg.scope,
		deps:    cfg.deps,
		params:  cfg.params,
		kind:    kind,
		factory: factory,
		release: release,
		tags:    cfg.tags,
	}
}

// Provide creates a value fixture.
func Provide[T any](name string, factory func(*ResolveCtx) (T, error), opts ...FixtureOption) *Fixture[T] {
	return newFixture(name, kindValue, factory, nil, nil, opts)
}

// ProvideResource creates a fixture whose value is acquired at setup and released
// at teardown of its scope, after every fixture that depends on it.
func ProvideResource[T any](name string, acquire func(*ResolveCtx) (T, error), release func(T) error, opts ...FixtureOption) *Fixture[T] {
	return newFixture(name, kindResource, acquire, release, nil, opts)
}

func (f *Fixture[T]) Name() string          { return f.name }
func (f *Fixture[T]) Scope() FixtureScope   { return f.scope }
func (f *Fixture[T]) Deps() []AnyFixture    { return f.deps }
func (f *Fixture[T]) Params() []Param       { return f.params }
func (f *Fixture[T]) IsResource() bool      { return f.kind == kindResource }
func (f *Fixture[T]) SetTag(tag any, v any) { f.tags[tag] = v }

func (f *Fixture[T]) GetTag(tag any) (any, bool) {
	val, ok := f.tags[tag]
	return val, ok
}

func (f *Fixture[T]) String() string {
	return f.name
}

func (f *Fixture[T]) produce(ctx *ResolveCtx) (any, error) {
	v, err := f.factory(ctx)
	if err != nil {
		return nil, err
	}
	if f.kind == kindResource && f.release != nil {
		ctx.OnCleanup(func() error {
			return f.release(v)
		})
	}
	return v, nil
}

// Value resolves a dependency from inside a fixture, case or lazy value body.
func Value[T any](ctx *ResolveCtx, f *Fixture[T]) (T, error) {
	v, err := ValueOf(ctx, f)
	if err != nil {
		var zero T
		return zero, err
	}
	return SafeTypeAssertion[T](v)
}

// ValueOf resolves any fixture, including unions, from inside a body.
func ValueOf(ctx *ResolveCtx, f AnyFixture) (any, error) {
	return ctx.exec.value(f)
}
