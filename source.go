package cases

import "fmt"

// SourceKind tells how a parameter source produces its value.
type SourceKind int

const (
	// SourceLiteral is a constant value.
	SourceLiteral SourceKind = iota
	// SourceLazy is computed at test time by a LazyValue.
	SourceLazy
	// SourceCase is computed at test time by a case body.
	SourceCase
	// SourceFixture is a reference to a fixture resolved through the fixture graph.
	SourceFixture
)

func (k SourceKind) String() string {
	switch k {
	case SourceLiteral:
		return "literal"
	case SourceLazy:
		return "lazy"
	case SourceCase:
		return "case"
	case SourceFixture:
		return "fixture"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Source is one normalized contributor to a parametrized argument group.
type Source struct {
	kind    SourceKind
	value   any
	lazy    func(*ResolveCtx) (any, error)
	kase    *Case
	fixture AnyFixture
	id      string
	marks   []Mark
}

func (s Source) Kind() SourceKind    { return s.kind }
func (s Source) Value() any          { return s.value }
func (s Source) Case() *Case         { return s.kase }
func (s Source) Fixture() AnyFixture { return s.fixture }
func (s Source) Marks() []Mark       { return s.marks }

// fixtureBacked reports whether the source must go through a fixture union.
func (s Source) fixtureBacked() bool {
	return s.kind == SourceFixture || (s.kind == SourceCase && s.kase.needsFixtures())
}

func (s Source) describe() string {
	switch s.kind {
	case SourceCase:
		return "case " + s.kase.ID()
	case SourceFixture:
		return "fixture " + s.fixture.Name()
	case SourceLazy:
		if s.id != "" {
			return "lazy value " + s.id
		}
		return "lazy value"
	default:
		return fmt.Sprintf("value %v", s.value)
	}
}

// FixtureRef marks a fixture used as a parameter value.
type FixtureRef struct {
	fixture AnyFixture
}

// Ref references a fixture (or a union) as a parameter value.
func Ref(f AnyFixture) FixtureRef {
	return FixtureRef{fixture: f}
}

// LazyValue is a parameter value computed when the invocation runs.
type LazyValue struct {
	fn    func(*ResolveCtx) (any, error)
	id    string
	marks []Mark
}

// Lazy creates a value computed at test time, once per invocation.
func Lazy(fn func(*ResolveCtx) (any, error), id string, marks ...Mark) *LazyValue {
	return &LazyValue{fn: fn, id: id, marks: marks}
}

// normalizeSource turns one raw declaration entry into one or more sources.
func normalizeSource(raw any) ([]Source, error) {
	switch x := raw.(type) {
	case *Selection:
		selected, err := x.Cases()
		if err != nil {
			return nil, err
		}
		out := make([]Source, 0, len(selected))
		for _, c := range selected {
			out = append(out, caseSource(c))
		}
		return out, nil
	case *Case:
		if x == nil {
			return nil, fmt.Errorf("%w: nil case", ErrCollection)
		}
		variants := x.variants()
		out := make([]Source, 0, len(variants))
		for _, c := range variants {
			out = append(out, caseSource(c))
		}
		return out, nil
	case FixtureRef:
		if x.fixture == nil {
			return nil, fmt.Errorf("%w: reference to nil fixture", ErrCollection)
		}
		return []Source{{kind: SourceFixture, fixture: x.fixture, id: x.fixture.Name()}}, nil
	case AnyFixture:
		return normalizeSource(Ref(x))
	case *LazyValue:
		return []Source{{kind: SourceLazy, lazy: x.fn, id: x.id, marks: x.marks}}, nil
	case Param:
		inner, err := normalizeSource(x.Value)
		if err != nil {
			return nil, err
		}
		if len(inner) != 1 {
			return nil, fmt.Errorf("%w: a Param must wrap exactly one source, got %d", ErrCollection, len(inner))
		}
		src := inner[0]
		if x.ID != "" {
			src.id = x.ID
		}
		src.marks = append(append([]Mark(nil), src.marks...), x.Marks...)
		return []Source{src}, nil
	default:
		return []Source{{kind: SourceLiteral, value: raw}}, nil
	}
}

func caseSource(c *Case) Source {
	return Source{kind: SourceCase, kase: c, id: c.ID(), marks: c.Marks()}
}

func asTuple(v any) (Tuple, bool) {
	switch x := v.(type) {
	case Tuple:
		return x, true
	case []any:
		return Tuple(x), true
	}
	return nil, false
}

// sourceFixture adapts a non-fixture source into a union alternative.
type sourceFixture struct {
	name string
	src  Source
	tags map[any]any
}

func newSourceFixture(name string, src Source) *sourceFixture {
	return &sourceFixture{name: name, src: src, tags: make(map[any]any)}
}

func (f *sourceFixture) Name() string          { return f.name }
func (f *sourceFixture) Scope() FixtureScope   { return ScopeFunction }
func (f *sourceFixture) Params() []Param       { return nil }
func (f *sourceFixture) SetTag(tag any, v any) { f.tags[tag] = v }
func (f *sourceFixture) String() string        { return f.name }

func (f *sourceFixture) GetTag(tag any) (any, bool) {
	v, ok := f.tags[tag]
	return v, ok
}

func (f *sourceFixture) Deps() []AnyFixture {
	if f.src.kind == SourceCase {
		return f.src.kase.Requires()
	}
	return nil
}

func (f *sourceFixture) produce(ctx *ResolveCtx) (any, error) {
	return evalSource(ctx, f.src)
}

func evalSource(ctx *ResolveCtx, src Source) (any, error) {
	switch src.kind {
	case SourceLazy:
		return src.lazy(ctx)
	case SourceCase:
		return src.kase.call(ctx)
	case SourceFixture:
		return ctx.exec.resolve(src.fixture)
	default:
		return src.value, nil
	}
}
