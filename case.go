package cases

import (
	"fmt"
	"reflect"
	"strings"
)

// CaseFunc is the normalized body of a case.
type CaseFunc func(*ResolveCtx) (any, error)

// Case is a function producing one dataset for a test, plus its metadata.
type Case struct {
	id       string
	name     string
	fn       CaseFunc
	tags     []any
	marks    []Mark
	requires []AnyFixture
	params   map[string]any
	grid     []caseParam
}

type caseParam struct {
	name   string
	values []any
}

type caseMeta struct {
	id       string
	tags     []any
	marks    []Mark
	requires []AnyFixture
	grid     []caseParam
}

// CaseOption attaches metadata to a case.
type CaseOption func(*caseMeta)

// WithID overrides the id derived from the function name.
func WithID(id string) CaseOption {
	return func(m *caseMeta) {
		m.id = id
	}
}

// WithTags attaches filter tags. Tags are compared with ==, so they must be comparable.
func WithTags(tags ...any) CaseOption {
	return func(m *caseMeta) {
		m.tags = append(m.tags, tags...)
	}
}

// WithMarks attaches marks forwarded to every invocation using the case.
func WithMarks(marks ...Mark) CaseOption {
	return func(m *caseMeta) {
		m.marks = append(m.marks, marks...)
	}
}

// Requires declares fixtures the case body reads with Value or ValueOf. A case with
// requirements is wired through a fixture union.
func Requires(fixtures ...AnyFixture) CaseOption {
	return func(m *caseMeta) {
		m.requires = append(m.requires, fixtures...)
	}
}

// WithCaseParams parametrizes the case itself. Each value produces a variant with id
// "<id>-<name>=<value id>"; several options combine as a cross product.
func WithCaseParams(name string, values ...any) CaseOption {
	return func(m *caseMeta) {
		m.grid = append(m.grid, caseParam{name: name, values: values})
	}
}

// NewCase builds a case from a function. See the package documentation for the
// accepted function shapes.
func NewCase(id string, fn any, opts ...CaseOption) (*Case, error) {
	body, err := toCaseFunc(fn)
	if err != nil {
		return nil, fmt.Errorf("%w: case %q: %v", ErrCollection, id, err)
	}
	meta := &caseMeta{id: id}
	for _, opt := range opts {
		opt(meta)
	}
	if meta.id == "" {
		return nil, fmt.Errorf("%w: case without id", ErrCollection)
	}
	return newCase(meta, funcName(fn), body), nil
}

// MustCase is like NewCase but panics on error.
func MustCase(id string, fn any, opts ...CaseOption) *Case {
	c, err := NewCase(id, fn, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func newCase(meta *caseMeta, name string, body CaseFunc) *Case {
	return &Case{
		id:       meta.id,
		name:     name,
		fn:       body,
		tags:     meta.tags,
		marks:    meta.marks,
		requires: meta.requires,
		grid:     meta.grid,
	}
}

func (c *Case) ID() string             { return c.id }
func (c *Case) Name() string           { return c.name }
func (c *Case) Tags() []any            { return c.tags }
func (c *Case) Marks() []Mark          { return c.marks }
func (c *Case) Requires() []AnyFixture { return c.requires }
func (c *Case) Func() CaseFunc         { return c.fn }
func (c *Case) String() string         { return c.id }
func (c *Case) needsFixtures() bool    { return len(c.requires) > 0 }
func (c *Case) Params() map[string]any { return cloneParams(c.params) }
func (c *Case) call(ctx *ResolveCtx) (any, error) {
	ctx.caseParams = c.params
	return c.fn(ctx)
}

// variants expands a parametrized case; a plain case is its own single variant.
func (c *Case) variants() []*Case {
	if len(c.grid) == 0 {
		return []*Case{c}
	}

	type partial struct {
		ids    []string
		params map[string]any
	}
	acc := []partial{{params: map[string]any{}}}
	for _, p := range c.grid {
		next := make([]partial, 0, len(acc)*len(p.values))
		for _, prev := range acc {
			for i, v := range p.values {
				id, ok := valueID(v)
				if !ok {
					id = fmt.Sprintf("%s%d", p.name, i)
				}
				params := cloneParams(prev.params)
				params[p.name] = v
				ids := append(append([]string(nil), prev.ids...), p.name+"="+id)
				next = append(next, partial{ids: ids, params: params})
			}
		}
		acc = next
	}

	out := make([]*Case, 0, len(acc))
	for _, p := range acc {
		out = append(out, &Case{
			id:       c.id + "-" + strings.Join(p.ids, "-"),
			name:     c.name,
			fn:       c.fn,
			tags:     c.tags,
			marks:    c.marks,
			requires: c.requires,
			params:   p.params,
		})
	}
	return out
}

func cloneParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var (
	resolveCtxType = reflect.TypeOf((*ResolveCtx)(nil))
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
)

func toCaseFunc(fn any) (CaseFunc, error) {
	switch f := fn.(type) {
	case nil:
		return nil, fmt.Errorf("nil case function")
	case CaseFunc:
		return f, nil
	case func(*ResolveCtx) (any, error):
		return f, nil
	case func() (any, error):
		return func(*ResolveCtx) (any, error) { return f() }, nil
	case func() any:
		return func(*ResolveCtx) (any, error) { return f(), nil }, nil
	}
	return reflectCaseFunc(reflect.ValueOf(fn))
}

// reflectCaseFunc wraps any function taking nothing or a *ResolveCtx. Several results
// become a Tuple; a trailing error result is the case error.
func reflectCaseFunc(v reflect.Value) (CaseFunc, error) {
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", t)
	}
	if t.IsVariadic() || t.NumIn() > 1 || (t.NumIn() == 1 && t.In(0) != resolveCtxType) {
		return nil, fmt.Errorf("unsupported case signature %s", t)
	}

	n := t.NumOut()
	withErr := n > 0 && t.Out(n-1) == errorType
	width := n
	if withErr {
		width--
	}
	if width == 0 {
		return nil, fmt.Errorf("case signature %s returns no value", t)
	}

	takesCtx := t.NumIn() == 1
	return func(ctx *ResolveCtx) (any, error) {
		var in []reflect.Value
		if takesCtx {
			in = []reflect.Value{reflect.ValueOf(ctx)}
		}
		out := v.Call(in)
		if withErr {
			if err, _ := out[n-1].Interface().(error); err != nil {
				return nil, err
			}
		}
		if width == 1 {
			return out[0].Interface(), nil
		}
		tup := make(Tuple, width)
		for i := range tup {
			tup[i] = out[i].Interface()
		}
		return tup, nil
	}, nil
}
