package cases

import (
	"fmt"
	"strings"
)

// Alternative is one branch of a fixture union.
type Alternative struct {
	ID      string
	Marks   []Mark
	Fixture AnyFixture
	Case    *Case
	source  Source
}

// Union is a synthetic fixture standing for exactly one of its alternatives per
// invocation. Only the active alternative is resolved; everything reachable only
// through the other alternatives resolves to NotUsed.
type Union struct {
	name     string
	label    string
	argnames []string
	alts     []*Alternative
	deps     []AnyFixture
	style    IDStyle
	tags     map[any]any
}

type unionConfig struct {
	ids   []string
	style IDStyle
}

// UnionOption is a modifier for unions
type UnionOption func(*unionConfig)

// UnionIDs overrides the alternative ids, by position.
func UnionIDs(ids ...string) UnionOption {
	return func(cfg *unionConfig) {
		cfg.ids = ids
	}
}

// UnionStyle sets how alternatives appear in invocation ids.
func UnionStyle(style IDStyle) UnionOption {
	return func(cfg *unionConfig) {
		cfg.style = style
	}
}

// FixtureUnion creates a standalone union. Alternatives are fixtures (or Ref),
// cases, lazy values or literals; non-fixture alternatives are wrapped as trivial
// fixtures.
func FixtureUnion(name string, alternatives []any, opts ...UnionOption) (*Union, error) {
	cfg := &unionConfig{style: IDStyleExplicit}
	for _, opt := range opts {
		opt(cfg)
	}

	var sources []Source
	for _, raw := range alternatives {
		srcs, err := normalizeSource(raw)
		if err != nil {
			return nil, fmt.Errorf("union %s: %w", name, err)
		}
		sources = append(sources, srcs...)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: union %s has no alternative", ErrEmptyParametrization, name)
	}

	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = sourceID(src, name, i)
	}
	if len(cfg.ids) > 0 {
		if len(cfg.ids) != len(sources) {
			return nil, fmt.Errorf("%w: union %s has %d alternatives but %d ids", ErrCollection, name, len(sources), len(cfg.ids))
		}
		copy(ids, cfg.ids)
	}
	return newUnion(name, name, []string{name}, sources, uniqueIDs(ids), cfg.style), nil
}

// MustFixtureUnion is like FixtureUnion but panics on error.
func MustFixtureUnion(name string, alternatives []any, opts ...UnionOption) *Union {
	u, err := FixtureUnion(name, alternatives, opts...)
	if err != nil {
		panic(err)
	}
	return u
}

func newUnion(name, label string, argnames []string, sources []Source, ids []string, style IDStyle) *Union {
	u := &Union{
		name:     name,
		label:    label,
		argnames: argnames,
		style:    style,
		tags:     make(map[any]any),
	}
	seen := make(map[AnyFixture]bool)
	for i, src := range sources {
		alt := &Alternative{ID: ids[i], Marks: src.marks, source: src}
		switch src.kind {
		case SourceFixture:
			alt.Fixture = src.fixture
		case SourceCase:
			alt.Case = src.kase
			alt.Fixture = newSourceFixture(name+"_"+ids[i], src)
		default:
			alt.Fixture = newSourceFixture(name+"_"+ids[i], src)
		}
		u.alts = append(u.alts, alt)
		if !seen[alt.Fixture] {
			seen[alt.Fixture] = true
			u.deps = append(u.deps, alt.Fixture)
		}
	}
	return u
}

func (u *Union) Name() string                 { return u.name }
func (u *Union) Scope() FixtureScope          { return ScopeFunction }
func (u *Union) Deps() []AnyFixture           { return u.deps }
func (u *Union) Alternatives() []*Alternative { return u.alts }
func (u *Union) Style() IDStyle               { return u.style }
func (u *Union) SetTag(tag any, v any)        { u.tags[tag] = v }
func (u *Union) String() string               { return u.name }

func (u *Union) GetTag(tag any) (any, bool) {
	v, ok := u.tags[tag]
	return v, ok
}

// Params exposes the union as a fixture parametrized over its alternative index.
func (u *Union) Params() []Param {
	out := make([]Param, len(u.alts))
	for i, alt := range u.alts {
		out[i] = Param{Value: i, ID: u.Fragment(i), Marks: alt.Marks}
	}
	return out
}

// Fragment is the id fragment contributed when alternative i is active.
func (u *Union) Fragment(i int) string {
	return unionFragment(u.style, u.label, u.alts[i].ID)
}

func (u *Union) produce(ctx *ResolveCtx) (any, error) {
	idx, ok := ctx.exec.inv.active[u]
	if !ok || idx < 0 || idx >= len(u.alts) {
		return nil, fmt.Errorf("%w: union %s has no active alternative in %s", ErrUnionInvariant, u.name, ctx.exec.inv.ID)
	}
	alt := u.alts[idx]
	v, err := ctx.exec.resolve(alt.Fixture)
	if err != nil {
		return nil, err
	}
	if IsNotUsed(v) {
		return nil, fmt.Errorf("%w: active alternative %s of union %s resolved to NOT_USED", ErrUnionInvariant, alt.ID, u.name)
	}
	ctx.exec.logger.Debug("union resolved",
		"union", u.name,
		"active", alt.ID,
		"inactive", strings.Join(u.inactiveIDs(idx), ","),
	)
	return v, nil
}

func (u *Union) inactiveIDs(active int) []string {
	out := make([]string, 0, len(u.alts)-1)
	for i, alt := range u.alts {
		if i != active {
			out = append(out, alt.ID)
		}
	}
	return out
}

// sourceID derives the id of a source before explicit overrides and dedupe.
func sourceID(src Source, label string, index int) string {
	if src.id != "" {
		return src.id
	}
	if src.kind == SourceLiteral {
		if id, ok := valueID(src.value); ok {
			return id
		}
	}
	return fmt.Sprintf("%s%d", label, index)
}
