package cases

import (
	"fmt"
	"log/slog"
	"strings"
)

// Declaration describes one parametrized argument group of a test: its argnames
// (a single name or a comma-joined group) and the raw sources of its values.
type Declaration struct {
	raw      string
	argnames []string
	sources  []any
	ids      []string
	idFunc   func(any) string
	idTmpl   string
	style    IDStyle
	styleSet bool
}

// Parametrize declares an argument group. Sources may be literals, Tuple values for
// multi-name groups, Param, *Case, *Selection, *LazyValue, fixtures or Ref(fixture).
func Parametrize(argnames string, sources ...any) *Declaration {
	parts := strings.Split(argnames, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return &Declaration{
		raw:      argnames,
		argnames: names,
		sources:  sources,
	}
}

// IDs overrides the ids of the sources, by position after expansion of selections.
func (d *Declaration) IDs(ids ...string) *Declaration {
	d.ids = ids
	return d
}

// IDFunc derives ids of literal values that have no explicit id.
func (d *Declaration) IDFunc(fn func(any) string) *Declaration {
	d.idFunc = fn
	return d
}

// IDTemplate derives ids of literal values from a text/template with the sprig
// function map. The data is a map from argname to value, for example
// `{{ .a }}-{{ .b | upper }}`.
func (d *Declaration) IDTemplate(tmpl string) *Declaration {
	d.idTmpl = tmpl
	return d
}

// Style sets how union alternatives of this group appear in ids.
func (d *Declaration) Style(style IDStyle) *Declaration {
	d.style = style
	d.styleSet = true
	return d
}

// Argnames returns the names of the group, in declaration order.
func (d *Declaration) Argnames() []string {
	return append([]string(nil), d.argnames...)
}

func (d *Declaration) String() string {
	return strings.Join(d.argnames, ",")
}

func (d *Declaration) applyTest(t *Test) {
	t.decls = append(t.decls, d)
}

// ParamSet is one entry of a directly parametrized group.
type ParamSet struct {
	ID     string
	Marks  []Mark
	Source Source
}

// Parametrization is the compiled form of a declaration. Exactly one of Sets (direct
// path) and Union (fixture path) drives the expansion.
type Parametrization struct {
	Argnames []string
	Raw      string
	Label    string
	Sets     []*ParamSet
	Union    *Union
}

// Width is the number of values each entry provides.
func (p *Parametrization) Width() int {
	return len(p.Argnames)
}

// IDs returns the per-entry id fragments in order.
func (p *Parametrization) IDs() []string {
	if p.Union != nil {
		out := make([]string, len(p.Union.alts))
		for i := range p.Union.alts {
			out[i] = p.Union.Fragment(i)
		}
		return out
	}
	out := make([]string, len(p.Sets))
	for i, s := range p.Sets {
		out[i] = s.ID
	}
	return out
}

// Compiler turns declarations into parametrizations.
type Compiler struct {
	settings Settings
	logger   *slog.Logger
}

// NewCompiler creates a compiler. A nil logger discards.
func NewCompiler(settings Settings, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = discardLogger()
	}
	return &Compiler{settings: settings, logger: logger}
}

// Compile normalizes the sources of d and decides between the direct path and a
// fixture union. Filters run first, so filtered-out cases never become sources.
func (c *Compiler) Compile(testName string, d *Declaration) (*Parametrization, error) {
	if d == nil || len(d.argnames) == 0 {
		return nil, fmt.Errorf("%w: %s declares no argument name", ErrCollection, testName)
	}
	label := strings.Join(d.argnames, "_")
	width := len(d.argnames)

	var sources []Source
	for _, raw := range d.sources {
		srcs, err := normalizeSource(raw)
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: %w", testName, d, err)
		}
		sources = append(sources, srcs...)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s[%s] has no parameter source", ErrEmptyParametrization, testName, d)
	}
	if len(d.ids) > 0 && len(d.ids) != len(sources) {
		return nil, fmt.Errorf("%w: %s[%s] has %d sources but %d ids", ErrCollection, testName, d, len(sources), len(d.ids))
	}

	var tmpl *idTemplate
	if d.idTmpl != "" {
		t, err := parseIDTemplate(d.idTmpl)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%s]: %v", ErrCollection, testName, d, err)
		}
		tmpl = t
	}

	ids := make([]string, len(sources))
	union := false
	for i, src := range sources {
		if src.kind == SourceLiteral && width > 1 {
			tup, ok := asTuple(src.value)
			if !ok || len(tup) != width {
				got := 1
				if ok {
					got = len(tup)
				}
				return nil, &ArityError{Source: src.describe(), Argnames: d.argnames, Want: width, Got: got}
			}
		}
		id, err := c.sourceID(d, tmpl, src, label, i)
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: %w", testName, d, err)
		}
		ids[i] = id
		if src.fixtureBacked() {
			union = true
		}
	}
	ids = uniqueIDs(ids)

	p := &Parametrization{
		Argnames: d.Argnames(),
		Raw:      d.raw,
		Label:    label,
	}
	if union {
		style := c.settings.IDStyle
		if d.styleSet {
			style = d.style
		}
		p.Union = newUnion(testName+"_"+label, label, p.Argnames, sources, ids, style)
		c.logger.Debug("parametrization compiled",
			"test", testName,
			"argnames", d.String(),
			"union", p.Union.Name(),
			"alternatives", len(sources),
		)
		return p, nil
	}

	p.Sets = make([]*ParamSet, len(sources))
	for i, src := range sources {
		p.Sets[i] = &ParamSet{ID: ids[i], Marks: src.marks, Source: src}
	}
	c.logger.Debug("parametrization compiled",
		"test", testName,
		"argnames", d.String(),
		"sets", len(sources),
	)
	return p, nil
}

func (c *Compiler) sourceID(d *Declaration, tmpl *idTemplate, src Source, label string, i int) (string, error) {
	if len(d.ids) > 0 {
		return d.ids[i], nil
	}
	if src.id != "" || src.kind != SourceLiteral {
		return sourceID(src, label, i), nil
	}
	if d.idFunc != nil {
		if id := d.idFunc(src.value); id != "" {
			return id, nil
		}
	}
	if tmpl != nil {
		values := Tuple{src.value}
		if len(d.argnames) > 1 {
			values, _ = asTuple(src.value)
		}
		return tmpl.render(d.argnames, values)
	}
	return sourceID(src, label, i), nil
}
