package cases

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pumped-fn/pumped-cases/filters"
)

// Registry discovers case functions and owns their metadata. Metadata lives in a
// side-table keyed by function name, so case functions are never modified.
type Registry struct {
	mu     sync.RWMutex
	prefix string
	meta   map[string][]CaseOption
}

// RegistryOption is a modifier for registries
type RegistryOption func(*Registry)

// WithCasePrefix sets the name prefix identifying case methods (default "case",
// matched case-insensitively) and stripped from derived ids.
func WithCasePrefix(prefix string) RegistryOption {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// WithRegistrySettings takes the case prefix from settings. An empty prefix in
// settings keeps the current one.
func WithRegistrySettings(settings Settings) RegistryOption {
	return func(r *Registry) {
		if settings.CasePrefix != "" {
			r.prefix = settings.CasePrefix
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		prefix: DefaultSettings().CasePrefix,
		meta:   make(map[string][]CaseOption),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Annotate records metadata for fn. Functions, method expressions and method values
// of the same method share one entry. Later calls append to earlier ones.
func (r *Registry) Annotate(fn any, opts ...CaseOption) error {
	name := funcName(fn)
	if name == "" {
		return fmt.Errorf("%w: cannot annotate %T", ErrCollection, fn)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta[metaKey(name)] = append(r.meta[metaKey(name)], opts...)
	return nil
}

// MustAnnotate is like Annotate but panics on error.
func (r *Registry) MustAnnotate(fn any, opts ...CaseOption) {
	if err := r.Annotate(fn, opts...); err != nil {
		panic(err)
	}
}

// Collect discovers the cases of origin. Every call rescans the origin.
func (r *Registry) Collect(origin Origin) ([]*Case, error) {
	if origin == nil {
		return nil, fmt.Errorf("%w: nil origin", ErrCollection)
	}
	cands, err := origin.candidates(r.prefix)
	if err != nil {
		return nil, err
	}

	var out []*Case
	for _, cand := range cands {
		if cand.preset != nil {
			out = append(out, cand.preset.variants()...)
			continue
		}
		meta := &caseMeta{id: deriveID(cand.name, r.prefix)}
		r.mu.RLock()
		opts := r.meta[metaKey(cand.name)]
		r.mu.RUnlock()
		for _, opt := range opts {
			opt(meta)
		}
		out = append(out, newCase(meta, cand.name, cand.fn).variants()...)
	}
	return out, nil
}

// Select creates a declaration source expanding into the cases of origin that pass
// every Where filter.
func (r *Registry) Select(origin Origin, opts ...SelectOption) *Selection {
	s := &Selection{registry: r, origin: origin}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Selection is a lazily expanded, filtered set of cases.
type Selection struct {
	registry *Registry
	origin   Origin
	filter   filters.Filter
}

// SelectOption is a modifier for selections
type SelectOption func(*Selection)

// Where restricts a selection. Several Where options are combined with And.
func Where(f filters.Filter) SelectOption {
	return func(s *Selection) {
		if s.filter.IsZero() {
			s.filter = f
			return
		}
		s.filter = s.filter.And(f)
	}
}

// Cases collects and filters the selection. It distinguishes an origin without
// cases from a filter rejecting every case.
func (s *Selection) Cases() ([]*Case, error) {
	all, err := s.registry.Collect(s.origin)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCasesDiscovered, s.origin)
	}
	var kept []*Case
	for _, c := range all {
		if s.filter.Match(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w %s among %d case(s) of %s", ErrFilterResultEmpty, s.filter, len(all), s.origin)
	}
	return kept, nil
}

func (s *Selection) String() string {
	return fmt.Sprintf("cases of %s where %s", s.origin, s.filter)
}

// Origin is somewhere cases can be discovered.
type Origin interface {
	candidates(prefix string) ([]candidate, error)
	String() string
}

type candidate struct {
	name   string
	fn     CaseFunc
	preset *Case
	file   string
	line   int
}

type holderOrigin struct {
	holder any
}

// Holder scans the exported methods of h whose name starts with the case prefix,
// in source order.
func Holder(h any) Origin {
	return holderOrigin{holder: h}
}

func (o holderOrigin) String() string {
	return fmt.Sprintf("holder %T", o.holder)
}

func (o holderOrigin) candidates(prefix string) ([]candidate, error) {
	if o.holder == nil {
		return nil, fmt.Errorf("%w: nil holder", ErrCollection)
	}
	v := reflect.ValueOf(o.holder)
	t := v.Type()

	var out []candidate
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !hasPrefixFold(m.Name, prefix) {
			continue
		}
		body, err := reflectCaseFunc(v.Method(i))
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrCollection, t, m.Name, err)
		}
		pc := m.Func.Pointer()
		// A value-receiver method reached through a pointer holder is an
		// autogenerated wrapper without a source position.
		if t.Kind() == reflect.Pointer {
			if vm, ok := t.Elem().MethodByName(m.Name); ok {
				pc = vm.Func.Pointer()
			}
		}
		file, line := "", 0
		name := m.Name
		if rf := runtime.FuncForPC(pc); rf != nil {
			file, line = rf.FileLine(rf.Entry())
			name = rf.Name()
		}
		out = append(out, candidate{name: name, fn: body, file: file, line: line})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].file != out[j].file {
			return out[i].file < out[j].file
		}
		return out[i].line < out[j].line
	})
	return out, nil
}

type funcsOrigin struct {
	fns []any
}

// Funcs lists case functions (or prebuilt *Case values) explicitly. The prefix
// convention does not apply and order is preserved.
func Funcs(fns ...any) Origin {
	return funcsOrigin{fns: fns}
}

func (o funcsOrigin) String() string {
	return fmt.Sprintf("%d explicit function(s)", len(o.fns))
}

func (o funcsOrigin) candidates(string) ([]candidate, error) {
	out := make([]candidate, 0, len(o.fns))
	for i, fn := range o.fns {
		if c, ok := fn.(*Case); ok {
			if c == nil {
				return nil, fmt.Errorf("%w: entry %d is a nil case", ErrCollection, i)
			}
			out = append(out, candidate{name: c.name, preset: c})
			continue
		}
		body, err := toCaseFunc(fn)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCollection, i, err)
		}
		out = append(out, candidate{name: funcName(fn), fn: body})
	}
	return out, nil
}

type listOrigin struct {
	cases []*Case
}

// List wraps prebuilt cases, for example those loaded by the casedata package.
func List(cases ...*Case) Origin {
	return listOrigin{cases: cases}
}

func (o listOrigin) String() string {
	return fmt.Sprintf("list of %d case(s)", len(o.cases))
}

func (o listOrigin) candidates(string) ([]candidate, error) {
	out := make([]candidate, 0, len(o.cases))
	for i, c := range o.cases {
		if c == nil {
			return nil, fmt.Errorf("%w: entry %d is a nil case", ErrCollection, i)
		}
		out = append(out, candidate{name: c.name, preset: c})
	}
	return out, nil
}

// funcName returns the runtime name of a function value, or "" for non-functions.
func funcName(fn any) string {
	if fn == nil {
		return ""
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return ""
	}
	return rf.Name()
}

// metaKey normalizes "pkg.(*T).M-fm", "pkg.(*T).M" and "pkg.T.M" to one key.
func metaKey(name string) string {
	name = strings.TrimSuffix(name, "-fm")
	name = strings.ReplaceAll(name, "(*", "")
	return strings.ReplaceAll(name, ")", "")
}

// shortName strips the package path and receiver: "a/b.(*T).CaseOne" -> "CaseOne".
func shortName(name string) string {
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// deriveID turns "CaseHelloWorld", "caseHelloWorld" or "case_hello_world" into
// "hello_world".
func deriveID(name, prefix string) string {
	short := shortName(name)
	if hasPrefixFold(short, prefix) {
		short = short[len(prefix):]
	}
	short = strings.TrimLeft(short, "_")
	if short == "" {
		short = shortName(name)
	}
	return snakeCase(short)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func snakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
