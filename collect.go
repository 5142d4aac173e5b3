package cases

import (
	"fmt"
	"strings"
)

// Test is the description of a parametrized test: its argument groups, the
// fixtures it uses directly and its marks.
type Test struct {
	name  string
	decls []*Declaration
	uses  []AnyFixture
	marks []Mark
}

// TestOption configures a Test. *Declaration is a TestOption.
type TestOption interface {
	applyTest(*Test)
}

type testOptionFunc func(*Test)

func (f testOptionFunc) applyTest(t *Test) { f(t) }

// Uses requests fixtures by reference. Their parametrizations and dependencies
// take part in the expansion after the declared argument groups.
func Uses(fixtures ...AnyFixture) TestOption {
	return testOptionFunc(func(t *Test) {
		t.uses = append(t.uses, fixtures...)
	})
}

// MarkTest attaches marks to every invocation of the test.
func MarkTest(marks ...Mark) TestOption {
	return testOptionFunc(func(t *Test) {
		t.marks = append(t.marks, marks...)
	})
}

// NewTest describes a test. Declarations are listed closest-to-the-function first:
// the first one resolves first, contributes the first id fragment and varies
// slowest.
func NewTest(name string, opts ...TestOption) *Test {
	t := &Test{name: name}
	for _, opt := range opts {
		opt.applyTest(t)
	}
	return t
}

func (t *Test) Name() string                 { return t.name }
func (t *Test) Declarations() []*Declaration { return t.decls }
func (t *Test) String() string               { return t.name }

type argRef struct {
	param *Parametrization
	pos   int
}

// Plan is the ordered, uniquely identified set of invocations of one test.
type Plan struct {
	Test             *Test
	Parametrizations []*Parametrization
	Invocations      []*Invocation

	graph *fixtureGraph
	args  map[string]argRef
	sep   string
}

// IDs returns the invocation ids in order.
func (p *Plan) IDs() []string {
	out := make([]string, len(p.Invocations))
	for i, inv := range p.Invocations {
		out[i] = inv.ID
	}
	return out
}

// Closure returns every fixture the test can reach, dependencies first.
func (p *Plan) Closure() []AnyFixture {
	return append([]AnyFixture(nil), p.graph.order...)
}

// Invocation is one concrete run of a test: the chosen entry of every argument
// group, the chosen parameter of every parametrized fixture and the active
// alternative of every union it reaches.
type Invocation struct {
	Test      *Test
	Index     int
	ID        string
	Marks     []Mark
	Fragments []string

	plan    *Plan
	sets    map[*Parametrization]int
	params  map[AnyFixture]int
	active  map[*Union]int
	notUsed map[AnyFixture]bool
}

// Plan returns the plan the invocation belongs to.
func (inv *Invocation) Plan() *Plan {
	return inv.plan
}

// FullName is "<test>[<id>]", or the test name for a test without parameters.
func (inv *Invocation) FullName() string {
	if inv.ID == "" {
		return inv.Test.name
	}
	return inv.Test.name + "[" + inv.ID + "]"
}

// Active returns the index of the active alternative of u.
func (inv *Invocation) Active(u *Union) (int, bool) {
	i, ok := inv.active[u]
	return i, ok
}

// IsNotUsed reports whether f sits only on inactive union branches.
func (inv *Invocation) IsNotUsed(f AnyFixture) bool {
	return inv.notUsed[f]
}

// NotUsed lists the fixtures short-circuited to NotUsed, in closure order.
func (inv *Invocation) NotUsed() []AnyFixture {
	var out []AnyFixture
	for _, f := range inv.plan.graph.order {
		if inv.notUsed[f] {
			out = append(out, f)
		}
	}
	return out
}

// SkipMark returns the first skip mark of the invocation.
func (inv *Invocation) SkipMark() (Mark, bool) {
	return hasMark(inv.Marks, MarkSkip)
}

// XFailMark returns the first xfail mark of the invocation.
func (inv *Invocation) XFailMark() (Mark, bool) {
	return hasMark(inv.Marks, MarkXFail)
}

func (inv *Invocation) String() string {
	return inv.FullName()
}

// Collect compiles the declarations of test and expands them, together with the
// parametrized fixtures they reach, into a plan.
func (s *Session) Collect(test *Test) (*Plan, error) {
	if test == nil {
		return nil, fmt.Errorf("%w: nil test", ErrCollection)
	}
	compiler := NewCompiler(s.settings, s.logger)
	plan := &Plan{
		Test: test,
		args: make(map[string]argRef),
		sep:  s.settings.IDSeparator,
	}

	var roots []AnyFixture
	var queue []expandNode
	for _, d := range test.decls {
		p, err := compiler.Compile(test.name, d)
		if err != nil {
			return nil, err
		}
		for i, name := range p.Argnames {
			if _, dup := plan.args[name]; dup {
				return nil, fmt.Errorf("%w: %s declares argument %q twice", ErrCollection, test.name, name)
			}
			plan.args[name] = argRef{param: p, pos: i}
		}
		plan.Parametrizations = append(plan.Parametrizations, p)
		if p.Union != nil {
			roots = append(roots, p.Union)
			queue = append(queue, expandNode{fixture: p.Union})
			continue
		}
		queue = append(queue, expandNode{param: p})
	}
	for _, f := range test.uses {
		if f == nil {
			return nil, fmt.Errorf("%w: %s uses a nil fixture", ErrCollection, test.name)
		}
		roots = appendUnique(roots, f)
		queue = append(queue, expandNode{fixture: f})
	}

	graph, err := buildGraph(roots)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", test.name, err)
	}
	plan.graph = graph

	x := &expander{plan: plan}
	x.walk(queue, newWalkState())

	ids := make([]string, len(plan.Invocations))
	for i, inv := range plan.Invocations {
		ids[i] = inv.ID
	}
	for i, id := range uniqueIDs(ids) {
		plan.Invocations[i].ID = id
	}

	s.logger.Debug("test collected",
		"test", test.name,
		"invocations", len(plan.Invocations),
		"fixtures", len(graph.order),
	)
	return plan, nil
}

type expandNode struct {
	param   *Parametrization
	fixture AnyFixture
}

type walkState struct {
	visited   map[AnyFixture]bool
	sets      map[*Parametrization]int
	params    map[AnyFixture]int
	active    map[*Union]int
	fragments []string
	marks     []Mark
}

func newWalkState() *walkState {
	return &walkState{
		visited: make(map[AnyFixture]bool),
		sets:    make(map[*Parametrization]int),
		params:  make(map[AnyFixture]int),
		active:  make(map[*Union]int),
	}
}

func (st *walkState) clone() *walkState {
	out := newWalkState()
	for k, v := range st.visited {
		out.visited[k] = v
	}
	for k, v := range st.sets {
		out.sets[k] = v
	}
	for k, v := range st.params {
		out.params[k] = v
	}
	for k, v := range st.active {
		out.active[k] = v
	}
	out.fragments = append([]string(nil), st.fragments...)
	out.marks = append([]Mark(nil), st.marks...)
	return out
}

type expander struct {
	plan *Plan
}

// walk expands depth first. Branch points are argument groups, parametrized
// fixtures and unions; a union pushes only its active alternative, so fixtures
// reachable only through other alternatives stay unvisited on that branch.
func (x *expander) walk(queue []expandNode, st *walkState) {
	if len(queue) == 0 {
		x.emit(st)
		return
	}
	head, rest := queue[0], queue[1:]

	if head.param != nil {
		for i, set := range head.param.Sets {
			next := st.clone()
			next.sets[head.param] = i
			next.fragments = append(next.fragments, set.ID)
			next.marks = append(next.marks, set.Marks...)
			x.walk(rest, next)
		}
		return
	}

	f := head.fixture
	if st.visited[f] {
		x.walk(rest, st)
		return
	}

	if u, ok := f.(*Union); ok {
		for i, alt := range u.alts {
			next := st.clone()
			next.visited[u] = true
			next.active[u] = i
			next.fragments = append(next.fragments, u.Fragment(i))
			next.marks = append(next.marks, alt.Marks...)
			x.walk(prepend([]AnyFixture{alt.Fixture}, rest), next)
		}
		return
	}

	if params := f.Params(); len(params) > 0 {
		for i, p := range params {
			next := st.clone()
			next.visited[f] = true
			next.params[f] = i
			next.fragments = append(next.fragments, fixtureParamID(f, p, i))
			next.marks = append(next.marks, p.Marks...)
			x.walk(prepend(f.Deps(), rest), next)
		}
		return
	}

	st.visited[f] = true
	x.walk(prepend(f.Deps(), rest), st)
}

func (x *expander) emit(st *walkState) {
	plan := x.plan
	inv := &Invocation{
		Test:      plan.Test,
		Index:     len(plan.Invocations),
		ID:        strings.Join(st.fragments, plan.sep),
		Fragments: st.fragments,
		plan:      plan,
		sets:      st.sets,
		params:    st.params,
		active:    st.active,
		notUsed:   make(map[AnyFixture]bool),
	}
	inv.Marks = append(append([]Mark(nil), plan.Test.marks...), st.marks...)
	for _, f := range plan.graph.order {
		if !st.visited[f] {
			inv.notUsed[f] = true
		}
	}
	plan.Invocations = append(plan.Invocations, inv)
}

func prepend(fixtures []AnyFixture, rest []expandNode) []expandNode {
	out := make([]expandNode, 0, len(fixtures)+len(rest))
	for _, f := range fixtures {
		out = append(out, expandNode{fixture: f})
	}
	return append(out, rest...)
}

func fixtureParamID(f AnyFixture, p Param, i int) string {
	if p.ID != "" {
		return p.ID
	}
	if id, ok := valueID(p.Value); ok {
		return id
	}
	return fmt.Sprintf("%s%d", f.Name(), i)
}
