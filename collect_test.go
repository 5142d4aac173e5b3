package cases

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumped-fn/pumped-cases/filters"
)

type tagCases struct{}

func (*tagCases) CaseA() string  { return "a" }
func (*tagCases) CaseAB() string { return "ab" }
func (*tagCases) CaseBC() string { return "bc" }
func (*tagCases) CaseAC() string { return "ac" }

func TestCollect_FilterByTag(t *testing.T) {
	reg := NewRegistry()
	reg.MustAnnotate((*taggedCases).CaseOne, WithTags("A"))
	reg.MustAnnotate((*taggedCases).CaseTwo, WithTags("A", "B"))

	test := NewTest("TestFilter",
		Parametrize("x", reg.Select(Holder(&taggedCases{}), Where(filters.HasTag("B")))),
	)
	plan, err := NewSession().Collect(test)
	require.NoError(t, err)

	assert.Equal(t, []string{"two"}, plan.IDs())
	assert.Equal(t, "TestFilter[two]", plan.Invocations[0].FullName())
}

func TestCollect_FilterUnionKeepsDiscoveryOrder(t *testing.T) {
	reg := NewRegistry()
	reg.MustAnnotate((*tagCases).CaseA, WithTags("A"))
	reg.MustAnnotate((*tagCases).CaseAB, WithTags("A", "B"))
	reg.MustAnnotate((*tagCases).CaseBC, WithTags("B", "C"))
	reg.MustAnnotate((*tagCases).CaseAC, WithTags("A", "C"))

	test := NewTest("TestOr",
		Parametrize("x", reg.Select(Holder(&tagCases{}), Where(filters.HasTag("B").Or(filters.HasTag("C"))))),
	)
	plan, err := NewSession().Collect(test)
	require.NoError(t, err)

	assert.Equal(t, []string{"ab", "bc", "ac"}, plan.IDs())
}

// greetingFixtures returns the world_str fixture and a greetings fixture derived
// from it, with call counters.
func greetingFixtures() (*Fixture[string], *Fixture[string], *int, *int) {
	var worldCalls, greetCalls int
	world := Provide("world_str", func(*ResolveCtx) (string, error) {
		worldCalls++
		return "world", nil
	})
	greetings := Derive1("greetings", world, func(_ *ResolveCtx, w string) (string, error) {
		greetCalls++
		return "hello " + w, nil
	})
	return world, greetings, &worldCalls, &greetCalls
}

func TestCollect_UnionCrossProductOrder(t *testing.T) {
	world, greetings, _, _ := greetingFixtures()

	test := NewTest("TestGreet",
		Parametrize("a", "nothing", Ref(world), Ref(greetings)),
		Parametrize("b", 1, 2),
	)
	plan, err := NewSession().Collect(test)
	require.NoError(t, err)

	// The first declaration varies slowest.
	assert.Equal(t, []string{
		"a_is_nothing-1",
		"a_is_nothing-2",
		"a_is_world_str-1",
		"a_is_world_str-2",
		"a_is_greetings-1",
		"a_is_greetings-2",
	}, plan.IDs())

	names := func(fs []AnyFixture) []string {
		out := make([]string, len(fs))
		for i, f := range fs {
			out[i] = f.Name()
		}
		return out
	}
	assert.Equal(t, []string{"world_str", "greetings"}, names(plan.Invocations[0].NotUsed()))
	assert.Equal(t, []string{"TestGreet_a_nothing", "greetings"}, names(plan.Invocations[2].NotUsed()))
	assert.Equal(t, []string{"TestGreet_a_nothing"}, names(plan.Invocations[4].NotUsed()))

	for _, inv := range plan.Invocations {
		u := plan.Parametrizations[0].Union
		active, ok := inv.Active(u)
		require.True(t, ok)
		assert.Equal(t, inv.Fragments[0], u.Fragment(active))
	}
}

func TestCollect_DeclarationOrderDecidesNesting(t *testing.T) {
	test := NewTest("TestNest",
		Parametrize("b", 1, 2),
		Parametrize("a", "x", "y"),
	)
	plan, err := NewSession().Collect(test)
	require.NoError(t, err)
	assert.Equal(t, []string{"1-x", "1-y", "2-x", "2-y"}, plan.IDs())
}

func TestCollect_ParametrizedFixtures(t *testing.T) {
	backend := Provide("backend", func(ctx *ResolveCtx) (string, error) {
		p, _ := ctx.Param()
		return p.(string), nil
	}, WithParams("mem", Param{Value: "disk", ID: "on_disk", Marks: []Mark{Skip("slow")}}))
	size := Provide("size", func(ctx *ResolveCtx) (int, error) {
		p, _ := ctx.Param()
		return p.(int), nil
	}, WithParams(1, 10))
	store := Derive2("store", backend, size, func(_ *ResolveCtx, b string, s int) (string, error) {
		return b, nil
	})

	test := NewTest("TestStore", Parametrize("mode", "ro", "rw"), Uses(store))
	plan, err := NewSession().Collect(test)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ro-mem-1", "ro-mem-10", "ro-on_disk-1", "ro-on_disk-10",
		"rw-mem-1", "rw-mem-10", "rw-on_disk-1", "rw-on_disk-10",
	}, plan.IDs())

	_, skipped := plan.Invocations[2].SkipMark()
	assert.True(t, skipped)
	_, skipped = plan.Invocations[0].SkipMark()
	assert.False(t, skipped)
}

func TestCollect_NestedUnion(t *testing.T) {
	x := Provide("x", func(*ResolveCtx) (int, error) { return 1, nil })
	y := Provide("y", func(*ResolveCtx) (int, error) { return 2, nil })
	inner := MustFixtureUnion("inner", []any{x, y})

	plan, err := NewSession().Collect(NewTest("TestNested", Parametrize("v", Ref(inner), "lit")))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"v_is_inner-inner_is_x",
		"v_is_inner-inner_is_y",
		"v_is_lit",
	}, plan.IDs())

	last := plan.Invocations[2]
	assert.True(t, last.IsNotUsed(inner))
	assert.True(t, last.IsNotUsed(x))
	assert.True(t, last.IsNotUsed(y))
	assert.True(t, plan.Invocations[0].IsNotUsed(y))
	assert.False(t, plan.Invocations[0].IsNotUsed(x))
}

func TestCollect_DuplicatedIDsAreMadeUnique(t *testing.T) {
	test := NewTest("TestDup",
		Parametrize("a", Param{Value: 1, ID: "p-q"}, Param{Value: 2, ID: "p"}),
		Parametrize("b", Param{Value: 1, ID: "r"}, Param{Value: 2, ID: "q-r"}),
	)
	plan, err := NewSession().Collect(test)
	require.NoError(t, err)

	// "p-q" + "r" and "p" + "q-r" join to the same id.
	assert.Equal(t, []string{"p-q-r_0", "p-q-q-r", "p-r", "p-q-r_1"}, plan.IDs())
}

func TestCollect_Marks(t *testing.T) {
	test := NewTest("TestMarks",
		Parametrize("x", 1, Param{Value: 2, Marks: []Mark{XFail("bug")}}),
		MarkTest(CustomMark("owner", "core")),
	)
	plan, err := NewSession().Collect(test)
	require.NoError(t, err)

	assert.Equal(t, []Mark{CustomMark("owner", "core")}, plan.Invocations[0].Marks)
	assert.Equal(t, []Mark{CustomMark("owner", "core"), XFail("bug")}, plan.Invocations[1].Marks)
	m, ok := plan.Invocations[1].XFailMark()
	require.True(t, ok)
	assert.Equal(t, "bug", m.Reason)
}

func TestCollect_NoParameters(t *testing.T) {
	plan, err := NewSession().Collect(NewTest("TestPlain"))
	require.NoError(t, err)
	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, "", plan.Invocations[0].ID)
	assert.Equal(t, "TestPlain", plan.Invocations[0].FullName())
}

func TestCollect_CustomSeparator(t *testing.T) {
	settings := DefaultSettings()
	settings.IDSeparator = "/"
	s := NewSession(WithSettings(settings))

	plan, err := s.Collect(NewTest("TestSep", Parametrize("a", 1), Parametrize("b", 2)))
	require.NoError(t, err)
	assert.Equal(t, []string{"1/2"}, plan.IDs())
}

// loopFixture lets a test build a dependency cycle.
type loopFixture struct {
	name string
	deps []AnyFixture
}

func (f *loopFixture) Name() string                     { return f.name }
func (f *loopFixture) Scope() FixtureScope              { return ScopeFunction }
func (f *loopFixture) Deps() []AnyFixture               { return f.deps }
func (f *loopFixture) Params() []Param                  { return nil }
func (f *loopFixture) GetTag(any) (any, bool)           { return nil, false }
func (f *loopFixture) SetTag(any, any)                  {}
func (f *loopFixture) produce(*ResolveCtx) (any, error) { return f.name, nil }

func TestCollect_Errors(t *testing.T) {
	s := NewSession()

	_, err := s.Collect(nil)
	assert.ErrorIs(t, err, ErrCollection)

	_, err = s.Collect(NewTest("TestDupArg", Parametrize("a,b", Tuple{1, 2}), Parametrize("b", 3)))
	assert.ErrorIs(t, err, ErrCollection)

	_, err = s.Collect(NewTest("TestNilUse", Uses(nil)))
	assert.ErrorIs(t, err, ErrCollection)

	_, err = s.Collect(NewTest("TestEmpty", Parametrize("x", NewRegistry().Select(Holder(&emptyHolder{})))))
	assert.ErrorIs(t, err, ErrNoCasesDiscovered)

	fn := Provide("per_test", func(*ResolveCtx) (int, error) { return 1, nil })
	shared := Derive1("shared", fn, func(_ *ResolveCtx, v int) (int, error) { return v, nil }, WithScope(ScopeSession))
	_, err = s.Collect(NewTest("TestScope", Uses(shared)))
	assert.ErrorIs(t, err, ErrScopeMismatch)
	assert.Contains(t, err.Error(), "shared depends on function fixture per_test")

	a := &loopFixture{name: "a"}
	b := &loopFixture{name: "b", deps: []AnyFixture{a}}
	c := &loopFixture{name: "c", deps: []AnyFixture{b}}
	a.deps = []AnyFixture{c}
	_, err = s.Collect(NewTest("TestCycle", Uses(b)))
	assert.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "b -> a -> c -> b")
}

func TestPlan_Closure(t *testing.T) {
	world, greetings, _, _ := greetingFixtures()
	extra := Provide("extra", func(*ResolveCtx) (int, error) { return 0, nil })

	plan, err := NewSession().Collect(NewTest("TestClosure",
		Parametrize("a", Ref(greetings), Ref(world)),
		Uses(extra, greetings),
	))
	require.NoError(t, err)

	var names []string
	for _, f := range plan.Closure() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"world_str", "greetings", "TestClosure_a", "extra"}, names)
}

func TestPlan_Table(t *testing.T) {
	world, greetings, _, _ := greetingFixtures()

	plan, err := NewSession().Collect(NewTest("TestGreet",
		Parametrize("a", "nothing", Ref(world), Param{Value: Ref(greetings), Marks: []Mark{Skip("wip")}}),
	))
	require.NoError(t, err)

	table := plan.Table()
	assert.Contains(t, strings.ToLower(table), "testgreet")
	assert.Contains(t, table, "a_is_nothing")
	assert.Contains(t, table, "world_str, greetings")
	assert.Contains(t, table, "skip(wip)")
	assert.Contains(t, strings.ToLower(table), "3 invocation(s)")

	var sb strings.Builder
	require.NoError(t, plan.Render(&sb))
	assert.Equal(t, table+"\n", sb.String())
}
