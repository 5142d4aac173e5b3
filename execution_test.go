package cases

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// begin collects test and starts the invocation at index. Close runs at test end.
func begin(t *testing.T, s *Session, test *Test, index int) *Execution {
	t.Helper()
	plan, err := s.Collect(test)
	require.NoError(t, err)
	require.Greater(t, len(plan.Invocations), index)

	e, err := s.Begin(context.Background(), plan.Invocations[index])
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestExecution_UnionResolvesOnlyActiveBranch(t *testing.T) {
	world, greetings, worldCalls, greetCalls := greetingFixtures()
	s := NewSession()
	defer s.Dispose()

	test := NewTest("TestGreet",
		Parametrize("a", "nothing", Ref(world), Ref(greetings)),
		Parametrize("b", 1, 2),
	)
	plan, err := s.Collect(test)
	require.NoError(t, err)

	got := make(map[string]string)
	_, err = s.RunAll(context.Background(), plan, 1, func(e *Execution) error {
		a, err := Arg[string](e, "a")
		if err != nil {
			return err
		}
		b, err := Arg[int](e, "b")
		if err != nil {
			return err
		}
		got[e.Invocation().ID] = fmt.Sprintf("%s/%d", a, b)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"a_is_nothing-1":   "nothing/1",
		"a_is_nothing-2":   "nothing/2",
		"a_is_world_str-1": "world/1",
		"a_is_world_str-2": "world/2",
		"a_is_greetings-1": "hello world/1",
		"a_is_greetings-2": "hello world/2",
	}, got)

	// greetings is entered only when active; world_str when active or needed by greetings.
	assert.Equal(t, 2, *greetCalls)
	assert.Equal(t, 4, *worldCalls)
}

func TestExecution_NotUsedValues(t *testing.T) {
	world, greetings, worldCalls, greetCalls := greetingFixtures()
	s := NewSession()
	defer s.Dispose()

	e := begin(t, s, NewTest("TestGreet", Parametrize("a", "nothing", Ref(world), Ref(greetings))), 0)
	require.NoError(t, e.Setup())

	v, err := e.resolve(greetings)
	require.NoError(t, err)
	assert.True(t, IsNotUsed(v))
	assert.Equal(t, "NOT_USED", fmt.Sprint(v))

	_, err = Get(e, greetings)
	assert.ErrorIs(t, err, ErrNotUsedLeak)

	a, err := e.Arg("a")
	require.NoError(t, err)
	assert.Equal(t, "nothing", a)

	assert.Zero(t, *worldCalls)
	assert.Zero(t, *greetCalls)
}

func TestExecution_NotUsedPropagates(t *testing.T) {
	var calls []string
	tracked := func(name string) func(*ResolveCtx) (string, error) {
		return func(*ResolveCtx) (string, error) {
			calls = append(calls, name)
			return name, nil
		}
	}
	a := Provide("a", tracked("a"))
	b := Provide("b", tracked("b"))
	u := MustFixtureUnion("ab", []any{a, b})
	// depends on the union and on b; b is not used when a is active, so the
	// dependent is not used either.
	both := Provide("both", tracked("both"), DependsOn(u, b))

	s := NewSession()
	e := begin(t, s, NewTest("TestProp", Uses(u), Parametrize("x", 1)), 0)
	require.NoError(t, e.Setup())

	v, err := e.resolve(both)
	require.NoError(t, err)
	assert.True(t, IsNotUsed(v))
	assert.Equal(t, []string{"a"}, calls)
}

func TestExecution_LazyCases(t *testing.T) {
	var expensiveCalls int
	expensive := Provide("expensive", func(*ResolveCtx) (int, error) {
		expensiveCalls++
		return 42, nil
	})
	plain := Provide("plain", func(*ResolveCtx) (int, error) { return 1, nil })
	needsExpensive := MustCase("needs_expensive", func(ctx *ResolveCtx) (int, error) {
		v, err := Value(ctx, expensive)
		return v + 1, err
	}, Requires(expensive))

	s := NewSession()
	test := NewTest("TestLazy", Parametrize("x", Ref(plain), needsExpensive))

	e := begin(t, s, test, 0)
	require.NoError(t, e.Setup())
	assert.Zero(t, expensiveCalls)
	assert.True(t, e.Invocation().IsNotUsed(expensive))

	e = begin(t, s, test, 1)
	require.NoError(t, e.Setup())
	x, err := Arg[int](e, "x")
	require.NoError(t, err)
	assert.Equal(t, 43, x)
	assert.Equal(t, 1, expensiveCalls)
}

var (
	roundTripIns  = []int{1, 2, 3}
	roundTripOuts = map[string]int{"sum": 6}
)

type roundTripCases struct{}

func (*roundTripCases) CaseSum() ([]int, map[string]int, any) { return roundTripIns, roundTripOuts, nil }

func TestExecution_TupleRoundTrip(t *testing.T) {
	reg := NewRegistry()
	test := NewTest("TestRound", Parametrize("ins,outs,err", reg.Select(Holder(&roundTripCases{}))))

	e := begin(t, NewSession(), test, 0)
	require.NoError(t, e.Setup())

	ins, err := Arg[[]int](e, "ins")
	require.NoError(t, err)
	outs, err := Arg[map[string]int](e, "outs")
	require.NoError(t, err)
	last, err := e.Arg("err")
	require.NoError(t, err)

	assert.Equal(t, roundTripIns, ins)
	assert.Same(t, &roundTripIns[0], &ins[0])
	assert.Equal(t, roundTripOuts, outs)
	assert.Nil(t, last)

	args, err := e.Args()
	require.NoError(t, err)
	assert.Len(t, args, 3)
}

func TestExecution_ArityErrorAtResolution(t *testing.T) {
	short := MustCase("short", func() (int, int) { return 1, 2 })
	test := NewTest("TestArity", Parametrize("a,b,c", short))

	// Collection stays lazy.
	plan, err := NewSession().Collect(test)
	require.NoError(t, err)
	require.Len(t, plan.Invocations, 1)

	e := begin(t, NewSession(), test, 0)
	err = e.Setup()
	var arity *ArityError
	require.ErrorAs(t, err, &arity)
	assert.Equal(t, "case short", arity.Source)
	assert.Equal(t, 3, arity.Want)
	assert.Equal(t, 2, arity.Got)

	_, err = e.Arg("a")
	assert.ErrorIs(t, err, ErrArityMismatch)
}

type flakyCases struct{}

func (*flakyCases) CaseGood() int            { return 1 }
func (*flakyCases) CaseBroken() (int, error) { return 0, errors.New("kaboom") }

func TestExecution_CaseErrorStaysWithItsInvocation(t *testing.T) {
	s := NewSession()
	test := NewTest("TestFlaky", Parametrize("x", NewRegistry().Select(Holder(&flakyCases{}))))

	plan, err := s.Collect(test)
	require.NoError(t, err)
	assert.Equal(t, []string{"good", "broken"}, plan.IDs())

	outcomes, err := s.RunAll(context.Background(), plan, 1, func(e *Execution) error {
		_, err := e.Arg("x")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TestFlaky[broken]")

	assert.Equal(t, StatusPassed, outcomes[0].Status)
	assert.NoError(t, outcomes[0].Err)

	assert.Equal(t, StatusFailed, outcomes[1].Status)
	var resolveErr *ResolveError
	require.ErrorAs(t, outcomes[1].Err, &resolveErr)
	assert.Equal(t, "x[broken]", resolveErr.Source)
	assert.Equal(t, string(OpCase), resolveErr.Context)
	assert.EqualError(t, resolveErr.Cause, "kaboom")
}

func TestExecution_UnknownArg(t *testing.T) {
	e := begin(t, NewSession(), NewTest("TestArg", Parametrize("x", 1)), 0)

	_, err := e.Arg("y")
	assert.ErrorIs(t, err, ErrUnknownArg)

	_, err = Arg[string](e, "x")
	assert.ErrorContains(t, err, "type assertion error")
}

func TestExecution_DeriveMany(t *testing.T) {
	num := func(name string, v int) *Fixture[int] {
		return Provide(name, func(ctx *ResolveCtx) (int, error) { return v, nil })
	}
	a, b, c, d, e5 := num("a", 1), num("b", 2), num("c", 3), num("d", 4), num("e", 5)
	sum := Derive5("sum", a, b, c, d, e5, func(ctx *ResolveCtx, a, b, c, d, e int) (int, error) {
		return a + b + c + d + e, nil
	})
	failing := Derive4("failing", a, b, c, Provide("boom", func(ctx *ResolveCtx) (int, error) {
		return 0, errTest
	}), func(ctx *ResolveCtx, a, b, c, d int) (int, error) {
		return a + b + c + d, nil
	})

	e := begin(t, NewSession(), NewTest("TestDerive", Uses(sum)), 0)
	require.NoError(t, e.Setup())
	got, err := Get(e, sum)
	require.NoError(t, err)
	assert.Equal(t, 15, got)
	assert.Len(t, sum.Deps(), 5)

	e = begin(t, NewSession(), NewTest("TestDeriveFailing", Uses(failing)), 0)
	assert.ErrorIs(t, e.Setup(), errTest)
}

func TestExecution_LazyValueOncePerInvocation(t *testing.T) {
	var calls int
	lazy := Lazy(func(ctx *ResolveCtx) (any, error) {
		calls++
		return ctx.Execution().Invocation().FullName(), nil
	}, "now")

	e := begin(t, NewSession(), NewTest("TestLazyValue", Parametrize("x", lazy)), 0)
	require.NoError(t, e.Setup())
	first, err := e.Arg("x")
	require.NoError(t, err)
	second, err := e.Arg("x")
	require.NoError(t, err)

	assert.Equal(t, "TestLazyValue[now]", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestExecution_TeardownOrder(t *testing.T) {
	var events []string
	db := ProvideResource("db",
		func(*ResolveCtx) (string, error) {
			events = append(events, "open db")
			return "db", nil
		},
		func(string) error {
			events = append(events, "close db")
			return nil
		},
	)
	user := Derive1("user", db, func(ctx *ResolveCtx, d string) (string, error) {
		events = append(events, "create user")
		ctx.OnCleanup(func() error {
			events = append(events, "delete user")
			return nil
		})
		ctx.OnCleanup(func() error {
			events = append(events, "logout user")
			return nil
		})
		return "user", nil
	})

	e := begin(t, NewSession(), NewTest("TestTeardown", Uses(user)), 0)
	require.NoError(t, e.Setup())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.Equal(t, []string{"open db", "create user", "logout user", "delete user", "close db"}, events)

	status, ok := Status().GetFromExecution(e)
	require.True(t, ok)
	assert.Equal(t, StatusPassed, status)
	end, _ := EndTime().GetFromExecution(e)
	start, _ := StartTime().GetFromExecution(e)
	assert.False(t, end.Before(start))
}

func TestExecution_CleanupErrors(t *testing.T) {
	res := ProvideResource("res",
		func(*ResolveCtx) (int, error) { return 1, nil },
		func(int) error { return errors.New("release failed") },
	)

	e := begin(t, NewSession(), NewTest("TestCleanup", Uses(res)), 0)
	require.NoError(t, e.Setup())

	err := e.Close()
	var cleanupErr *CleanupError
	require.ErrorAs(t, err, &cleanupErr)
	assert.Equal(t, "res", cleanupErr.Source)
	assert.Equal(t, "invocation", cleanupErr.Context)
}

func TestExecution_Cancellation(t *testing.T) {
	f := Provide("f", func(*ResolveCtx) (int, error) { return 1, nil })
	plan, err := NewSession().Collect(NewTest("TestCancel", Uses(f)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession()
	e, err := s.Begin(ctx, plan.Invocations[0])
	require.NoError(t, err)

	err = e.Setup()
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, e.Close())

	status, _ := Status().GetFromExecution(e)
	assert.Equal(t, StatusCancelled, status)
}

func TestExecution_PanicBecomesResolveError(t *testing.T) {
	f := Provide("boom", func(*ResolveCtx) (int, error) { panic("boom") })

	e := begin(t, NewSession(), NewTest("TestPanic", Uses(f)), 0)
	err := e.Setup()

	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "boom", resolveErr.Source)
	assert.Contains(t, resolveErr.Cause.Error(), "panic: boom")

	stack, ok := PanicStack().GetFromExecution(e)
	require.True(t, ok)
	assert.NotEmpty(t, stack)

	// Setup is idempotent.
	assert.Equal(t, err, e.Setup())
}

func TestSession_SessionScope(t *testing.T) {
	var created, released atomic.Int32
	var order []string
	conn := ProvideResource("conn",
		func(*ResolveCtx) (string, error) {
			created.Add(1)
			time.Sleep(5 * time.Millisecond)
			return "conn", nil
		},
		func(string) error {
			released.Add(1)
			order = append(order, "conn")
			return nil
		},
		WithScope(ScopeSession),
	)
	pool := Derive1("pool", conn, func(ctx *ResolveCtx, c string) (string, error) {
		ctx.OnCleanup(func() error {
			order = append(order, "pool")
			return nil
		})
		return "pool of " + c, nil
	}, WithScope(ScopeSession))

	s := NewSession()
	plan, err := s.Collect(NewTest("TestShared", Parametrize("n", 1, 2, 3, 4), Uses(pool)))
	require.NoError(t, err)

	outcomes, err := s.RunAll(context.Background(), plan, 4, func(e *Execution) error {
		v, err := Get(e, pool)
		if err != nil {
			return err
		}
		if v != "pool of conn" {
			return fmt.Errorf("unexpected pool %q", v)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	ids := make(map[string]bool)
	for _, o := range outcomes {
		assert.Equal(t, StatusPassed, o.Status)
		ids[o.ExecutionID.String()] = true
	}
	assert.Len(t, ids, 4)

	assert.Equal(t, int32(1), created.Load())
	assert.Zero(t, released.Load())
	assert.Equal(t, 2, s.cache.Size())

	require.NoError(t, s.Dispose())
	require.NoError(t, s.Dispose())
	assert.Equal(t, int32(1), released.Load())
	assert.Equal(t, []string{"pool", "conn"}, order)
	assert.Zero(t, s.cache.Size())
}

func TestSession_ParametrizedSessionFixture(t *testing.T) {
	var calls atomic.Int32
	backend := Provide("backend", func(ctx *ResolveCtx) (string, error) {
		calls.Add(1)
		p, _ := ctx.Param()
		return p.(string), nil
	}, WithParams("a", "b"), WithScope(ScopeSession))

	s := NewSession()
	defer s.Dispose()
	plan, err := s.Collect(NewTest("TestBackends", Parametrize("n", 1, 2), Uses(backend)))
	require.NoError(t, err)
	assert.Equal(t, []string{"1-a", "1-b", "2-a", "2-b"}, plan.IDs())

	seen := make([]string, len(plan.Invocations))
	_, err = s.RunAll(context.Background(), plan, 1, func(e *Execution) error {
		v, err := Get(e, backend)
		seen[e.Invocation().Index] = v
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a", "b"}, seen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSession_SessionFixtureOverParametrizedDependency(t *testing.T) {
	var built atomic.Int32
	db := Provide("db", func(ctx *ResolveCtx) (string, error) {
		p, _ := ctx.Param()
		return p.(string), nil
	}, WithParams("sqlite", "pg"), WithScope(ScopeSession))
	repo := Derive1("repo", db, func(ctx *ResolveCtx, d string) (string, error) {
		built.Add(1)
		return "repo@" + d, nil
	}, WithScope(ScopeSession))

	s := NewSession()
	defer s.Dispose()
	plan, err := s.Collect(NewTest("TestRepo", Parametrize("n", 1, 2), Uses(repo)))
	require.NoError(t, err)
	assert.Equal(t, []string{"1-sqlite", "1-pg", "2-sqlite", "2-pg"}, plan.IDs())

	seen := make([]string, len(plan.Invocations))
	_, err = s.RunAll(context.Background(), plan, 2, func(e *Execution) error {
		d, err := Get(e, db)
		if err != nil {
			return err
		}
		r, err := Get(e, repo)
		seen[e.Invocation().Index] = d + "=>" + r
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sqlite=>repo@sqlite",
		"pg=>repo@pg",
		"sqlite=>repo@sqlite",
		"pg=>repo@pg",
	}, seen)
	assert.Equal(t, int32(2), built.Load())
	assert.Equal(t, 4, s.cache.Size())
}

func TestSessionKeyFor(t *testing.T) {
	a := Provide("a", func(*ResolveCtx) (int, error) { return 0, nil }, WithParams(1, 2), WithScope(ScopeSession))
	b := Provide("b", func(*ResolveCtx) (int, error) { return 0, nil }, WithParams(1, 2, 3), WithScope(ScopeSession))
	plain := Provide("plain", func(*ResolveCtx) (int, error) { return 0, nil }, WithScope(ScopeSession))
	top := Derive3("top", a, plain, b, func(_ *ResolveCtx, x, y, z int) (int, error) { return x + y + z, nil }, WithScope(ScopeSession))

	key := sessionKeyFor(top, map[AnyFixture]int{a: 1, b: 2})
	assert.Equal(t, "0=1,2=2", key.params)
	assert.NotEqual(t, key, sessionKeyFor(top, map[AnyFixture]int{a: 0, b: 2}))
	assert.Equal(t, key, sessionKeyFor(top, map[AnyFixture]int{a: 1, b: 2}))
	assert.Empty(t, sessionKeyFor(plain, map[AnyFixture]int{a: 1}).params)
}

func TestSession_RunAllMarks(t *testing.T) {
	s := NewSession()
	test := NewTest("TestMarks", Parametrize("x",
		1,
		Param{Value: 2, Marks: []Mark{Skip("not ready")}},
		Param{Value: 3, Marks: []Mark{XFail("known bug")}},
		Param{Value: 4, Marks: []Mark{XFail("fixed")}},
	))
	plan, err := s.Collect(test)
	require.NoError(t, err)

	var ran []int
	outcomes, err := s.RunAll(context.Background(), plan, 1, func(e *Execution) error {
		x, err := Arg[int](e, "x")
		if err != nil {
			return err
		}
		ran = append(ran, x)
		if x == 3 {
			return errors.New("still broken")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 4}, ran)
	assert.Equal(t, StatusPassed, outcomes[0].Status)
	assert.Equal(t, StatusSkipped, outcomes[1].Status)
	assert.Equal(t, StatusXFailed, outcomes[2].Status)
	assert.Error(t, outcomes[2].Err)
	assert.Equal(t, StatusXPassed, outcomes[3].Status)
}

func TestSession_Tags(t *testing.T) {
	envTag := NewTag[string]("env")
	s := NewSession(WithSessionTag(envTag, "ci"))

	f := Provide("env", func(ctx *ResolveCtx) (string, error) {
		return GetTagOrDefault(ctx, envTag, "local"), nil
	})
	e := begin(t, s, NewTest("TestTags", Uses(f)), 0)
	v, err := Get(e, f)
	require.NoError(t, err)
	assert.Equal(t, "ci", v)

	got, ok := e.Lookup(envTag)
	require.True(t, ok)
	assert.Equal(t, "ci", got)

	ownerTag := NewTag[string]("owner")
	assert.Equal(t, "nobody", ownerTag.GetOrDefault(f, "nobody"))
	ownerTag.Set(f, "infra")
	owner, ok := ownerTag.Get(f)
	require.True(t, ok)
	assert.Equal(t, "infra", owner)

	id, ok := InvocationID().GetFromExecution(e)
	require.True(t, ok)
	assert.Equal(t, e.ID(), id)
}

type recordingExtension struct {
	BaseExtension
	events []string
}

func (r *recordingExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	r.events = append(r.events, fmt.Sprintf("%s %s", op.Kind, op.Source()))
	return next()
}

func (r *recordingExtension) OnInvocationStart(exec *Execution) error {
	r.events = append(r.events, "start "+exec.Invocation().FullName())
	return nil
}

func (r *recordingExtension) OnInvocationEnd(exec *Execution, err error) error {
	r.events = append(r.events, "end "+exec.Invocation().FullName())
	return nil
}

func TestSession_Extensions(t *testing.T) {
	ext := &recordingExtension{BaseExtension: NewBaseExtension("recording")}
	s := NewSession(WithExtension(ext))

	plain := Provide("plain", func(*ResolveCtx) (int, error) { return 1, nil })
	c := MustCase("from_case", func() int { return 2 })
	lazy := Lazy(func(*ResolveCtx) (any, error) { return 3, nil }, "lazy")

	e := begin(t, s, NewTest("TestExt", Parametrize("x", Ref(plain), c), Parametrize("y", lazy)), 1)
	require.NoError(t, e.Setup())
	require.NoError(t, e.Close())

	assert.Equal(t, []string{
		"start TestExt[x_is_from_case-lazy]",
		"case TestExt_x_from_case",
		"union TestExt_x",
		"lazy y[lazy]",
		"end TestExt[x_is_from_case-lazy]",
	}, ext.events)
}
