// Package cases expands declarative parameter sources into parametrized test
// invocations with stable, readable ids.
//
// # Overview
//
// The package is organized around five concepts:
//
//  1. Cases: functions producing one dataset each, discovered by a Registry
//  2. Filters: predicates over case ids and tags (package filters)
//  3. Fixtures: named, optionally parametrized value providers
//  4. Declarations: argument groups fed by literals, cases and fixture references
//  5. Sessions: collect a test into a Plan and run its invocations
//
// # Basic Usage
//
// Put cases on a holder type and select them:
//
//	type greetCases struct{}
//
//	func (*greetCases) CaseHello() (string, string) { return "hello", "HELLO" }
//	func (*greetCases) CaseEmpty() (string, string) { return "", "" }
//
//	reg := cases.NewRegistry()
//	reg.MustAnnotate((*greetCases).CaseEmpty, cases.WithTags("edge"))
//
//	test := cases.NewTest("TestUpper",
//	    cases.Parametrize("in,want", reg.Select(cases.Holder(&greetCases{}))),
//	)
//
//	func TestUpper(t *testing.T) {
//	    cases.Run(t, cases.NewSession(), test, func(t *testing.T, e *cases.Execution) {
//	        in, _ := cases.Arg[string](e, "in")
//	        want, _ := cases.Arg[string](e, "want")
//	        assert.Equal(t, want, strings.ToUpper(in))
//	    })
//	}
//
// Case methods may take no argument or a *ResolveCtx, and return one value, several
// values (delivered as a Tuple) or values followed by an error.
//
// # Fixtures and unions
//
// Fixtures are declared with Provide, ProvideResource and Derive1..3:
//
//	db := cases.ProvideResource("db", openDB, closeDB, cases.WithScope(cases.ScopeSession))
//	user := cases.Derive1("user", db, func(ctx *cases.ResolveCtx, d *DB) (*User, error) {
//	    return d.CreateUser(ctx.Context())
//	})
//
// Referencing a fixture in a declaration turns the argument group into a fixture
// union: every source becomes one alternative and exactly one alternative is
// active per invocation.
//
//	cases.Parametrize("who", "nobody", cases.Ref(user), cases.Ref(admin))
//
// Fixtures reachable only through inactive alternatives are never set up: they
// resolve to NotUsed, and so does every fixture depending on them.
//
// # Ids and ordering
//
// Declarations are listed closest-to-the-function first. The first declaration
// resolves first, contributes the first id fragment and varies slowest; fixtures
// parametrized with WithParams follow in depth-first order of first encounter.
// Union fragments read "<argnames>_is_<alternative id>" unless IDStyleNone is
// selected. Duplicated ids are made unique with a "_<n>" suffix.
//
// # Extensions
//
// Extensions wrap every body evaluation and observe invocation start and end,
// errors, panics and teardown failures:
//
//	type timing struct {
//	    cases.BaseExtension
//	}
//
//	func (t *timing) Wrap(ctx context.Context, next func() (any, error), op *cases.Operation) (any, error) {
//	    start := time.Now()
//	    v, err := next()
//	    log.Printf("%s %s took %v", op.Kind, op.Source(), time.Since(start))
//	    return v, err
//	}
//
//	session := cases.NewSession(cases.WithExtension(&timing{cases.NewBaseExtension("timing")}))
//
// Ready-made logging and debug extensions live in package extensions.
package cases
