package cases

import "strings"

// CurrentCase records what was selected for one argument group of an invocation.
type CurrentCase struct {
	// ID is the selected entry id, before it is combined into the invocation id.
	ID string
	// Case is the selected case, nil for literals, lazy values and fixtures.
	Case *Case
	// Fixture is the selected union alternative, when the group went through a union.
	Fixture AnyFixture
	// Params are the parameters of a parametrized case variant.
	Params map[string]any
}

// CurrentCases maps the argnames of every declared group, comma-joined, to its
// selection.
type CurrentCases map[string]CurrentCase

// CurrentCases returns the selections of this execution. The record is built on
// first use and every call returns an equal copy.
func (e *Execution) CurrentCases() CurrentCases {
	if e.current == nil {
		e.current = buildCurrentCases(e.inv)
	}
	return e.current.clone()
}

// CurrentCasesOf returns the selections of the execution a body runs in.
func CurrentCasesOf(ctx *ResolveCtx) CurrentCases {
	return ctx.exec.CurrentCases()
}

// CurrentCasesFixture provides the current cases record to fixtures and tests that
// request it by reference.
var CurrentCasesFixture = Provide("current_cases", func(ctx *ResolveCtx) (CurrentCases, error) {
	return CurrentCasesOf(ctx), nil
})

func buildCurrentCases(inv *Invocation) CurrentCases {
	out := make(CurrentCases, len(inv.plan.Parametrizations))
	for _, p := range inv.plan.Parametrizations {
		key := strings.Join(p.Argnames, ",")
		if p.Union != nil {
			idx, ok := inv.active[p.Union]
			if !ok {
				continue
			}
			alt := p.Union.alts[idx]
			cc := CurrentCase{ID: alt.ID, Case: alt.Case}
			if alt.Case != nil {
				cc.Params = alt.Case.Params()
			} else {
				cc.Fixture = alt.Fixture
			}
			out[key] = cc
			continue
		}
		idx, ok := inv.sets[p]
		if !ok {
			continue
		}
		set := p.Sets[idx]
		cc := CurrentCase{ID: set.ID, Case: set.Source.kase}
		if cc.Case != nil {
			cc.Params = cc.Case.Params()
		}
		out[key] = cc
	}
	return out
}

func (cc CurrentCases) clone() CurrentCases {
	out := make(CurrentCases, len(cc))
	for k, v := range cc {
		v.Params = cloneParams(v.Params)
		out[k] = v
	}
	return out
}
