package cases

import (
	"fmt"
	"strings"
)

// fixtureGraph is the static closure of the fixtures a test can reach, following
// every alternative of every union. Order lists dependencies before dependents, in
// first-encounter order from the roots.
type fixtureGraph struct {
	order []AnyFixture
	index map[AnyFixture]int
}

type graphFrame struct {
	fixture AnyFixture
	next    int
}

// buildGraph walks the roots with an explicit stack, rejecting cycles and session
// fixtures that depend on function fixtures.
func buildGraph(roots []AnyFixture) (*fixtureGraph, error) {
	g := &fixtureGraph{index: make(map[AnyFixture]int)}
	visiting := make(map[AnyFixture]bool)

	for _, root := range roots {
		if _, done := g.index[root]; done || root == nil {
			continue
		}
		stack := make([]*graphFrame, 0, 16)
		stack = append(stack, &graphFrame{fixture: root})
		visiting[root] = true

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			deps := top.fixture.Deps()
			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++
				if dep == nil {
					return nil, fmt.Errorf("%w: %s depends on a nil fixture", ErrCollection, top.fixture.Name())
				}
				if _, done := g.index[dep]; done {
					if err := checkScope(top.fixture, dep); err != nil {
						return nil, err
					}
					continue
				}
				if visiting[dep] {
					return nil, fmt.Errorf("%w: %s", ErrCycle, cyclePath(stack, dep))
				}
				if err := checkScope(top.fixture, dep); err != nil {
					return nil, err
				}
				visiting[dep] = true
				stack = append(stack, &graphFrame{fixture: dep})
				continue
			}

			stack = stack[:len(stack)-1]
			delete(visiting, top.fixture)
			g.index[top.fixture] = len(g.order)
			g.order = append(g.order, top.fixture)
		}
	}
	return g, nil
}

func checkScope(dependent, dep AnyFixture) error {
	if dependent.Scope() == ScopeSession && dep.Scope() == ScopeFunction {
		return fmt.Errorf("%w: session fixture %s depends on function fixture %s", ErrScopeMismatch, dependent.Name(), dep.Name())
	}
	return nil
}

func cyclePath(stack []*graphFrame, back AnyFixture) string {
	var names []string
	started := false
	for _, frame := range stack {
		if frame.fixture == back {
			started = true
		}
		if started {
			names = append(names, frame.fixture.Name())
		}
	}
	names = append(names, back.Name())
	return strings.Join(names, " -> ")
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}
