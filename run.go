package cases

import (
	"fmt"
	"testing"
)

// Run collects test and runs every invocation as a subtest named after its id.
// Skip and xfail marks skip the subtest without running the body. Setup failures
// fail the subtest; teardown runs in t.Cleanup.
func Run(t *testing.T, s *Session, test *Test, body func(t *testing.T, e *Execution)) {
	t.Helper()

	plan, err := s.Collect(test)
	if err != nil {
		t.Fatalf("collecting %s: %v", test.Name(), err)
	}

	for _, inv := range plan.Invocations {
		name := inv.ID
		if name == "" {
			name = test.Name()
		}
		t.Run(name, func(t *testing.T) {
			if m, ok := inv.SkipMark(); ok {
				t.Skip(markReason(m))
			}
			if m, ok := inv.XFailMark(); ok {
				t.Skip("xfail: " + markReason(m))
			}

			e, err := s.Begin(t.Context(), inv)
			if e != nil {
				t.Cleanup(func() {
					if t.Failed() {
						e.Fail(fmt.Errorf("%s failed", inv.FullName()))
					}
					if err := e.Close(); err != nil {
						t.Errorf("teardown of %s: %v", inv.FullName(), err)
					}
				})
			}
			if err != nil {
				t.Fatalf("starting %s: %v", inv.FullName(), err)
			}
			if err := e.Setup(); err != nil {
				t.Fatalf("setup of %s: %v", inv.FullName(), err)
			}
			body(t, e)
		})
	}
}

func markReason(m Mark) string {
	if m.Reason != "" {
		return m.Reason
	}
	return string(m.Kind)
}
