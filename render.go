package cases

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table renders the plan as a table: one row per invocation with its marks and
// the fixtures it short-circuits to NotUsed.
func (p *Plan) Table() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(p.Test.name)
	t.AppendHeader(table.Row{"#", "ID", "Marks", "Not used"})

	for _, inv := range p.Invocations {
		var marks []string
		for _, m := range inv.Marks {
			if m.Reason != "" {
				marks = append(marks, fmt.Sprintf("%s(%s)", m.Kind, m.Reason))
				continue
			}
			marks = append(marks, string(m.Kind))
		}
		var notUsed []string
		for _, f := range inv.NotUsed() {
			notUsed = append(notUsed, f.Name())
		}
		t.AppendRow(table.Row{inv.Index, inv.ID, strings.Join(marks, ", "), strings.Join(notUsed, ", ")})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d invocation(s)", len(p.Invocations)), "", ""})
	return t.Render()
}

// Render writes Table to w.
func (p *Plan) Render(w io.Writer) error {
	_, err := fmt.Fprintln(w, p.Table())
	return err
}
