package cases

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// IDStyle selects how union alternatives are rendered in invocation ids.
type IDStyle int

const (
	// IDStyleExplicit renders "<argnames>_is_<alternative id>".
	IDStyleExplicit IDStyle = iota
	// IDStyleNone renders the alternative id alone.
	IDStyleNone
)

func (s IDStyle) String() string {
	switch s {
	case IDStyleExplicit:
		return "explicit"
	case IDStyleNone:
		return "none"
	default:
		return fmt.Sprintf("IDStyle(%d)", int(s))
	}
}

// ParseIDStyle parses "explicit" or "none".
func ParseIDStyle(s string) (IDStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "explicit":
		return IDStyleExplicit, nil
	case "none":
		return IDStyleNone, nil
	default:
		return IDStyleExplicit, fmt.Errorf("unknown id style %q", s)
	}
}

func unionFragment(style IDStyle, name, altID string) string {
	if style == IDStyleNone {
		return altID
	}
	return name + "_is_" + altID
}

// valueID renders scalars; ok is false when the value has no natural id.
func valueID(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "nil", true
	case string:
		return x, x != ""
	case bool:
		return strconv.FormatBool(x), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case []any:
		return valueID(Tuple(x))
	case Tuple:
		parts := make([]string, len(x))
		for i, e := range x {
			id, ok := valueID(e)
			if !ok {
				return "", false
			}
			parts[i] = id
		}
		return strings.Join(parts, "-"), len(parts) > 0
	}
	return "", false
}

// uniqueIDs suffixes duplicated ids with "_<n>", n counting the occurrences of the
// duplicated id, and keeps bumping n until the result is unused.
func uniqueIDs(ids []string) []string {
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}

	taken := make(map[string]bool, len(ids))
	for _, id := range ids {
		if counts[id] == 1 {
			taken[id] = true
		}
	}

	next := make(map[string]int)
	out := make([]string, len(ids))
	for i, id := range ids {
		if counts[id] == 1 {
			out[i] = id
			continue
		}
		for {
			candidate := fmt.Sprintf("%s_%d", id, next[id])
			next[id]++
			if !taken[candidate] {
				taken[candidate] = true
				out[i] = candidate
				break
			}
		}
	}
	return out
}

// idTemplate renders ids of literal sources from argname -> value data.
type idTemplate struct {
	tmpl *template.Template
}

func parseIDTemplate(text string) (*idTemplate, error) {
	t, err := template.New("id").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid id template %q: %w", text, err)
	}
	return &idTemplate{tmpl: t}, nil
}

func (t *idTemplate) render(argnames []string, values Tuple) (string, error) {
	data := make(map[string]any, len(argnames))
	for i, name := range argnames {
		if i < len(values) {
			data[name] = values[i]
		}
	}
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering id template: %w", err)
	}
	return sb.String(), nil
}
