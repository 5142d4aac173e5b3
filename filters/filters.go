// Package filters provides predicates over case metadata.
//
// A Filter is an immutable value. Combinators never modify their operands; they
// return a new Filter closing over them, so filters can be shared freely:
//
//	fast := filters.HasTag("fast")
//	selected := fast.And(filters.IDHasPrefix("http_")).Or(filters.HasTag("smoke"))
//	everythingElse := selected.Not()
package filters

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Candidate is the metadata a filter can observe.
type Candidate interface {
	ID() string
	Tags() []any
}

// Filter is a pure boolean predicate over a Candidate.
type Filter struct {
	desc  string
	match func(Candidate) bool
}

// New creates a filter from an arbitrary predicate.
func New(desc string, match func(Candidate) bool) Filter {
	return Filter{desc: desc, match: match}
}

// Match reports whether c satisfies the filter. The zero Filter matches everything.
func (f Filter) Match(c Candidate) bool {
	if f.match == nil {
		return true
	}
	return f.match(c)
}

// IsZero reports whether f is the match-all zero value.
func (f Filter) IsZero() bool {
	return f.match == nil
}

func (f Filter) String() string {
	if f.match == nil {
		return "all"
	}
	return f.desc
}

// And returns a filter matching when both f and g match.
func (f Filter) And(g Filter) Filter {
	return Filter{
		desc: fmt.Sprintf("(%s & %s)", f, g),
		match: func(c Candidate) bool {
			return f.Match(c) && g.Match(c)
		},
	}
}

// Or returns a filter matching when f or g matches.
func (f Filter) Or(g Filter) Filter {
	return Filter{
		desc: fmt.Sprintf("(%s | %s)", f, g),
		match: func(c Candidate) bool {
			return f.Match(c) || g.Match(c)
		},
	}
}

// Not returns the negation of f.
func (f Filter) Not() Filter {
	return Not(f)
}

// Not returns the negation of f.
func Not(f Filter) Filter {
	return Filter{
		desc: fmt.Sprintf("~%s", f),
		match: func(c Candidate) bool {
			return !f.Match(c)
		},
	}
}

// All matches when every filter matches. All() matches everything.
func All(fs ...Filter) Filter {
	if len(fs) == 0 {
		return Filter{}
	}
	out := fs[0]
	for _, f := range fs[1:] {
		out = out.And(f)
	}
	return out
}

// Any matches when at least one filter matches. Any() matches nothing.
func Any(fs ...Filter) Filter {
	if len(fs) == 0 {
		return Filter{
			desc:  "none",
			match: func(Candidate) bool { return false },
		}
	}
	out := fs[0]
	for _, f := range fs[1:] {
		out = out.Or(f)
	}
	return out
}

// HasTag matches candidates carrying tag.
func HasTag(tag any) Filter {
	return Filter{
		desc: fmt.Sprintf("has_tag(%v)", tag),
		match: func(c Candidate) bool {
			return hasTag(c.Tags(), tag)
		},
	}
}

// HasTags matches candidates carrying every one of tags. With no tags it matches
// everything, including untagged candidates.
func HasTags(tags ...any) Filter {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprint(t)
	}
	return Filter{
		desc: fmt.Sprintf("has_tags(%s)", strings.Join(parts, ", ")),
		match: func(c Candidate) bool {
			own := c.Tags()
			for _, t := range tags {
				if !hasTag(own, t) {
					return false
				}
			}
			return true
		},
	}
}

// IDHasPrefix matches candidates whose id starts with prefix.
func IDHasPrefix(prefix string) Filter {
	return Filter{
		desc: fmt.Sprintf("id_has_prefix(%q)", prefix),
		match: func(c Candidate) bool {
			return strings.HasPrefix(c.ID(), prefix)
		},
	}
}

// IDHasSuffix matches candidates whose id ends with suffix.
func IDHasSuffix(suffix string) Filter {
	return Filter{
		desc: fmt.Sprintf("id_has_suffix(%q)", suffix),
		match: func(c Candidate) bool {
			return strings.HasSuffix(c.ID(), suffix)
		},
	}
}

// IDMatch matches candidates whose id starts with a match of the regular
// expression; append "$" to require a full match. A malformed pattern is reported
// immediately.
func IDMatch(pattern string) (Filter, error) {
	if _, err := regexp.Compile(pattern); err != nil {
		return Filter{}, fmt.Errorf("invalid id pattern %q: %w", pattern, err)
	}
	re := regexp.MustCompile(`\A(?:` + pattern + `)`)
	return Filter{
		desc: fmt.Sprintf("match_regex(%q)", pattern),
		match: func(c Candidate) bool {
			return re.MatchString(c.ID())
		},
	}, nil
}

// MustIDMatch is like IDMatch but panics on a malformed pattern.
func MustIDMatch(pattern string) Filter {
	f, err := IDMatch(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

// IDGlob matches the whole id against a shell pattern ("*", "?", "[...]").
func IDGlob(pattern string) (Filter, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return Filter{}, fmt.Errorf("invalid id glob %q: %w", pattern, err)
	}
	return Filter{
		desc: fmt.Sprintf("glob(%q)", pattern),
		match: func(c Candidate) bool {
			ok, _ := path.Match(pattern, c.ID())
			return ok
		},
	}, nil
}

func hasTag(tags []any, tag any) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
