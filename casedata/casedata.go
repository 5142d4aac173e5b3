// Package casedata loads literal cases from YAML documents:
//
//	cases:
//	  - id: one
//	    tags: [A]
//	    value: 1
//	  - id: pair
//	    values: [in, out]
//	    skip: not ready
package casedata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	cases "github.com/pumped-fn/pumped-cases"
)

// ErrInvalidDocument reports a document that cannot be turned into cases.
var ErrInvalidDocument = errors.New("invalid case document")

// Document is the top-level YAML shape.
type Document struct {
	Cases []Entry `yaml:"cases"`
}

// Entry is one case. Exactly one of Value and Values is set; Values becomes a
// cases.Tuple.
type Entry struct {
	ID     string    `yaml:"id"`
	Tags   []string  `yaml:"tags"`
	Value  yaml.Node `yaml:"value"`
	Values []any     `yaml:"values"`
	Skip   string    `yaml:"skip"`
	XFail  string    `yaml:"xfail"`
}

// Parse decodes data into cases, in document order.
func Parse(data []byte) ([]*cases.Case, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	seen := make(map[string]bool, len(doc.Cases))
	out := make([]*cases.Case, 0, len(doc.Cases))
	for i, entry := range doc.Cases {
		c, err := entry.toCase()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidDocument, i, err)
		}
		if seen[c.ID()] {
			return nil, fmt.Errorf("%w: duplicated id %q", ErrInvalidDocument, c.ID())
		}
		seen[c.ID()] = true
		out = append(out, c)
	}
	return out, nil
}

// Load reads a document from r.
func Load(r io.Reader) ([]*cases.Case, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading case document: %w", err)
	}
	return Parse(data)
}

// LoadFile reads a document from path.
func LoadFile(path string) ([]*cases.Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading case document %s: %w", path, err)
	}
	cs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cs, nil
}

func (e Entry) toCase() (*cases.Case, error) {
	if e.ID == "" {
		return nil, errors.New("missing id")
	}
	hasValue := !e.Value.IsZero()
	if hasValue && e.Values != nil {
		return nil, fmt.Errorf("%s: value and values are exclusive", e.ID)
	}
	if !hasValue && e.Values == nil {
		return nil, fmt.Errorf("%s: value or values is required", e.ID)
	}

	var value any
	if hasValue {
		if err := e.Value.Decode(&value); err != nil {
			return nil, fmt.Errorf("%s: %w", e.ID, err)
		}
	} else {
		value = cases.Tuple(e.Values)
	}

	var opts []cases.CaseOption
	if len(e.Tags) > 0 {
		tags := make([]any, len(e.Tags))
		for i, t := range e.Tags {
			tags[i] = t
		}
		opts = append(opts, cases.WithTags(tags...))
	}
	if e.Skip != "" {
		opts = append(opts, cases.WithMarks(cases.Skip(e.Skip)))
	}
	if e.XFail != "" {
		opts = append(opts, cases.WithMarks(cases.XFail(e.XFail)))
	}

	return cases.NewCase(e.ID, func() (any, error) { return value, nil }, opts...)
}
