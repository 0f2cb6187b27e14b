// Package mergeextract implements the JSON/YAML merge/extract
// auxiliary tool (§1 "out of scope... interface-only"): merging a
// sequence of JSON or YAML documents with configurable overwrite
// behavior, and extracting a scalar or complex value from a document
// by dotted or slash-separated path.
package mergeextract

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// OutputMode selects how Merge/Extract serialize their result.
type OutputMode int

const (
	OutputJSON OutputMode = iota
	OutputYAML
)

// MergeMode controls how colliding keys across documents are
// resolved, the Go analogue of the original tool's NeverDrop filter.
type MergeMode int

const (
	// NoOverwrite keeps the first document's value on any clash,
	// matching the original tool's default.
	NoOverwrite MergeMode = iota
	// Overwrite lets later documents replace earlier values.
	Overwrite
)

// Decode parses a single JSON-or-YAML document from r.
func Decode(r io.Reader) (map[string]any, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read document: %w", err)
	}
	var v map[string]any
	if err := yaml.Unmarshal(buf, &v); err != nil {
		return nil, fmt.Errorf("could not deserialize document as YAML or JSON: %w", err)
	}
	return v, nil
}

// Merge folds docs left to right into a single map. Under NoOverwrite
// (the default), a clashing key keeps its first value; under
// Overwrite, later documents win.
func Merge(docs []map[string]any, mode MergeMode) (map[string]any, error) {
	if len(docs) == 0 {
		return map[string]any{}, nil
	}
	result := map[string]any{}
	for _, doc := range docs {
		var err error
		if mode == Overwrite {
			err = mergo.Merge(&result, doc, mergo.WithOverride)
		} else {
			err = mergo.Merge(&result, doc)
		}
		if err != nil {
			return nil, fmt.Errorf("merge failed: %w", err)
		}
	}
	return result, nil
}

// Serialize renders v per mode.
func Serialize(v any, mode OutputMode) ([]byte, error) {
	switch mode {
	case OutputYAML:
		return yaml.Marshal(v)
	default:
		return json.MarshalIndent(v, "", "  ")
	}
}

// Extract navigates doc by pointer, a dotted-or-slash path like
// "a.b.0" or "0/a/b/4", and returns the value found there.
func Extract(doc any, pointer string) (any, error) {
	sep := "."
	if strings.Contains(pointer, "/") {
		sep = "/"
	}
	current := doc
	for _, part := range strings.Split(pointer, sep) {
		if part == "" {
			continue
		}
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("pointer %q: no key %q", pointer, part)
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("pointer %q: index %q out of range", pointer, part)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("pointer %q: cannot descend into scalar at %q", pointer, part)
		}
	}
	return current, nil
}

// FormatScalar renders v as a single line when it is a scalar value,
// matching the original tool's "one scalar value per line" default
// when no explicit --output mode is requested.
func FormatScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case nil:
		return "null", true
	default:
		return "", false
	}
}
