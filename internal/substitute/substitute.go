// Package substitute implements the template substitution auxiliary
// tool (§1 "out of scope... interface-only"): it shares no state with
// the vault core. Given one JSON/YAML dataset and one or more
// src:dst template specs, it renders each template with
// text/template + sprig against the dataset.
package substitute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/substantialcattle5/syv/internal/spec"
)

// DecodeDataset reads JSON or YAML from r into a generic value tree
// usable as template data, trying YAML first (a superset of JSON)
// exactly as the original tool's de_json_or_yaml did.
func DecodeDataset(r io.Reader) (any, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read dataset: %w", err)
	}

	var yamlVal any
	if err := yaml.Unmarshal(buf, &yamlVal); err == nil {
		return normalize(yamlVal), nil
	}

	var jsonVal any
	if err := json.Unmarshal(buf, &jsonVal); err != nil {
		return nil, fmt.Errorf("could not deserialize dataset as YAML or JSON: %w", err)
	}
	return jsonVal, nil
}

// normalize converts map[string]interface{} keys that yaml.v3 may
// decode as map[interface{}]interface{} equivalents (not actually
// produced by yaml.v3, but kept defensive) into plain string-keyed
// maps so text/template's field lookups work uniformly.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}

// Run renders each spec's source template against dataset and writes
// the result to the spec's destination, creating parent directories
// as needed. Multiple specs writing to the same destination append
// (matching the original tool's seen_file_outputs bookkeeping).
func Run(dataset any, specs []spec.Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no template spec provided")
	}

	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		tmplBytes, err := readSource(s)
		if err != nil {
			return err
		}

		tmpl, err := template.New(s.Dst).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(string(tmplBytes))
		if err != nil {
			return fmt.Errorf("failed to parse template for %q: %w", s.Dst, err)
		}

		var out bytes.Buffer
		if err := tmpl.Execute(&out, dataset); err != nil {
			return fmt.Errorf("could not instantiate template for %q: %w", s.Dst, err)
		}

		if err := writeDest(s.Dst, out.Bytes(), seen[s.Dst]); err != nil {
			return err
		}
		seen[s.Dst] = true
	}
	return nil
}

func readSource(s spec.Spec) ([]byte, error) {
	if s.SrcKind == spec.SourcePath {
		return os.ReadFile(s.SrcPath)
	}
	return io.ReadAll(os.Stdin)
}

func writeDest(dst string, content []byte, append bool) error {
	if dst == "" || dst == "-" {
		_, err := os.Stdout.Write(content)
		return err
	}
	flags := os.O_CREATE | os.O_WRONLY
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("could not create parent directory for %q: %w", dst, err)
	}
	f, err := os.OpenFile(dst, flags, 0o644)
	if err != nil {
		return fmt.Errorf("could not open %q for writing: %w", dst, err)
	}
	defer f.Close()
	_, err = f.Write(content)
	return err
}
