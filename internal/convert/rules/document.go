package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"itemconverter.ai/internal/convert/item"
)

//go:embed rule.schema.json
var ruleSchemaJSON string

var ruleSchema = jsonschema.MustCompileString("rule.schema.json", ruleSchemaJSON)

// Document is the on-disk JSON form of a rule. The rule name is the document's
// path relative to the rules directory, without extension.
type Document struct {
	Input         item.Spec   `json:"input"`
	Output        []item.Spec `json:"output"`
	Sound         string      `json:"sound"`
	Pitch         float32     `json:"pitch"`
	Volume        float32     `json:"volume"`
	Bidirectional bool        `json:"bidirectional,omitempty"`
}

// DocumentOf converts a rule to its document form.
func DocumentOf(r Rule) Document {
	d := Document{
		Input:         item.SpecOf(r.Input),
		Output:        make([]item.Spec, 0, len(r.Outputs)),
		Sound:         r.Cue.Sound,
		Pitch:         r.Cue.Pitch,
		Volume:        r.Cue.Volume,
		Bidirectional: r.Bidirectional,
	}
	for _, o := range r.Outputs {
		d.Output = append(d.Output, item.SpecOf(o))
	}
	return d
}

// Rule converts d into a named rule.
func (d Document) Rule(name string) (Rule, error) {
	in, err := d.Input.Stack()
	if err != nil {
		return Rule{}, fmt.Errorf("input: %w", err)
	}
	r := Rule{
		Name:          name,
		Input:         in,
		Outputs:       make([]item.Stack, 0, len(d.Output)),
		Cue:           Cue{Sound: d.Sound, Pitch: d.Pitch, Volume: d.Volume},
		Bidirectional: d.Bidirectional,
	}
	for i, o := range d.Output {
		st, err := o.Stack()
		if err != nil {
			return Rule{}, fmt.Errorf("output[%d]: %w", i, err)
		}
		r.Outputs = append(r.Outputs, st)
	}
	return r, nil
}

// Validate checks raw JSON against the rule schema.
func Validate(raw []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return ruleSchema.Validate(v)
}

// Parse validates and decodes one rule document.
func Parse(name string, raw []byte) (Rule, error) {
	if err := Validate(raw); err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", name, err)
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", name, err)
	}
	r, err := d.Rule(name)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", name, err)
	}
	return r, nil
}

// LoadDir reads every *.json document under dir in lexical path order.
// Invalid documents are skipped and reported in bad; err is set only when the
// directory itself cannot be read. A missing directory yields no rules.
func LoadDir(dir string) (out []Rule, bad []error, err error) {
	var files []string
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, walkErr
	}
	sort.Strings(files)

	for _, p := range files {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil, nil, err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		raw, err := os.ReadFile(p)
		if err != nil {
			bad = append(bad, fmt.Errorf("rule %s: %w", name, err))
			continue
		}
		r, err := Parse(name, raw)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		out = append(out, r)
	}
	return out, bad, nil
}

// WriteDir writes each rule as an indented JSON document at <dir>/<name>.json.
func WriteDir(dir string, rs []Rule) (int, error) {
	n := 0
	for _, r := range rs {
		clean := path.Clean(r.Name)
		if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
			return n, fmt.Errorf("rule %q: name is not a relative path", r.Name)
		}
		p := filepath.Join(dir, filepath.FromSlash(clean)+".json")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return n, err
		}
		b, err := json.MarshalIndent(DocumentOf(r), "", "  ")
		if err != nil {
			return n, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		if err := os.WriteFile(p, append(b, '\n'), 0o644); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
