// Package templates holds the immutable table of question, test-case, risk,
// and technical-consideration templates used by the generator.
package templates

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/ticketlens/internal/classify"
)

//go:embed templates.yaml
var defaultYAML []byte

// Bundle is the set of templates contributed by one category, or the baseline.
type Bundle struct {
	Questions map[string][]string `yaml:"questions"`
	TestCases map[string][]string `yaml:"test_cases"`
	Risks     []string            `yaml:"risks"`
	Technical []string            `yaml:"technical"`
}

// ContextTemplates are applied once per extracted fact.
type ContextTemplates struct {
	Technology     string `yaml:"technology"`
	Rule           string `yaml:"rule"`
	Component      string `yaml:"component"`
	Screen         string `yaml:"screen"`
	TechnologyTest string `yaml:"technology_test"`
}

// Table is the full template set. A loaded Table is never mutated.
type Table struct {
	Baseline Bundle                       `yaml:"baseline"`
	Bundles  map[classify.Category]Bundle `yaml:"bundles"`
	Signals  map[string]string            `yaml:"signals"`
	Context  ContextTemplates             `yaml:"context"`
}

// Parse decodes a YAML template table and checks that every bundle key is a
// known category.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing template table: %w", err)
	}
	for c := range t.Bundles {
		if !c.Valid() {
			return nil, fmt.Errorf("template table: unknown category %q", c)
		}
	}
	return &t, nil
}

// Default returns the embedded template table.
func Default() *Table {
	t, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Bundle returns the templates for c; unknown categories yield an empty bundle.
func (t *Table) Bundle(c classify.Category) Bundle {
	return t.Bundles[c]
}

// Vars are the values available to placeholders.
type Vars struct {
	Key        string
	Feature    string
	Technology string
	Rule       string
	Component  string
	Screen     string
}

var fallbacks = map[string]string{
	"key":        "this ticket",
	"feature":    "this feature",
	"technology": "the chosen technology",
	"rule":       "the documented business rules",
	"component":  "the affected component",
	"screen":     "the affected screen",
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_]+)\}`)

// Fill substitutes placeholders in tmpl. Empty values and unknown
// placeholder names are replaced with a generic phrase, so the result never
// contains an unresolved placeholder.
func Fill(tmpl string, v Vars) string {
	values := map[string]string{
		"key":        v.Key,
		"feature":    v.Feature,
		"technology": v.Technology,
		"rule":       v.Rule,
		"component":  v.Component,
		"screen":     v.Screen,
	}
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := strings.ToLower(m[1 : len(m)-1])
		if s := strings.TrimSpace(values[name]); s != "" {
			return s
		}
		if s, ok := fallbacks[name]; ok {
			return s
		}
		return "this item"
	})
	return strings.TrimSpace(out)
}
