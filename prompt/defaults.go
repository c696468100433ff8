package prompt

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

// Names of the built-in templates.
const (
	AnalystCredit   = "analyst_credit"
	AnalystGeneric  = "analyst_generic"
	PlannerCredit   = "planner_credit"
	PlannerGeneric  = "planner_generic"
	Drafter         = "drafter"
	DrafterChunk    = "drafter_chunk"
	ReviewerCredit  = "reviewer_credit"
	ReviewerGeneric = "reviewer_generic"
	Refiner         = "refiner"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Default returns a Library holding every built-in template.
func Default() (*Library, error) {
	entries, err := builtin.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read built-in prompts: %w", err)
	}
	l := NewLibrary()
	for _, entry := range entries {
		data, err := builtin.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read built-in prompt %s: %w", entry.Name(), err)
		}
		if err := l.Add(strings.TrimSuffix(entry.Name(), Ext), string(data)); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// MustDefault is Default that panics on error. The templates are embedded,
// so an error is a build defect.
func MustDefault() *Library {
	l, err := Default()
	if err != nil {
		panic(err)
	}
	return l
}
