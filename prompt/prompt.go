// Package prompt holds the text/template prompts sent to the oracle by each
// pipeline stage.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/template"
)

// Ext is the file extension of template files.
const Ext = ".tmpl"

// Template is one compiled prompt.
type Template struct {
	Name string
	tmpl *template.Template
}

// Parse compiles content. Templates may use the helpers in Funcs; a variable
// the template reads but the caller did not supply fails the render.
func Parse(name, content string) (*Template, error) {
	t, err := template.New(name).Funcs(Funcs()).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Template{Name: name, tmpl: t}, nil
}

// Render executes the template.
func (t *Template) Render(vars map[string]interface{}) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name, err)
	}
	return b.String(), nil
}

// Library maps template names to compiled prompts. It is safe for
// concurrent use.
type Library struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{templates: make(map[string]*Template)}
}

// Add compiles and stores a new template. Adding a name twice is an error;
// use Replace to override.
func (l *Library) Add(name, content string) error {
	if name == "" {
		return fmt.Errorf("prompt name is empty")
	}
	t, err := Parse(name, content)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.templates[name]; dup {
		return fmt.Errorf("prompt %s already defined", name)
	}
	l.templates[name] = t
	return nil
}

// Replace compiles content over an existing template. Unknown names are
// rejected so a misspelt override file does not go unnoticed.
func (l *Library) Replace(name, content string) error {
	t, err := Parse(name, content)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.templates[name]; !ok {
		return fmt.Errorf("prompt %s is not defined", name)
	}
	l.templates[name] = t
	return nil
}

// LoadDir replaces templates with the *.tmpl files of dir, each named after
// its file. It returns the names it replaced.
func (l *Library) LoadDir(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("prompt dir: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return nil, err
	}
	var replaced []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return replaced, fmt.Errorf("read prompt: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(p), Ext)
		if err := l.Replace(name, string(data)); err != nil {
			return replaced, err
		}
		replaced = append(replaced, name)
	}
	return replaced, nil
}

// Lookup returns the named template.
func (l *Library) Lookup(name string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[name]
	return t, ok
}

// Render executes the named template with vars.
func (l *Library) Render(name string, vars map[string]interface{}) (string, error) {
	t, ok := l.Lookup(name)
	if !ok {
		return "", fmt.Errorf("prompt %s is not defined", name)
	}
	return t.Render(vars)
}

// Names lists the defined templates in order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
