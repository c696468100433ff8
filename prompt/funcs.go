package prompt

import (
	"encoding/json"
	"strings"
	"text/template"
	"unicode/utf8"
)

// Funcs returns the helpers available to every template.
//
//	json      indented JSON of any value
//	truncate  first n runes of s, followed by marker when s was cut
//	bullets   one "prefix item" line per item
//	join      strings.Join with the arguments swapped for pipelines
//	default   fallback when the value is the zero string
func Funcs() template.FuncMap {
	return template.FuncMap{
		"json":     toJSON,
		"truncate": Truncate,
		"bullets":  bullets,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
		"default": func(fallback, value string) string {
			if strings.TrimSpace(value) == "" {
				return fallback
			}
			return value
		},
	}
}

func toJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Truncate keeps the first n runes of s and appends marker when anything was
// dropped.
func Truncate(s string, n int, marker string) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + marker
}

func bullets(prefix string, items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(prefix)
		b.WriteString(item)
	}
	return b.String()
}
