package stage

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sweetpotato0/lexdraft/entity"
	errorskg "github.com/sweetpotato0/lexdraft/errors"
)

// Decoded is the outcome of decoding oracle output: either Value is set or
// Err describes why the raw text could not be used.
type Decoded[T any] struct {
	Value *T
	Err   *errorskg.MalformedOutputError
}

// OK reports whether decoding produced a value.
func (d Decoded[T]) OK() bool { return d.Err == nil && d.Value != nil }

func malformed[T any](raw, reason string) Decoded[T] {
	return Decoded[T]{Err: &errorskg.MalformedOutputError{Raw: raw, Reason: reason}}
}

// decodeJSON unmarshals the raw oracle output into T after stripping fences
// and surrounding prose.
func decodeJSON[T any](raw string) Decoded[T] {
	clean := sanitizeJSON(raw)
	if clean == "" {
		return malformed[T](raw, "empty response")
	}
	var out T
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return malformed[T](raw, "decode JSON: "+err.Error())
	}
	return Decoded[T]{Value: &out}
}

func sanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start >= 0 && end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	return trimmed
}

// stringList accepts a JSON array of strings, a single string or null.
// Non-string array items are kept in their JSON form.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = nil
		} else {
			*l = stringList{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
			continue
		}
		out = append(out, string(bytes.TrimSpace(item)))
	}
	*l = out
	return nil
}

// number accepts a JSON number or a numeric string such as "69.600,00".
type number struct {
	Value float64
	Set   bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = number{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, ok := entity.ParseMonetary(s)
		*n = number{Value: v, Set: ok}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		// Objects, booleans and the like carry no figure.
		*n = number{}
		return nil
	}
	*n = number{Value: v, Set: true}
	return nil
}

// score is a review mark on the 0-10 scale. Strings are read as a plain
// decimal, so "8.125" is eight and "7,5" is seven and a half; a trailing
// "/10" is dropped. Unlike number, dots are never thousand separators.
type score number

func (s *score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		return (*number)(s).UnmarshalJSON(data)
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	v, ok := parseScore(str)
	*s = score{Value: v, Set: ok}
	return nil
}

func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (n number) ptr() *float64 {
	if !n.Set {
		return nil
	}
	v := n.Value
	return &v
}

// flag accepts a JSON boolean or "true"/"false"/"sim"/"não" strings.
type flag struct {
	Value bool
	Set   bool
}

func (f *flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "true", "sim":
		*f = flag{Value: true, Set: true}
	case "false", "não", "nao":
		*f = flag{Value: false, Set: true}
	default:
		*f = flag{}
	}
	return nil
}

func (f flag) ptr() *bool {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// text accepts a JSON string, number or boolean and keeps its text form.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(strings.TrimSpace(s))
		return nil
	}
	*t = text(data)
	return nil
}

func (t text) String() string { return string(t) }
