package document

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Document is an immutable source text together with its fingerprint.
type Document struct {
	Title       string            `json:"title,omitempty"`
	Text        string            `json:"text"`
	Fingerprint string            `json:"fingerprint"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New builds a Document and computes its fingerprint.
func New(text string) Document {
	return Document{Text: text, Fingerprint: Fingerprint(text)}
}

// WithTitle returns a copy carrying title.
func (d Document) WithTitle(title string) Document {
	d.Title = title
	return d
}

// WithMetadata returns a copy with key set; the receiver's map is not modified.
func (d Document) WithMetadata(key, value string) Document {
	meta := make(map[string]string, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta[key] = value
	d.Metadata = meta
	return d
}

// IsEmpty reports whether the document has no visible content.
func (d Document) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}

// ID is a short, stable identifier derived from the fingerprint.
func (d Document) ID() string {
	fp := d.Fingerprint
	if fp == "" {
		fp = Fingerprint(d.Text)
	}
	return "doc_" + fp[:12]
}

// Fingerprint returns the hex SHA-256 of text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
