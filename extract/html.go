package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "h1,h2,h3,h4,h5,h6,p,li,pre,blockquote,table"

// HTML keeps headings, paragraphs, list items and tables of a page, one
// block per paragraph. Pages without such blocks fall back to the body text.
type HTML struct{}

func (HTML) Extract(_ context.Context, raw Raw) (*Extraction, error) {
	text, err := decodeText(raw.Data)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(text)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script,style,noscript,nav,header,footer").Remove()

	var out []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are emitted by their outermost ancestor.
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		switch name := goquery.NodeName(s); name {
		case "table":
			if t := tableText(s); t != "" {
				out = append(out, t)
			}
		case "li":
			if t := strings.TrimSpace(s.Text()); t != "" {
				out = append(out, "- "+t)
			}
		default:
			if t := strings.TrimSpace(s.Text()); t != "" {
				out = append(out, t)
			}
		}
	})
	if len(out) == 0 {
		out = append(out, doc.Find("body").Text())
	}
	return finish(strings.Join(out, "\n\n"), MethodHTML, 0)
}

func tableText(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(_ int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}
