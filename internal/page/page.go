// Package page wraps a parsed HTML document so the listing view and the grid
// engine can share it. All access goes through one mutex: the document is
// mutated from request handlers and from asynchronous filter completions.
package page

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// Document is a parsed page.
type Document struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString is Parse for an in-memory page.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Update runs fn with exclusive access to the document root. fn must not call
// back into the Document.
func (d *Document) Update(fn func(root *goquery.Selection)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc.Selection)
}

// Render serializes the whole document.
func (d *Document) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	for _, n := range d.doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

// Fragment serializes the first element matching selector, or "" when absent.
func (d *Document) Fragment(selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", nil
	}
	return goquery.OuterHtml(sel)
}

// Style returns one inline style property of the first element in s.
func Style(s *goquery.Selection, prop string) (string, bool) {
	for _, decl := range declarations(s) {
		if decl.Property == prop {
			return decl.Value, true
		}
	}
	return "", false
}

// SetStyle sets an inline style property on every element in s. An empty
// value removes the property, like assigning "" to element.style.
func SetStyle(s *goquery.Selection, prop, value string) {
	s.Each(func(_ int, el *goquery.Selection) {
		decls := declarations(el)
		out := decls[:0]
		replaced := false
		for _, decl := range decls {
			if decl.Property != prop {
				out = append(out, decl)
				continue
			}
			if value != "" && !replaced {
				decl.Value = value
				decl.Important = false
				out = append(out, decl)
				replaced = true
			}
		}
		if value != "" && !replaced {
			out = append(out, &css.Declaration{Property: prop, Value: value})
		}
		writeDeclarations(el, out)
	})
}

func declarations(s *goquery.Selection) []*css.Declaration {
	raw, ok := s.Attr("style")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	decls, err := parser.ParseDeclarations(raw)
	if err != nil {
		return nil
	}
	return decls
}

func writeDeclarations(s *goquery.Selection, decls []*css.Declaration) {
	if len(decls) == 0 {
		s.RemoveAttr("style")
		return
	}
	parts := make([]string, 0, len(decls))
	for _, decl := range decls {
		p := decl.Property + ": " + decl.Value
		if decl.Important {
			p += " !important"
		}
		parts = append(parts, p+";")
	}
	s.SetAttr("style", strings.Join(parts, " "))
}

// Disable marks a control as non-interactive and dimmed.
func Disable(s *goquery.Selection) {
	s.AddClass("disabled")
	SetStyle(s, "pointer-events", "none")
	SetStyle(s, "opacity", "0.5")
}

// Enable reverses Disable.
func Enable(s *goquery.Selection) {
	s.RemoveClass("disabled")
	SetStyle(s, "pointer-events", "auto")
	SetStyle(s, "opacity", "1")
}

// Disabled reports whether the first element in s is disabled.
func Disabled(s *goquery.Selection) bool {
	return s.HasClass("disabled")
}

// Hide hides elements through both the hide class and an inline display
// override, so conflicting stylesheet rules cannot show them.
func Hide(s *goquery.Selection) {
	s.AddClass("hide")
	SetStyle(s, "display", "none")
}

// Show reverses Hide.
func Show(s *goquery.Selection) {
	s.RemoveClass("hide")
	SetStyle(s, "display", "")
}

// Hidden reports whether the first element in s carries an inline display:none.
func Hidden(s *goquery.Selection) bool {
	v, ok := Style(s, "display")
	return ok && strings.TrimSpace(v) == "none"
}

// AppendInOrder detaches each element of items and re-appends it to parent in
// the given order. The nodes are moved, not copied.
func AppendInOrder(parent *goquery.Selection, items []*goquery.Selection) {
	if parent.Length() == 0 {
		return
	}
	p := parent.Nodes[0]
	for _, item := range items {
		for _, n := range item.Nodes {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			p.AppendChild(n)
		}
	}
}

// Matches reports whether the first element of s carries attribute attr with value.
func Matches(s *goquery.Selection, attr, value string) bool {
	v, ok := s.Attr(attr)
	return ok && v == value
}
