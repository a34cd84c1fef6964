// Package extract assembles article records from fetched pages by
// evaluating a site's declarative field specifications.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"newscrawler/internal/domain"
	"newscrawler/internal/site"
)

// ParseError reports a page whose HTML could not be parsed at all.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse page %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document is a page parsed once for both selector engines.
type Document struct {
	url  string
	css  *goquery.Document
	root *html.Node
}

// Parse builds a Document from a fetched page body.
func Parse(pageURL string, body []byte) (*Document, error) {
	cssDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: err}
	}
	root, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: err}
	}
	return &Document{url: pageURL, css: cssDoc, root: root}, nil
}

// fragments evaluates one selector source. Fragments are trimmed of
// leading and trailing whitespace only; internal whitespace is preserved,
// since article body spacing can be meaningful.
func (d *Document) fragments(src site.Source) []string {
	var out []string
	switch src.Kind {
	case site.CSS:
		d.css.Find(src.Query).Each(func(_ int, s *goquery.Selection) {
			var text string
			if src.Attr != "" {
				text, _ = s.Attr(src.Attr)
			} else {
				text = s.Text()
			}
			if text = strings.TrimSpace(text); text != "" {
				out = append(out, text)
			}
		})
	case site.XPath:
		nodes, err := htmlquery.QueryAll(d.root, src.Query)
		if err != nil {
			return nil
		}
		for _, n := range nodes {
			if text := strings.TrimSpace(htmlquery.InnerText(n)); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}

// Resolve evaluates one field spec against the document. In fallback mode
// the first source yielding at least one fragment wins; in union mode
// every source contributes, in declared order. A field that matches
// nothing resolves to the empty string, never an error.
func Resolve(doc *Document, spec site.FieldSpec) string {
	var fragments []string
	for _, src := range spec.Sources {
		got := doc.fragments(src)
		if len(got) == 0 {
			continue
		}
		if spec.Mode == site.Fallback {
			return strings.Join(got, spec.Joiner)
		}
		fragments = append(fragments, got...)
	}
	return strings.Join(fragments, spec.Joiner)
}

// matched reports whether the source selects any node at all. Unlike
// fragments it does not require text content; an empty marker element
// still counts.
func (d *Document) matched(src site.Source) bool {
	switch src.Kind {
	case site.CSS:
		return d.css.Find(src.Query).Length() > 0
	case site.XPath:
		nodes, err := htmlquery.QueryAll(d.root, src.Query)
		return err == nil && len(nodes) > 0
	}
	return false
}

// Paywall probes the page for the site's paywall marker and returns the
// string-typed boolean the record contract expects. The marker's mere
// presence decides; its text does not matter.
func Paywall(doc *Document, probe *site.Source) string {
	if probe == nil {
		return "False"
	}
	if doc.matched(*probe) {
		return "True"
	}
	return "False"
}

// Record runs the full pipeline for one fetched page: one page, one
// record.
func Record(cfg *site.Config, pageURL string, body []byte, now time.Time) (domain.ArticleRecord, error) {
	doc, err := Parse(pageURL, body)
	if err != nil {
		return domain.ArticleRecord{}, err
	}

	rec := domain.ArticleRecord{
		Site:      cfg.Name,
		SourceURL: pageURL,
		CrawledAt: now,
	}
	for _, spec := range cfg.Fields {
		value := Resolve(doc, spec)
		switch spec.Name {
		case "title":
			rec.Title = value
		case "description":
			rec.Description = value
		case "author":
			rec.Author = value
		case "article_text":
			rec.ArticleText = value
		case "date_published":
			rec.DatePublished = value
		case "date_modified":
			rec.DateModified = value
		}
	}
	rec.Paywall = Paywall(doc, cfg.Paywall)
	return rec, nil
}
