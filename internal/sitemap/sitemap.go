// Package sitemap expands a sitemap URL into the leaf page URLs it covers,
// recursing through nested sitemap indexes.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"newscrawler/internal/fetch"
)

// Entry is one leaf page URL from a urlset.
type Entry struct {
	Loc     string
	LastMod string
}

// ParseError reports a sitemap document that could not be decoded.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse sitemap %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

// Walker fetches and flattens sitemap trees.
type Walker struct {
	fetcher  fetch.Fetcher
	maxDepth int
	logger   *zap.Logger
}

// NewWalker bounds recursion at maxDepth levels of nested indexes, guarding
// against malformed cyclic sitemaps.
func NewWalker(f fetch.Fetcher, maxDepth int, logger *zap.Logger) *Walker {
	if maxDepth < 1 {
		maxDepth = 1
	}
	return &Walker{fetcher: f, maxDepth: maxDepth, logger: logger}
}

// Leaves fetches sitemapURL and returns every leaf page URL under it. A
// child index that fails to fetch or parse is logged and skipped; only a
// failure of the root document is returned as an error.
func (w *Walker) Leaves(ctx context.Context, sitemapURL string) ([]Entry, error) {
	leaves, err := w.walk(ctx, sitemapURL, 0, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

func (w *Walker) walk(ctx context.Context, u string, depth int, visited map[string]bool) ([]Entry, error) {
	if visited[u] {
		return nil, nil
	}
	visited[u] = true

	body, err := w.fetcher.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	children, leaves, err := parse(u, body)
	if err != nil {
		return nil, err
	}

	if len(children) > 0 && depth+1 >= w.maxDepth {
		w.logger.Warn("sitemap recursion depth reached, skipping children",
			zap.String("url", u), zap.Int("children", len(children)))
		return leaves, nil
	}
	for _, child := range children {
		if ctx.Err() != nil {
			return leaves, ctx.Err()
		}
		childLeaves, err := w.walk(ctx, child, depth+1, visited)
		if err != nil {
			w.logger.Warn("skipping child sitemap",
				zap.String("url", child), zap.Error(err))
			continue
		}
		leaves = append(leaves, childLeaves...)
	}
	return leaves, nil
}

// parse decodes a sitemap document as an index or a urlset.
func parse(u string, data []byte) (children []string, leaves []Entry, err error) {
	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err == nil && index.XMLName.Local == "sitemapindex" {
		for _, sm := range index.Sitemaps {
			if loc := strings.TrimSpace(sm.Loc); loc != "" {
				children = append(children, loc)
			}
		}
		return children, nil, nil
	}

	var set urlSet
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&set); err != nil {
		return nil, nil, &ParseError{URL: u, Err: err}
	}
	if set.XMLName.Local != "urlset" {
		return nil, nil, &ParseError{URL: u, Err: fmt.Errorf("unexpected root element %q", set.XMLName.Local)}
	}
	for _, entry := range set.URLs {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			leaves = append(leaves, Entry{Loc: loc, LastMod: strings.TrimSpace(entry.LastMod)})
		}
	}
	return nil, leaves, nil
}
