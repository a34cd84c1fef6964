package site

import (
	"fmt"
	"regexp"
	"time"

	"newscrawler/internal/domain"
)

// ConfigError reports an invalid site configuration. It is fatal at
// construction time, before any fetch happens.
type ConfigError struct {
	Site   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("site %q: %s", e.Site, e.Reason)
}

// SourceKind distinguishes how a selector source is evaluated.
type SourceKind int

const (
	CSS SourceKind = iota
	XPath
)

// Source is one selector expression feeding a field. For CSS sources Attr
// selects an attribute value instead of element text.
type Source struct {
	Kind  SourceKind
	Query string
	Attr  string
}

// FieldMode controls how a field's sources are combined.
type FieldMode int

const (
	// Fallback tries sources in order; the first yielding a fragment wins.
	Fallback FieldMode = iota
	// Union concatenates every source's fragments in declared order.
	Union
)

// FieldSpec resolves one output field from an ordered list of sources.
type FieldSpec struct {
	Name    string
	Sources []Source
	Mode    FieldMode
	Joiner  string
}

// RuleSpec is the declarative form of a dispatch rule.
type RuleSpec struct {
	Pattern string
	Routine string
}

// DispatchRule routes a discovered URL to an extraction routine. Rules are
// evaluated in declaration order and the first match wins.
type DispatchRule struct {
	Pattern *regexp.Regexp
	Routine string
}

// Formatter renders one date placeholder of a sitemap URL template.
type Formatter func(time.Time) string

// Config describes one publisher site. Immutable after construction.
type Config struct {
	Name             string
	AllowedDomains   []string
	SitemapType      domain.Granularity
	SitemapTemplates []string
	DateFormatters   map[string]Formatter
	Rules            []DispatchRule
	Fields           []FieldSpec
	// Paywall marks a record as paywalled when the probe matches anything
	// on the page.
	Paywall *Source
	// UseBrowser selects the headless-browser fetcher for page loads.
	UseBrowser bool
}

var articleFields = map[string]bool{
	"title":          true,
	"description":    true,
	"author":         true,
	"article_text":   true,
	"date_published": true,
	"date_modified":  true,
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// New validates the declarative parts of a site configuration and compiles
// its dispatch rules. Every placeholder in every sitemap template must have
// a formatter; this is checked here so a bad config never reaches a crawl.
func New(cfg Config, rules []RuleSpec) (*Config, error) {
	if cfg.Name == "" {
		return nil, &ConfigError{Site: cfg.Name, Reason: "missing name"}
	}
	if cfg.SitemapType != domain.Monthly && cfg.SitemapType != domain.Daily {
		return nil, &ConfigError{Site: cfg.Name, Reason: fmt.Sprintf("unknown sitemap type %q", cfg.SitemapType)}
	}
	if len(cfg.SitemapTemplates) == 0 {
		return nil, &ConfigError{Site: cfg.Name, Reason: "no sitemap templates"}
	}
	for _, tpl := range cfg.SitemapTemplates {
		for _, m := range placeholderPattern.FindAllStringSubmatch(tpl, -1) {
			if _, ok := cfg.DateFormatters[m[1]]; !ok {
				return nil, &ConfigError{
					Site:   cfg.Name,
					Reason: fmt.Sprintf("template %q references placeholder %q with no formatter", tpl, m[1]),
				}
			}
		}
	}
	for _, spec := range cfg.Fields {
		if !articleFields[spec.Name] {
			return nil, &ConfigError{Site: cfg.Name, Reason: fmt.Sprintf("unknown field %q", spec.Name)}
		}
		if len(spec.Sources) == 0 {
			return nil, &ConfigError{Site: cfg.Name, Reason: fmt.Sprintf("field %q has no sources", spec.Name)}
		}
	}
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, &ConfigError{Site: cfg.Name, Reason: fmt.Sprintf("bad dispatch pattern %q: %v", r.Pattern, err)}
		}
		cfg.Rules = append(cfg.Rules, DispatchRule{Pattern: re, Routine: r.Routine})
	}
	if len(cfg.Rules) == 0 {
		return nil, &ConfigError{Site: cfg.Name, Reason: "no dispatch rules"}
	}
	return &cfg, nil
}

// SitemapURLs renders every sitemap template for one calendar unit. Pure
// string substitution; rendering the same unit twice yields the same URLs.
func (c *Config) SitemapURLs(u domain.CalendarUnit) []string {
	d := u.Date()
	urls := make([]string, 0, len(c.SitemapTemplates))
	for _, tpl := range c.SitemapTemplates {
		urls = append(urls, placeholderPattern.ReplaceAllStringFunc(tpl, func(m string) string {
			name := m[1 : len(m)-1]
			return c.DateFormatters[name](d)
		}))
	}
	return urls
}
