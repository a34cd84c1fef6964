package site

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"newscrawler/internal/domain"
)

// Built-in publisher configurations. Adding a site means adding data here,
// not code anywhere else.

func strftime(layout string) Formatter {
	return func(d time.Time) string { return d.Format(layout) }
}

func lowerMonthName(d time.Time) string {
	return strings.ToLower(d.Format("January"))
}

func businessStandard() (*Config, error) {
	return New(Config{
		Name:           "businessstandard",
		AllowedDomains: []string{"www.business-standard.com", "business-standard.com"},
		SitemapType:    domain.Monthly,
		SitemapTemplates: []string{
			"https://www.business-standard.com/sitemap/{year}-{month}-1.xml",
		},
		DateFormatters: map[string]Formatter{
			"year":  strftime("2006"),
			"month": lowerMonthName,
		},
		Fields: []FieldSpec{
			{Name: "title", Sources: []Source{
				{Kind: CSS, Query: "h1.stryhdtp"},
				{Kind: CSS, Query: "h1"},
			}},
			{Name: "description", Sources: []Source{
				{Kind: CSS, Query: "h2.strydsc"},
			}},
			{Name: "author", Sources: []Source{
				{Kind: CSS, Query: "span.MainStory_dtlauthinfo__u_CUx span"},
			}},
			// The story body differs between the Indian site and the markup
			// served behind EU proxies, hence the union of three sources.
			{Name: "article_text", Mode: Union, Joiner: "\n", Sources: []Source{
				{Kind: XPath, Query: `//div[@id="parent_top_div"]/div/text()`},
				{Kind: XPath, Query: `//div[contains(@class, "storycontent")]//p[not(contains(@class, "whtsclick") or @id="auto_disclaimer")]/text()`},
				{Kind: XPath, Query: `//div[contains(@class, "storycontent")]//div/text()`},
			}},
			{Name: "date_published", Sources: []Source{
				{Kind: CSS, Query: `meta[property="article:published_time"]`, Attr: "content"},
			}},
			{Name: "date_modified", Sources: []Source{
				{Kind: CSS, Query: `meta[http-equiv="Last-Modified"]`, Attr: "content"},
			}},
		},
		Paywall: &Source{Kind: XPath, Query: `//small[contains(text(), "Premium")]`},
	}, []RuleSpec{
		{Pattern: `/markets/`, Routine: "article"},
		{Pattern: `/companies/`, Routine: "article"},
		{Pattern: `/economy-policy/`, Routine: "article"},
	})
}

func theHindu() (*Config, error) {
	return New(Config{
		Name:           "thehindu",
		AllowedDomains: []string{"www.thehindu.com"},
		SitemapType:    domain.Daily,
		SitemapTemplates: []string{
			"https://www.thehindu.com/sitemap/archive/all/{date}_1.xml",
		},
		DateFormatters: map[string]Formatter{
			"date": strftime("20060102"),
		},
		Fields: []FieldSpec{
			{Name: "title", Sources: []Source{
				{Kind: CSS, Query: "h1.title"},
				{Kind: CSS, Query: "h1"},
			}},
			{Name: "description", Sources: []Source{
				{Kind: CSS, Query: "h2.sub-title"},
				{Kind: CSS, Query: `meta[name="description"]`, Attr: "content"},
			}},
			{Name: "author", Sources: []Source{
				{Kind: CSS, Query: "div.author a.person-name"},
				{Kind: CSS, Query: "div.author"},
			}},
			{Name: "article_text", Joiner: "\n", Sources: []Source{
				{Kind: XPath, Query: `//div[contains(@class, "articlebodycontent")]//p[not(@class)]/text()`},
			}},
			{Name: "date_published", Sources: []Source{
				{Kind: CSS, Query: `meta[property="article:published_time"]`, Attr: "content"},
			}},
			{Name: "date_modified", Sources: []Source{
				{Kind: CSS, Query: `meta[property="article:modified_time"]`, Attr: "content"},
			}},
		},
		Paywall: &Source{Kind: CSS, Query: "div.paywall-wrapper"},
	}, []RuleSpec{
		{Pattern: `/business/`, Routine: "article"},
		{Pattern: `/news/national/`, Routine: "article"},
		{Pattern: `/markets/`, Routine: "article"},
	})
}

func financialExpress() (*Config, error) {
	return New(Config{
		Name:           "financialexpress",
		AllowedDomains: []string{"www.financialexpress.com"},
		SitemapType:    domain.Daily,
		SitemapTemplates: []string{
			"https://www.financialexpress.com/sitemap.xml?yyyy={year}&mm={month}&dd={day}",
		},
		DateFormatters: map[string]Formatter{
			"year":  strftime("2006"),
			"month": strftime("01"),
			"day":   strftime("02"),
		},
		Fields: []FieldSpec{
			{Name: "title", Sources: []Source{
				{Kind: CSS, Query: "h1.wp-block-post-title"},
				{Kind: CSS, Query: "h1"},
			}},
			{Name: "description", Sources: []Source{
				{Kind: CSS, Query: "div.article-summary"},
				{Kind: CSS, Query: `meta[name="description"]`, Attr: "content"},
			}},
			{Name: "author", Sources: []Source{
				{Kind: CSS, Query: "div.author-link a"},
			}},
			{Name: "article_text", Joiner: "\n", Sources: []Source{
				{Kind: XPath, Query: `//div[contains(@class, "pcl-container")]//p/text()`},
				{Kind: XPath, Query: `//div[contains(@class, "entry-content")]//p/text()`},
			}},
			{Name: "date_published", Sources: []Source{
				{Kind: CSS, Query: `meta[property="article:published_time"]`, Attr: "content"},
			}},
			{Name: "date_modified", Sources: []Source{
				{Kind: CSS, Query: `meta[property="article:modified_time"]`, Attr: "content"},
			}},
		},
		Paywall: &Source{Kind: XPath, Query: `//span[contains(@class, "premium-tag")]`},
	}, []RuleSpec{
		{Pattern: `/market/`, Routine: "article"},
		{Pattern: `/business/`, Routine: "article"},
		{Pattern: `/economy/`, Routine: "article"},
	})
}

var registry = map[string]func() (*Config, error){
	"businessstandard": businessStandard,
	"thehindu":         theHindu,
	"financialexpress": financialExpress,
}

// Lookup constructs a built-in site configuration by name.
func Lookup(name string) (*Config, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown site %q", name)
	}
	return build()
}

// Names lists the built-in site names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
