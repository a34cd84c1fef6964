package domain

import "time"

// Granularity selects how a site's sitemap archive is partitioned.
type Granularity string

const (
	Monthly Granularity = "monthly"
	Daily   Granularity = "daily"
)

// CalendarUnit is a single step of a sitemap window: one month or one day.
// Day is zero for monthly units.
type CalendarUnit struct {
	Year  int
	Month time.Month
	Day   int
}

// Date returns the unit as a UTC time. Monthly units resolve to the first
// of the month.
func (u CalendarUnit) Date() time.Time {
	day := u.Day
	if day == 0 {
		day = 1
	}
	return time.Date(u.Year, u.Month, day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether u precedes v in calendar order.
func (u CalendarUnit) Before(v CalendarUnit) bool {
	return u.Date().Before(v.Date())
}

// URLTask represents a single dispatched page URL bound for extraction.
type URLTask struct {
	Site    string
	URL     string
	Routine string
	LastMod string
}

// ArticleRecord holds the extracted fields of one news article page.
// Paywall is a string-typed boolean ("True"/"False"), matching the contract
// records are loaded under downstream.
type ArticleRecord struct {
	Site          string
	Title         string
	Description   string
	Author        string
	ArticleText   string
	DatePublished string
	DateModified  string
	Paywall       string
	SourceURL     string
	CrawledAt     time.Time
}

// RunSummary is the per-site outcome of a crawl run.
type RunSummary struct {
	Site            string         `json:"site"`
	SitemapsFetched int            `json:"sitemaps_fetched"`
	SitemapsSkipped int            `json:"sitemaps_skipped"`
	URLsSeen        int            `json:"urls_seen"`
	URLsDispatched  int            `json:"urls_dispatched"`
	RecordsEmitted  int            `json:"records_emitted"`
	Errors          map[string]int `json:"errors,omitempty"`
}
