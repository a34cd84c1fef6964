// Package schedule turns a historical date range into the ordered sequence
// of calendar units a site's sitemap archive is walked by.
package schedule

import (
	"errors"
	"time"

	"newscrawler/internal/domain"
)

// ErrInvalidRange is returned when a window's start date is after its end.
var ErrInvalidRange = errors.New("schedule: start date after end date")

// Window is a closed date range walked at monthly or daily granularity.
// Partial first and last months are included in full at monthly
// granularity.
type Window struct {
	start       time.Time
	end         time.Time
	granularity domain.Granularity
}

// NewWindow builds a window over [start, end] inclusive.
func NewWindow(start, end time.Time, g domain.Granularity) (*Window, error) {
	start = start.UTC()
	end = end.UTC()
	if start.After(end) {
		return nil, ErrInvalidRange
	}
	return &Window{start: start, end: end, granularity: g}, nil
}

// Iter returns a fresh iterator over the window's units, oldest first.
// Iterators are independent; the window itself carries no cursor state.
func (w *Window) Iter() *Iterator {
	var cur domain.CalendarUnit
	switch w.granularity {
	case domain.Daily:
		cur = domain.CalendarUnit{Year: w.start.Year(), Month: w.start.Month(), Day: w.start.Day()}
	default:
		cur = domain.CalendarUnit{Year: w.start.Year(), Month: w.start.Month()}
	}
	return &Iterator{window: w, next: cur}
}

// Len reports how many units the window spans.
func (w *Window) Len() int {
	n := 0
	for it := w.Iter(); ; n++ {
		if _, ok := it.Next(); !ok {
			return n
		}
	}
}

// Iterator walks a window one calendar unit at a time.
type Iterator struct {
	window *Window
	next   domain.CalendarUnit
	done   bool
}

// Next returns the following unit, or ok=false once the window is
// exhausted.
func (it *Iterator) Next() (domain.CalendarUnit, bool) {
	if it.done {
		return domain.CalendarUnit{}, false
	}
	last := it.window.end
	switch it.window.granularity {
	case domain.Daily:
		if it.next.Date().After(time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)) {
			it.done = true
			return domain.CalendarUnit{}, false
		}
	default:
		if it.next.Date().After(time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)) {
			it.done = true
			return domain.CalendarUnit{}, false
		}
	}
	cur := it.next
	it.next = advance(cur, it.window.granularity)
	return cur, true
}

func advance(u domain.CalendarUnit, g domain.Granularity) domain.CalendarUnit {
	var d time.Time
	if g == domain.Daily {
		d = u.Date().AddDate(0, 0, 1)
		return domain.CalendarUnit{Year: d.Year(), Month: d.Month(), Day: d.Day()}
	}
	d = time.Date(u.Year, u.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return domain.CalendarUnit{Year: d.Year(), Month: d.Month()}
}
