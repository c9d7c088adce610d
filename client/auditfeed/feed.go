// Package auditfeed pages through the audit log the way an infinite list does:
// one page per scroll-to-bottom event, appended to a flat list.
package auditfeed

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
)

var (
	ErrInFlight    = errors.New("a page is already being fetched")
	ErrNoMorePages = errors.New("no more pages")

	// ErrReset is returned by a fetch that was overtaken by Reset; its page is discarded.
	ErrReset = errors.New("feed was reset while fetching")
)

// Fetcher is implemented by *client.Client.
type Fetcher interface {
	AuditLogs(ctx context.Context, filter audit.QueryFilter, page core.PageParams) (audit.Page, error)
}

type Feed struct {
	fetcher Fetcher
	filter  audit.QueryFilter
	limit   int

	mu       sync.Mutex
	items    []audit.Entry
	next     int
	hasNext  bool
	inFlight bool
	total    int
	err      error
	gen      int // bumped by Reset
}

// New returns a Feed of the entries matching filter, limit per page (the API default when 0).
func New(fetcher Fetcher, filter audit.QueryFilter, limit int) *Feed {
	return &Feed{fetcher: fetcher, filter: filter, limit: limit, next: 1, hasNext: true}
}

func (f *Feed) Items() []audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]audit.Entry, len(f.items))
	copy(items, f.items)
	return items
}

func (f *Feed) HasNextPage() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasNext
}

func (f *Feed) IsFetching() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Total is the number of matching entries reported by the last page.
func (f *Feed) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Err is the error of the last fetch, if it failed.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// FetchNextPage appends the next page. A failed fetch leaves the list untouched.
func (f *Feed) FetchNextPage(ctx context.Context) error {
	f.mu.Lock()
	switch {
	case f.inFlight:
		f.mu.Unlock()
		return ErrInFlight
	case !f.hasNext:
		f.mu.Unlock()
		return ErrNoMorePages
	}
	f.inFlight = true
	gen, filter := f.gen, f.filter
	page := core.PageParams{Page: f.next, Limit: f.limit}
	f.mu.Unlock()

	res, err := f.fetcher.AuditLogs(ctx, filter, page)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return ErrReset
	}
	f.inFlight = false
	f.err = err
	if err != nil {
		return err
	}
	f.items = append(f.items, res.Items...)
	f.next = res.Meta.Page + 1
	f.hasNext = res.Meta.HasNext
	f.total = res.Meta.Total
	return nil
}

// OnIntersect is called whenever the bottom of the list comes into view. It fetches
// exactly one page when there is one and none is in flight, and reports whether it did.
func (f *Feed) OnIntersect(ctx context.Context) (bool, error) {
	err := f.FetchNextPage(ctx)
	if err == ErrInFlight || err == ErrNoMorePages || err == ErrReset {
		return false, nil
	}
	return true, err
}

// Reset forgets every page, e.g. when the filter of the list changes. A fetch still
// running for the old filter is left to finish and its page is dropped.
func (f *Feed) Reset(filter audit.QueryFilter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.filter = filter
	f.items, f.next, f.hasNext, f.total, f.err, f.inFlight = nil, 1, true, 0, nil, false
}
