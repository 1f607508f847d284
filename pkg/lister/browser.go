package lister

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a search re-lists.
const DefaultDebounce = 500 * time.Millisecond

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	PerPage  int
	Debounce time.Duration
}

// Result is a filtered page delivered by a Browser.
type Result struct {
	Listing
	Search     string
	TotalPages int
	Err        error
}

// Browser holds the display state of an address listing: the selected
// group, the search text and the current page. Search changes are debounced;
// only the last text of a burst triggers a re-list, which bypasses the
// cache. Search text never reaches the source; every page is filtered
// locally.
type Browser struct {
	ctx      context.Context
	lister   *Lister
	perPage  int
	debounce time.Duration
	onResult func(Result)

	mu     sync.Mutex
	group  string
	search string
	page   int
	gen    uint64
	seq    uint64
	timer  *time.Timer
}

// NewBrowser creates a browser. Debounced results are delivered to onResult
// from a timer goroutine; ctx bounds those background listings.
func NewBrowser(ctx context.Context, lister *Lister, cfg BrowserConfig, onResult func(Result)) *Browser {
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if onResult == nil {
		onResult = func(Result) {}
	}
	return &Browser{
		ctx:      ctx,
		lister:   lister,
		perPage:  cfg.PerPage,
		debounce: cfg.Debounce,
		onResult: onResult,
		page:     1,
	}
}

// SelectGroup switches to groupID: page 1, empty search, pending search
// discarded. It returns the first page, from cache when valid.
func (b *Browser) SelectGroup(ctx context.Context, groupID string) Result {
	b.mu.Lock()
	b.stopTimer()
	b.group = groupID
	b.search = ""
	b.page = 1
	b.gen++
	b.mu.Unlock()

	listing, err := b.lister.FirstPage(ctx, groupID, b.perPage, true)
	listing.GroupID = groupID
	return b.result(listing, "", err)
}

// SetSearch records text and (re)arms the debounce timer.
func (b *Browser) SetSearch(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.search = text
	if b.group == "" {
		return
	}

	b.stopTimer()
	b.seq++
	gen, seq := b.gen, b.seq
	b.timer = time.AfterFunc(b.debounce, func() {
		b.fire(gen, seq)
	})
}

// SetPage lists page n of the selected group with the current search.
func (b *Browser) SetPage(ctx context.Context, n int) Result {
	b.mu.Lock()
	group, search := b.group, b.search
	if n < 1 {
		n = 1
	}
	b.page = n
	b.mu.Unlock()

	listing, err := b.lister.Page(ctx, group, n, b.perPage)
	listing.GroupID = group
	return b.result(listing, search, err)
}

// State returns the selected group, search text and page.
func (b *Browser) State() (group, search string, page int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.group, b.search, b.page
}

// Stop discards any pending search.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimer()
}

func (b *Browser) fire(gen, seq uint64) {
	b.mu.Lock()
	if gen != b.gen || seq != b.seq {
		b.mu.Unlock()
		return
	}
	group, search := b.group, b.search
	b.page = 1
	b.timer = nil
	b.mu.Unlock()

	listing, err := b.lister.FirstPage(b.ctx, group, b.perPage, false)
	listing.GroupID = group

	b.mu.Lock()
	current := gen == b.gen && seq == b.seq
	b.mu.Unlock()
	if !current {
		b.lister.logger.Debug().Str("group_id", group).Msg("Dropping superseded listing")
		return
	}

	b.onResult(b.result(listing, search, err))
}

func (b *Browser) result(listing Listing, search string, err error) Result {
	if err != nil {
		return Result{Listing: Listing{GroupID: listing.GroupID}, Search: search, Err: err}
	}
	listing.Items = FilterParents(listing.Items, search)
	return Result{
		Listing:    listing,
		Search:     search,
		TotalPages: TotalPages(listing.Total, len(listing.Items), b.perPage),
	}
}

// stopTimer must be called with mu held.
func (b *Browser) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
