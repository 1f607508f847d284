package lister

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chargee-energy/chargee-developer-playground/pkg/cache"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

// fakeSource serves a fixed address collection and records every call.
// Like the remote service it narrows the collection by SearchText.
type fakeSource struct {
	mu      sync.Mutex
	parents []model.Parent
	calls   []model.ListOptions
	err     error
}

func newFakeSource(n int) *fakeSource {
	src := &fakeSource{}
	for i := 0; i < n; i++ {
		p := model.Parent{UUID: fmt.Sprintf("addr-%03d", i)}
		if i%2 == 0 {
			p.Sparky = &model.Sparky{SerialNumber: fmt.Sprintf("SP%010d", i), BoxCode: fmt.Sprintf("BOX-%d", i)}
		}
		src.parents = append(src.parents, p)
	}
	return src
}

func (f *fakeSource) ListParents(ctx context.Context, groupID string, opts model.ListOptions) (model.ParentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return model.ParentPage{}, f.err
	}
	parents := f.parents
	if opts.SearchText != "" {
		parents = make([]model.Parent, 0)
		for _, p := range f.parents {
			if strings.Contains(p.UUID, opts.SearchText) {
				parents = append(parents, p)
			}
		}
	}
	if opts.Full() {
		return model.ParentPage{Items: parents}, nil
	}
	start := min(*opts.Offset, len(parents))
	end := min(start+*opts.Limit, len(parents))
	return model.ParentPage{Items: parents[start:end], Total: len(parents)}, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) lastCall() model.ListOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewStore(client)
}

func TestLister_ListAll(t *testing.T) {
	src := newFakeSource(120)
	l := New(src, nil, zerolog.Nop())

	page, err := l.ListAll(context.Background(), "g")
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(page.Items) != 120 || page.Total != 120 {
		t.Errorf("got %d items, total %d", len(page.Items), page.Total)
	}
	if !src.lastCall().Full() {
		t.Error("ListAll must request the full collection")
	}
}

func TestLister_Count(t *testing.T) {
	src := newFakeSource(37)
	l := New(src, nil, zerolog.Nop())

	total, err := l.Count(context.Background(), "g")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if total != 37 {
		t.Errorf("Count = %d, want 37", total)
	}
	if opts := src.lastCall(); opts.Limit == nil || *opts.Limit != 1 {
		t.Errorf("Count should list a single item, got %+v", opts)
	}
}

func TestLister_ListError(t *testing.T) {
	src := newFakeSource(1)
	src.err = errors.New("upstream down")
	l := New(src, nil, zerolog.Nop())

	if _, err := l.ListAll(context.Background(), "g"); !errors.Is(err, src.err) {
		t.Errorf("expected wrapped upstream error, got %v", err)
	}
}

func TestLister_FirstPage_UsesCache(t *testing.T) {
	src := newFakeSource(80)
	l := New(src, newTestStore(t), zerolog.Nop())
	ctx := context.Background()

	first, err := l.FirstPage(ctx, "g", 50, true)
	if err != nil {
		t.Fatalf("FirstPage failed: %v", err)
	}
	if first.FromCache || len(first.Items) != 50 || first.Total != 80 {
		t.Errorf("unexpected first listing: cache=%v items=%d total=%d", first.FromCache, len(first.Items), first.Total)
	}

	second, err := l.FirstPage(ctx, "g", 50, true)
	if err != nil {
		t.Fatalf("FirstPage failed: %v", err)
	}
	if !second.FromCache {
		t.Error("second listing should come from cache")
	}
	if src.callCount() != 1 {
		t.Errorf("source called %d times, want 1", src.callCount())
	}

	if _, err := l.FirstPage(ctx, "g", 50, false); err != nil {
		t.Fatalf("FirstPage bypass failed: %v", err)
	}
	if src.callCount() != 2 {
		t.Errorf("bypass should call the source, calls = %d", src.callCount())
	}
}

func TestLister_Page(t *testing.T) {
	src := newFakeSource(120)
	l := New(src, nil, zerolog.Nop())

	listing, err := l.Page(context.Background(), "g", 3, 50)
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if len(listing.Items) != 20 || listing.Items[0].UUID != "addr-100" {
		t.Errorf("page 3: %d items starting %q", len(listing.Items), listing.Items[0].UUID)
	}
	if opts := src.lastCall(); *opts.Offset != 100 || *opts.Limit != 50 {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestFilterParents(t *testing.T) {
	parents := []model.Parent{
		{UUID: "aaa-111"},
		{UUID: "bbb-222", Sparky: &model.Sparky{SerialNumber: "6055F9C9D650", BoxCode: "QX-12"}},
		{UUID: "ccc-333", Sparky: &model.Sparky{SerialNumber: "123", BoxCode: "ZZ-9"}},
	}

	tests := []struct {
		text string
		want []string
	}{
		{text: "", want: []string{"aaa-111", "bbb-222", "ccc-333"}},
		{text: "   ", want: []string{"aaa-111", "bbb-222", "ccc-333"}},
		{text: "AAA", want: []string{"aaa-111"}},
		{text: "f9c9", want: []string{"bbb-222"}},
		{text: "zz-", want: []string{"ccc-333"}},
		{text: "nomatch", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := FilterParents(parents, tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d parents, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].UUID != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i].UUID, tt.want[i])
				}
			}
		})
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, filtered, perPage, want int
	}{
		{120, 50, 50, 3},
		{0, 7, 50, 1},
		{0, 0, 50, 0},
		{100, 50, 50, 2},
		{10, 10, 0, 0},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.filtered, tt.perPage); got != tt.want {
			t.Errorf("TotalPages(%d,%d,%d) = %d, want %d", tt.total, tt.filtered, tt.perPage, got, tt.want)
		}
	}
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced result")
	}
	return Result{}
}

func TestBrowser_DebounceCoalescesSearches(t *testing.T) {
	src := newFakeSource(10)
	l := New(src, nil, zerolog.Nop())
	results := make(chan Result, 4)
	b := NewBrowser(context.Background(), l, BrowserConfig{PerPage: 50, Debounce: 30 * time.Millisecond}, func(r Result) {
		results <- r
	})
	defer b.Stop()

	b.SelectGroup(context.Background(), "g")
	before := src.callCount()

	for _, text := range []string{"a", "ad", "addr-00"} {
		b.SetSearch(text)
		time.Sleep(5 * time.Millisecond)
	}

	r := waitResult(t, results)
	if r.Err != nil {
		t.Fatalf("result error: %v", r.Err)
	}
	if r.Search != "addr-00" {
		t.Errorf("search = %q, want last text", r.Search)
	}
	if len(r.Items) != 10 {
		t.Errorf("filtered items = %d, want 10", len(r.Items))
	}

	time.Sleep(80 * time.Millisecond)
	if got := src.callCount() - before; got != 1 {
		t.Errorf("source re-listed %d times, want 1", got)
	}
	if opts := src.lastCall(); opts.SearchText != "" {
		t.Errorf("re-list sent search %q to the source", opts.SearchText)
	}
	if _, _, page := b.State(); page != 1 {
		t.Errorf("page = %d after search, want 1", page)
	}
}

func TestBrowser_SelectGroupDiscardsPendingSearch(t *testing.T) {
	src := newFakeSource(10)
	l := New(src, nil, zerolog.Nop())
	results := make(chan Result, 4)
	b := NewBrowser(context.Background(), l, BrowserConfig{Debounce: 40 * time.Millisecond}, func(r Result) {
		results <- r
	})
	defer b.Stop()

	b.SelectGroup(context.Background(), "g1")
	_ = b.SetPage(context.Background(), 2)
	b.SetSearch("addr")

	r := b.SelectGroup(context.Background(), "g2")
	if r.Err != nil {
		t.Fatalf("SelectGroup: %v", r.Err)
	}

	group, search, page := b.State()
	if group != "g2" || search != "" || page != 1 {
		t.Errorf("state after switch = (%q, %q, %d)", group, search, page)
	}

	select {
	case r := <-results:
		t.Errorf("pending search should have been discarded, got %+v", r)
	case <-time.After(120 * time.Millisecond):
	}
}

func TestBrowser_SearchKeepsCachedFirstPageUnfiltered(t *testing.T) {
	src := newFakeSource(120)
	l := New(src, newTestStore(t), zerolog.Nop())
	results := make(chan Result, 4)
	b := NewBrowser(context.Background(), l, BrowserConfig{PerPage: 50, Debounce: 20 * time.Millisecond}, func(r Result) {
		results <- r
	})
	defer b.Stop()

	first := b.SelectGroup(context.Background(), "g")
	if len(first.Items) != 50 || first.Total != 120 {
		t.Fatalf("first page = %d items, total %d", len(first.Items), first.Total)
	}

	b.SetSearch("addr-007")
	r := waitResult(t, results)
	if r.Err != nil {
		t.Fatalf("search result error: %v", r.Err)
	}
	if len(r.Items) != 1 || r.Items[0].UUID != "addr-007" {
		t.Errorf("search items = %+v, want addr-007 only", r.Items)
	}
	if r.Total != 120 {
		t.Errorf("search total = %d, want the unfiltered 120", r.Total)
	}

	again := b.SelectGroup(context.Background(), "g")
	if !again.FromCache {
		t.Error("reselect should be served from the cached first page")
	}
	if len(again.Items) != 50 || again.Total != 120 {
		t.Errorf("cached first page = %d items, total %d, want 50 of 120", len(again.Items), again.Total)
	}

	direct, err := l.FirstPage(context.Background(), "g", 50, true)
	if err != nil {
		t.Fatalf("FirstPage: %v", err)
	}
	if len(direct.Items) != 50 || direct.Total != 120 {
		t.Errorf("FirstPage from cache = %d items, total %d", len(direct.Items), direct.Total)
	}
}

func TestBrowser_SetPageFiltersLocally(t *testing.T) {
	src := newFakeSource(120)
	l := New(src, nil, zerolog.Nop())
	b := NewBrowser(context.Background(), l, BrowserConfig{PerPage: 50, Debounce: time.Hour}, nil)
	defer b.Stop()

	b.SelectGroup(context.Background(), "g")
	b.SetSearch("addr-06")

	r := b.SetPage(context.Background(), 2)
	if r.Err != nil {
		t.Fatalf("SetPage: %v", r.Err)
	}
	if opts := src.lastCall(); opts.SearchText != "" || opts.Offset == nil || *opts.Offset != 50 {
		t.Errorf("page 2 listing opts = %+v", opts)
	}
	if len(r.Items) != 10 {
		t.Errorf("filtered page 2 items = %d, want addr-060..addr-069", len(r.Items))
	}
	if r.Search != "addr-06" {
		t.Errorf("search = %q", r.Search)
	}
}
