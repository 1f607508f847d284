// Package lister provides address listings of a group: the complete
// collection for aggregation runs, and cached, filtered pages for display.
package lister

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chargee-energy/chargee-developer-playground/pkg/cache"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

// DefaultPerPage is the display page size.
const DefaultPerPage = 50

// Listing is a page of addresses ready for display.
type Listing struct {
	GroupID   string         `json:"groupId"`
	Page      int            `json:"page"`
	Items     []model.Parent `json:"addresses"`
	Total     int            `json:"total"`
	FetchedAt time.Time      `json:"fetchedAt"`
	FromCache bool           `json:"fromCache"`
}

// Lister lists addresses through a ParentSource. The first page of every
// group is kept in the snapshot cache when a store is configured.
type Lister struct {
	source model.ParentSource
	cache  *cache.Store
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a lister. store may be nil to disable page caching.
func New(source model.ParentSource, store *cache.Store, logger zerolog.Logger) *Lister {
	if source == nil {
		panic("parent source cannot be nil")
	}
	return &Lister{
		source: source,
		cache:  store,
		logger: logger,
		now:    time.Now,
	}
}

// List passes opts through to the source.
func (l *Lister) List(ctx context.Context, groupID string, opts model.ListOptions) (model.ParentPage, error) {
	page, err := l.source.ListParents(ctx, groupID, opts)
	if err != nil {
		return model.ParentPage{}, fmt.Errorf("list addresses of group %s: %w", groupID, err)
	}
	return page, nil
}

// ListAll returns the complete address collection of a group in one call.
// The reported total falls back to the number of items when the source
// omits it.
func (l *Lister) ListAll(ctx context.Context, groupID string) (model.ParentPage, error) {
	page, err := l.List(ctx, groupID, model.ListOptions{})
	if err != nil {
		return model.ParentPage{}, err
	}
	if page.Total < len(page.Items) {
		page.Total = len(page.Items)
	}

	l.logger.Debug().
		Str("group_id", groupID).
		Int("addresses", len(page.Items)).
		Int("total", page.Total).
		Msg("Listed all addresses")

	return page, nil
}

// Count returns the total number of addresses the source reports for a
// group, fetching a single item.
func (l *Lister) Count(ctx context.Context, groupID string) (int, error) {
	page, err := l.List(ctx, groupID, model.Paged(0, 1))
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

// FirstPage returns page 1 of a group. With useCache set a valid cached
// snapshot is returned without calling the source; otherwise the source is
// called and the snapshot rewritten.
//
// The snapshot always holds the unfiltered page; search text is applied by
// the caller through FilterParents.
func (l *Lister) FirstPage(ctx context.Context, groupID string, perPage int, useCache bool) (Listing, error) {
	key := cache.EntityPageKey(groupID)

	if useCache && l.cache != nil {
		var snap model.ParentPage
		entry, err := l.cache.Get(ctx, key, &snap)
		switch {
		case err == nil:
			l.logger.Debug().Str("group_id", groupID).Msg("Using cached first page")
			return Listing{
				GroupID:   groupID,
				Page:      1,
				Items:     snap.Items,
				Total:     snap.Total,
				FetchedAt: entry.WrittenAt,
				FromCache: true,
			}, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			l.logger.Warn().Err(err).Str("group_id", groupID).Msg("Cache get error")
		}
	}

	page, err := l.List(ctx, groupID, model.Paged(0, perPage))
	if err != nil {
		return Listing{}, err
	}

	listing := Listing{
		GroupID:   groupID,
		Page:      1,
		Items:     page.Items,
		Total:     page.Total,
		FetchedAt: l.now(),
	}

	if l.cache != nil {
		entry, err := l.cache.Put(ctx, key, page)
		if err != nil {
			l.logger.Warn().Err(err).Str("group_id", groupID).Msg("Failed to cache first page")
		} else {
			listing.FetchedAt = entry.WrittenAt
		}
	}

	return listing, nil
}

// Page returns page n (1-based) of a group. Page 1 goes through the cache.
func (l *Lister) Page(ctx context.Context, groupID string, n, perPage int) (Listing, error) {
	if n <= 1 {
		return l.FirstPage(ctx, groupID, perPage, true)
	}

	page, err := l.List(ctx, groupID, model.Paged((n-1)*perPage, perPage))
	if err != nil {
		return Listing{}, err
	}

	return Listing{
		GroupID:   groupID,
		Page:      n,
		Items:     page.Items,
		Total:     page.Total,
		FetchedAt: l.now(),
	}, nil
}

// FilterParents keeps the addresses whose uuid, Sparky serial number or box
// code contains text, ignoring case. Blank text returns parents unchanged.
func FilterParents(parents []model.Parent, text string) []model.Parent {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return parents
	}

	filtered := make([]model.Parent, 0, len(parents))
	for _, p := range parents {
		if matches(p, needle) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func matches(p model.Parent, needle string) bool {
	if strings.Contains(strings.ToLower(p.UUID), needle) {
		return true
	}
	if p.Sparky == nil {
		return false
	}
	return strings.Contains(strings.ToLower(p.Sparky.SerialNumber), needle) ||
		strings.Contains(strings.ToLower(p.Sparky.BoxCode), needle)
}

// TotalPages returns the number of display pages. total is the count the
// source reports; when it is zero the filtered count is used.
func TotalPages(total, filtered, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	n := total
	if n == 0 {
		n = filtered
	}
	return (n + perPage - 1) / perPage
}
