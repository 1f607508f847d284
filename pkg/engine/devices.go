package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/chargee-energy/chargee-developer-playground/pkg/batch"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

// sparkySerialPattern matches Sparky serial numbers such as 6055F9C9D650.
var sparkySerialPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

const minSerialLength = 10

// CategoryDevices lists every device of category c across the addresses of
// groupID. Addresses whose listing fails are skipped.
func (e *Engine) CategoryDevices(ctx context.Context, groupID string, c model.Category) ([]model.LocatedDevice, error) {
	if _, err := model.Dispatch(e.backend, c); err != nil {
		return nil, err
	}

	page, err := e.lister.ListAll(ctx, groupID)
	if err != nil {
		return nil, err
	}

	fetcher := batch.New(batch.Config{
		BatchSize: e.config.ReadBatchSize,
		Timeout:   e.config.ItemTimeout,
		Operation: "devices",
	})

	fetch := func(ctx context.Context, p model.Parent) ([]model.ChildRecord, error) {
		return model.ListChildren(ctx, e.backend, c, p.UUID)
	}

	devices := make([]model.LocatedDevice, 0)
	_, err = batch.Run(ctx, fetcher, page.Items, fetch, func(b batch.Batch[model.Parent, []model.ChildRecord]) {
		for _, res := range b.Results {
			if res.Err != nil {
				ChildFetchFailures.WithLabelValues(string(c)).Inc()
				e.logger.Warn().
					Err(res.Err).
					Str("group_id", groupID).
					Str("parent_id", res.Item.UUID).
					Str("category", string(c)).
					Msg("Device fetch failed")
				continue
			}
			for _, rec := range res.Value {
				devices = append(devices, model.LocatedDevice{ChildRecord: rec, Parent: res.Item})
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// Sparkies returns the addresses of groupID that have a linked Sparky.
func (e *Engine) Sparkies(ctx context.Context, groupID string) ([]model.Parent, error) {
	page, err := e.lister.ListAll(ctx, groupID)
	if err != nil {
		return nil, err
	}

	linked := make([]model.Parent, 0, len(page.Items))
	for _, p := range page.Items {
		if p.SerialNumber() != "" {
			linked = append(linked, p)
		}
	}
	return linked, nil
}

// InspectAddress lists all categories of one address concurrently. Unlike
// aggregation runs it fails as a whole when any category fails.
func (e *Engine) InspectAddress(ctx context.Context, parentID string) (map[model.Category][]model.ChildRecord, error) {
	results := batch.Settle(ctx, model.AllCategories, func(ctx context.Context, c model.Category) ([]model.ChildRecord, error) {
		return model.ListChildren(ctx, e.backend, c, parentID)
	})

	devices := make(map[model.Category][]model.ChildRecord, len(results))
	for _, res := range results {
		if res.Err != nil {
			return nil, fmt.Errorf("list %s of address %s: %w", res.Item, parentID, res.Err)
		}
		devices[res.Item] = res.Value
		if devices[res.Item] == nil {
			devices[res.Item] = []model.ChildRecord{}
		}
	}
	return devices, nil
}

// Inspection kinds.
const (
	KindSparky  = "sparky"
	KindAddress = "address"
)

// Inspection is the answer to an admin query.
type Inspection struct {
	Kind    string                                 `json:"type"`
	Sparky  json.RawMessage                        `json:"sparky,omitempty"`
	Devices map[model.Category][]model.ChildRecord `json:"devices,omitempty"`
}

// IsSparkySerial reports whether query looks like a Sparky serial number
// rather than an address uuid.
func IsSparkySerial(query string) bool {
	return len(query) >= minSerialLength && sparkySerialPattern.MatchString(query)
}

// Inspect resolves an admin query: a Sparky serial number returns the hub
// document, anything else is treated as an address uuid.
func (e *Engine) Inspect(ctx context.Context, query string) (Inspection, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Inspection{}, fmt.Errorf("empty query")
	}

	if IsSparkySerial(query) {
		raw, err := e.backend.SparkyDetails(ctx, query)
		if err != nil {
			return Inspection{}, fmt.Errorf("query %s: %w", query, err)
		}
		return Inspection{Kind: KindSparky, Sparky: raw}, nil
	}

	devices, err := e.InspectAddress(ctx, query)
	if err != nil {
		return Inspection{}, fmt.Errorf("query %s: %w", query, err)
	}
	return Inspection{Kind: KindAddress, Devices: devices}, nil
}
