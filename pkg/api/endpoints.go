package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

var _ model.Backend = (*Client)(nil)
var _ model.GroupSource = (*Client)(nil)

// Paths of the per-category device listings below /addresses/{uuid}.
var categoryPaths = map[model.Category]string{
	model.CategoryVehicle:        "vehicles",
	model.CategorySolarInverter:  "solar-inverters",
	model.CategoryBattery:        "batteries",
	model.CategoryHVAC:           "hvacs",
	model.CategoryCharger:        "chargers",
	model.CategorySmartMeter:     "smart-meters",
	model.CategoryGridConnection: "grid-connections",
}

// CategoryPath returns the URL path listing the devices of category c for
// an address.
func CategoryPath(parentID string, c model.Category) string {
	return "/addresses/" + url.PathEscape(parentID) + "/" + categoryPaths[c]
}

// ListGroups returns the groups visible to the token.
func (c *Client) ListGroups(ctx context.Context) ([]model.Group, error) {
	groups, _, err := getList[model.Group](ctx, c, "list_groups", "/groups", nil)
	return groups, err
}

// ListParents lists the addresses of a group. Omitted offset and limit
// request the complete collection.
func (c *Client) ListParents(ctx context.Context, groupID string, opts model.ListOptions) (model.ParentPage, error) {
	query := url.Values{}
	if opts.Offset != nil {
		query.Set("offset", strconv.Itoa(*opts.Offset))
	}
	if opts.Limit != nil {
		query.Set("limit", strconv.Itoa(*opts.Limit))
	}
	if opts.SearchText != "" {
		query.Set("search", opts.SearchText)
	}

	items, total, err := getList[model.Parent](ctx, c, "list_addresses", "/groups/"+url.PathEscape(groupID)+"/addresses", query)
	if err != nil {
		return model.ParentPage{}, err
	}
	return model.ParentPage{Items: items, Total: total}, nil
}

func (c *Client) listDevices(ctx context.Context, parentID string, cat model.Category) ([]model.ChildRecord, error) {
	items, _, err := getList[model.ChildRecord](ctx, c, "list_"+categoryPaths[cat], CategoryPath(parentID, cat), nil)
	return items, err
}

// ListVehicles lists the vehicles of an address.
func (c *Client) ListVehicles(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return c.listDevices(ctx, parentID, model.CategoryVehicle)
}

// ListSolarInverters lists the solar inverters of an address.
func (c *Client) ListSolarInverters(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return c.listDevices(ctx, parentID, model.CategorySolarInverter)
}

// ListBatteries lists the batteries of an address.
func (c *Client) ListBatteries(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return c.listDevices(ctx, parentID, model.CategoryBattery)
}

// ListHvacs lists the HVAC units of an address.
func (c *Client) ListHvacs(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return c.listDevices(ctx, parentID, model.CategoryHVAC)
}

// ListChargers lists the chargers of an address.
func (c *Client) ListChargers(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return c.listDevices(ctx, parentID, model.CategoryCharger)
}

// ListSmartMeters lists the smart meters of an address.
func (c *Client) ListSmartMeters(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return c.listDevices(ctx, parentID, model.CategorySmartMeter)
}

// ListGridConnections lists the grid connections of an address.
func (c *Client) ListGridConnections(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return c.listDevices(ctx, parentID, model.CategoryGridConnection)
}

// CheckReporting fetches the latest P1 reading of a Sparky. It succeeds
// when the hub has one.
func (c *Client) CheckReporting(ctx context.Context, serialNumber string) error {
	_, err := c.do(ctx, request{
		endpoint: "sparky_latest_p1",
		method:   http.MethodGet,
		path:     "/sparkies/" + url.PathEscape(serialNumber) + "/electricity/latest-p1",
	})
	return err
}

// SparkyDetails returns the raw hub document of a Sparky.
func (c *Client) SparkyDetails(ctx context.Context, serialNumber string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "sparky_details", "/sparkies/"+url.PathEscape(serialNumber), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetLatestTelemetry returns the latest aggregated energy snapshot of a group.
func (c *Client) GetLatestTelemetry(ctx context.Context, groupID string) (model.Telemetry, error) {
	var t model.Telemetry
	err := c.getJSON(ctx, "group_energy_latest", "/groups/"+url.PathEscape(groupID)+"/energy/latest", nil, &t)
	return t, err
}

// CreateSchedule creates a steering schedule on a solar inverter.
func (c *Client) CreateSchedule(ctx context.Context, parentID, childID string, spec model.ScheduleSpec) error {
	_, err := c.do(ctx, request{
		endpoint: "create_schedule",
		method:   http.MethodPost,
		path:     CategoryPath(parentID, model.CategorySolarInverter) + "/" + url.PathEscape(childID) + "/schedules",
		body:     spec,
	})
	return err
}
