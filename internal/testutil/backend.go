// Package testutil provides test doubles of the remote collection service.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

// ErrInjected is the default error of injected failures.
var ErrInjected = errors.New("injected failure")

// ScheduleCall records one CreateSchedule invocation.
type ScheduleCall struct {
	ParentID string
	ChildID  string
	Spec     model.ScheduleSpec
}

// Backend is an in-memory model.Backend.
type Backend struct {
	mu sync.Mutex

	groups    []model.Group
	parents   map[string][]model.Parent
	devices   map[string]map[model.Category][]model.ChildRecord
	reporting map[string]bool
	sparkies  map[string]json.RawMessage
	telemetry map[string]model.Telemetry

	deviceErrs   map[string]error
	scheduleErrs map[string]error
	listErr      error
	countErr     error
	telemetryErr error

	// Delay is applied to every device listing.
	Delay time.Duration

	schedules   []ScheduleCall
	calls       map[string]int
	inflight    int
	maxInflight int
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{
		parents:      make(map[string][]model.Parent),
		devices:      make(map[string]map[model.Category][]model.ChildRecord),
		reporting:    make(map[string]bool),
		sparkies:     make(map[string]json.RawMessage),
		telemetry:    make(map[string]model.Telemetry),
		deviceErrs:   make(map[string]error),
		scheduleErrs: make(map[string]error),
		calls:        make(map[string]int),
	}
}

// SeedGroup fills groupID with n generated addresses. Address i has:
//
//   - a Sparky when i is even, reporting when i%4 == 0
//   - a vehicle when i is even
//   - one solar inverter, steerable with a production state when i%3 == 0
//   - a battery when i%4 == 0
//   - a charger when i%5 == 0
//   - one HVAC unit, smart meter and grid connection
func (b *Backend) SeedGroup(groupID string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.groups = append(b.groups, model.Group{UUID: groupID, Name: "Group " + groupID})
	parents := make([]model.Parent, 0, n)
	for i := 0; i < n; i++ {
		p := model.Parent{UUID: fmt.Sprintf("%s-addr-%03d", groupID, i)}
		if i%2 == 0 {
			serial := fmt.Sprintf("SP%010d", i)
			p.Sparky = &model.Sparky{SerialNumber: serial, BoxCode: fmt.Sprintf("BOX-%03d", i)}
			b.reporting[serial] = i%4 == 0
			b.sparkies[serial] = json.RawMessage(fmt.Sprintf(`{"serialNumber":%q,"firmware":"1.4.2"}`, serial))
		}
		parents = append(parents, p)

		devices := map[model.Category][]model.ChildRecord{
			model.CategorySolarInverter:  {inverter(p.UUID, i)},
			model.CategoryHVAC:           {device(p.UUID, "hvac")},
			model.CategorySmartMeter:     {device(p.UUID, "meter")},
			model.CategoryGridConnection: {device(p.UUID, "grid")},
		}
		if i%2 == 0 {
			devices[model.CategoryVehicle] = []model.ChildRecord{device(p.UUID, "ev")}
		}
		if i%4 == 0 {
			devices[model.CategoryBattery] = []model.ChildRecord{device(p.UUID, "bat")}
		}
		if i%5 == 0 {
			devices[model.CategoryCharger] = []model.ChildRecord{device(p.UUID, "chg")}
		}
		b.devices[p.UUID] = devices
	}
	b.parents[groupID] = parents
}

func device(parentID, kind string) model.ChildRecord {
	return model.ChildRecord{Identifier: kind + "-" + parentID}
}

func inverter(parentID string, i int) model.ChildRecord {
	rec := model.ChildRecord{
		Identifier: "inv-" + parentID,
		Info:       &model.DeviceInfo{Brand: "SolarEdge", IsSteerable: i%3 == 0},
	}
	if i%3 == 0 {
		rec.LastProductionState = json.RawMessage(`{"power":1200}`)
	}
	return rec
}

// SetParents replaces the address collection of groupID.
func (b *Backend) SetParents(groupID string, parents []model.Parent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parents[groupID] = parents
}

// Parents returns a copy of the address collection of groupID.
func (b *Backend) Parents(groupID string) []model.Parent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Parent(nil), b.parents[groupID]...)
}

// SetDevices replaces the devices of category c for parentID.
func (b *Backend) SetDevices(parentID string, c model.Category, records []model.ChildRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.devices[parentID] == nil {
		b.devices[parentID] = make(map[model.Category][]model.ChildRecord)
	}
	b.devices[parentID][c] = records
}

// Devices returns the stored devices of category c for parentID.
func (b *Backend) Devices(parentID string, c model.Category) []model.ChildRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ChildRecord(nil), b.devices[parentID][c]...)
}

// FailDevices makes the listing of category c for parentID fail with err,
// or ErrInjected when err is nil.
func (b *Backend) FailDevices(parentID string, c model.Category, err error) {
	if err == nil {
		err = ErrInjected
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deviceErrs[parentID+"/"+string(c)] = err
}

// FailListing makes full address listings fail.
func (b *Backend) FailListing(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// FailCount makes paged address listings fail.
func (b *Backend) FailCount(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countErr = err
}

// FailSchedule makes CreateSchedule on childID fail.
func (b *Backend) FailSchedule(childID string, err error) {
	if err == nil {
		err = ErrInjected
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scheduleErrs[childID] = err
}

// SetTelemetry sets the latest energy snapshot of groupID.
func (b *Backend) SetTelemetry(groupID string, t model.Telemetry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.telemetry[groupID] = t
}

// FailTelemetry makes GetLatestTelemetry fail.
func (b *Backend) FailTelemetry(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.telemetryErr = err
}

// Calls returns how often method was invoked. Device listings are counted
// under their category name.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// MaxInflight returns the largest number of concurrent device listings seen.
func (b *Backend) MaxInflight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxInflight
}

// Schedules returns the recorded CreateSchedule calls.
func (b *Backend) Schedules() []ScheduleCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ScheduleCall(nil), b.schedules...)
}

// ListGroups implements model.GroupSource.
func (b *Backend) ListGroups(ctx context.Context) ([]model.Group, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["ListGroups"]++
	return append([]model.Group(nil), b.groups...), nil
}

// ListParents implements model.ParentSource.
func (b *Backend) ListParents(ctx context.Context, groupID string, opts model.ListOptions) (model.ParentPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["ListParents"]++

	if err := ctx.Err(); err != nil {
		return model.ParentPage{}, err
	}

	all := b.parents[groupID]
	if opts.Full() {
		if b.listErr != nil {
			return model.ParentPage{}, b.listErr
		}
		return model.ParentPage{Items: append([]model.Parent(nil), all...), Total: len(all)}, nil
	}

	if b.countErr != nil {
		return model.ParentPage{}, b.countErr
	}

	offset, limit := 0, len(all)
	if opts.Offset != nil {
		offset = *opts.Offset
	}
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	start := min(max(offset, 0), len(all))
	end := min(start+max(limit, 0), len(all))
	return model.ParentPage{Items: append([]model.Parent(nil), all[start:end]...), Total: len(all)}, nil
}

func (b *Backend) listDevices(ctx context.Context, parentID string, c model.Category) ([]model.ChildRecord, error) {
	b.mu.Lock()
	b.calls[string(c)]++
	b.inflight++
	b.maxInflight = max(b.maxInflight, b.inflight)
	delay := b.Delay
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inflight--
		b.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deviceErrs[parentID+"/"+string(c)]; err != nil {
		return nil, err
	}
	return append([]model.ChildRecord(nil), b.devices[parentID][c]...), nil
}

// ListVehicles implements model.DeviceSource.
func (b *Backend) ListVehicles(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return b.listDevices(ctx, parentID, model.CategoryVehicle)
}

// ListSolarInverters implements model.DeviceSource.
func (b *Backend) ListSolarInverters(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return b.listDevices(ctx, parentID, model.CategorySolarInverter)
}

// ListBatteries implements model.DeviceSource.
func (b *Backend) ListBatteries(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return b.listDevices(ctx, parentID, model.CategoryBattery)
}

// ListHvacs implements model.DeviceSource.
func (b *Backend) ListHvacs(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return b.listDevices(ctx, parentID, model.CategoryHVAC)
}

// ListChargers implements model.DeviceSource.
func (b *Backend) ListChargers(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return b.listDevices(ctx, parentID, model.CategoryCharger)
}

// ListSmartMeters implements model.DeviceSource.
func (b *Backend) ListSmartMeters(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return b.listDevices(ctx, parentID, model.CategorySmartMeter)
}

// ListGridConnections implements model.DeviceSource.
func (b *Backend) ListGridConnections(ctx context.Context, parentID string) ([]model.ChildRecord, error) {
	return b.listDevices(ctx, parentID, model.CategoryGridConnection)
}

// CheckReporting implements model.SparkySource.
func (b *Backend) CheckReporting(ctx context.Context, serialNumber string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["CheckReporting"]++
	if !b.reporting[serialNumber] {
		return fmt.Errorf("sparky %s: no latest reading", serialNumber)
	}
	return nil
}

// SparkyDetails implements model.SparkySource.
func (b *Backend) SparkyDetails(ctx context.Context, serialNumber string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["SparkyDetails"]++
	doc, ok := b.sparkies[serialNumber]
	if !ok {
		return nil, fmt.Errorf("sparky %s not found", serialNumber)
	}
	return doc, nil
}

// SetReporting sets whether the Sparky serialNumber reports readings.
func (b *Backend) SetReporting(serialNumber string, reporting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reporting[serialNumber] = reporting
}

// GetLatestTelemetry implements model.TelemetrySource.
func (b *Backend) GetLatestTelemetry(ctx context.Context, groupID string) (model.Telemetry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["GetLatestTelemetry"]++
	if b.telemetryErr != nil {
		return model.Telemetry{}, b.telemetryErr
	}
	return b.telemetry[groupID], nil
}

// CreateSchedule implements model.ScheduleCreator.
func (b *Backend) CreateSchedule(ctx context.Context, parentID, childID string, spec model.ScheduleSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["CreateSchedule"]++
	if err := b.scheduleErrs[childID]; err != nil {
		return err
	}
	b.schedules = append(b.schedules, ScheduleCall{ParentID: parentID, ChildID: childID, Spec: spec})
	return nil
}

var (
	_ model.Backend     = (*Backend)(nil)
	_ model.GroupSource = (*Backend)(nil)
)
