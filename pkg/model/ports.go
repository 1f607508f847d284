package model

import (
	"context"
	"encoding/json"
)

// GroupSource lists the groups visible to the caller.
type GroupSource interface {
	ListGroups(ctx context.Context) ([]Group, error)
}

// ParentSource lists the addresses of a group.
type ParentSource interface {
	// ListParents returns one page of addresses, or the complete collection
	// when opts.Full() is true.
	ListParents(ctx context.Context, groupID string, opts ListOptions) (ParentPage, error)
}

// DeviceSource lists the devices of an address, one call per category.
type DeviceSource interface {
	ListVehicles(ctx context.Context, parentID string) ([]ChildRecord, error)
	ListSolarInverters(ctx context.Context, parentID string) ([]ChildRecord, error)
	ListBatteries(ctx context.Context, parentID string) ([]ChildRecord, error)
	ListHvacs(ctx context.Context, parentID string) ([]ChildRecord, error)
	ListChargers(ctx context.Context, parentID string) ([]ChildRecord, error)
	ListSmartMeters(ctx context.Context, parentID string) ([]ChildRecord, error)
	ListGridConnections(ctx context.Context, parentID string) ([]ChildRecord, error)
}

// SparkySource reaches the metering hubs linked to addresses.
type SparkySource interface {
	// CheckReporting returns nil when the hub has a latest reading.
	CheckReporting(ctx context.Context, serialNumber string) error

	// SparkyDetails returns the raw hub document.
	SparkyDetails(ctx context.Context, serialNumber string) (json.RawMessage, error)
}

// TelemetrySource returns the latest energy snapshot of a group.
type TelemetrySource interface {
	GetLatestTelemetry(ctx context.Context, groupID string) (Telemetry, error)
}

// ScheduleCreator creates a steering schedule on a device.
type ScheduleCreator interface {
	CreateSchedule(ctx context.Context, parentID, childID string, spec ScheduleSpec) error
}

// Backend is the full remote service surface.
type Backend interface {
	ParentSource
	DeviceSource
	SparkySource
	TelemetrySource
	ScheduleCreator
}
