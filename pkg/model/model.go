package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Sparky is the linked metering hub summary carried by an address.
type Sparky struct {
	SerialNumber string `json:"serialNumber"`
	BoxCode      string `json:"boxCode,omitempty"`
}

// Parent is an address within a group.
type Parent struct {
	UUID   string  `json:"uuid"`
	Sparky *Sparky `json:"sparky,omitempty"`
}

// SerialNumber returns the linked Sparky serial number, or "" when none.
func (p Parent) SerialNumber() string {
	if p.Sparky == nil {
		return ""
	}
	return p.Sparky.SerialNumber
}

// DeviceInfo holds the descriptive block of a device payload.
type DeviceInfo struct {
	Brand       string `json:"brand,omitempty"`
	Model       string `json:"model,omitempty"`
	IsSteerable bool   `json:"isSteerable"`
}

// ChildRecord is a device attached to an address. Category and ParentID are
// assigned by the fetcher, never taken from the payload.
type ChildRecord struct {
	Identifier string      `json:"identifier,omitempty"`
	UUID       string      `json:"uuid,omitempty"`
	Info       *DeviceInfo `json:"info,omitempty"`

	LastProductionState  json.RawMessage `json:"lastProductionState,omitempty"`
	LastChargeState      json.RawMessage `json:"lastChargeState,omitempty"`
	LastTemperatureState json.RawMessage `json:"lastTemperatureState,omitempty"`

	Category Category `json:"category,omitempty"`
	ParentID string   `json:"addressUuid,omitempty"`
}

// ID returns the device identifier, falling back to its uuid.
func (d ChildRecord) ID() string {
	if d.Identifier != "" {
		return d.Identifier
	}
	return d.UUID
}

// IsSteerable reports whether d is a solar inverter that can be steered and
// has reported a production state.
func (d ChildRecord) IsSteerable() bool {
	return d.Category == CategorySolarInverter &&
		d.Info != nil && d.Info.IsSteerable &&
		present(d.LastProductionState)
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// LocatedDevice is a device annotated with the address it was found under.
type LocatedDevice struct {
	ChildRecord
	Parent Parent `json:"address"`
}

// SparkySerial returns the serial number of the owning address' Sparky.
func (d LocatedDevice) SparkySerial() string {
	return d.Parent.SerialNumber()
}

// ListOptions narrows an address listing. Nil Offset and Limit request the
// complete collection.
type ListOptions struct {
	Offset     *int
	Limit      *int
	SearchText string
}

// Full reports whether the options request the complete collection.
func (o ListOptions) Full() bool {
	return o.Offset == nil && o.Limit == nil
}

// Paged returns options for a single page.
func Paged(offset, limit int) ListOptions {
	return ListOptions{Offset: &offset, Limit: &limit}
}

// ParentPage is one address listing response.
type ParentPage struct {
	Items []Parent `json:"addresses"`
	Total int      `json:"total"`
}

// Telemetry is the latest aggregated energy snapshot of a group.
type Telemetry struct {
	Production float64   `json:"production"`
	Return     float64   `json:"return"`
	Delivery   float64   `json:"delivery"`
	MeasuredAt time.Time `json:"measuredAt,omitempty"`
}

// ScheduleSpec is the schedule document forwarded verbatim to the remote
// service.
type ScheduleSpec json.RawMessage

// MarshalJSON keeps the document verbatim.
func (s ScheduleSpec) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

// Group is a named collection of addresses.
type Group struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}
