package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownCategory is returned when a category name does not match one of
// the fixed device categories.
var ErrUnknownCategory = errors.New("unknown device category")

// Category is one of the fixed device kinds attached to an address.
// The string value is the plural name the remote service and cached
// snapshots use.
type Category string

const (
	CategoryVehicle        Category = "vehicles"
	CategorySolarInverter  Category = "solarInverters"
	CategoryBattery        Category = "batteries"
	CategoryHVAC           Category = "hvacs"
	CategoryCharger        Category = "chargers"
	CategorySmartMeter     Category = "smartMeters"
	CategoryGridConnection Category = "gridConnections"
)

// AllCategories lists every category in fetch order.
var AllCategories = []Category{
	CategoryVehicle,
	CategorySolarInverter,
	CategoryBattery,
	CategoryHVAC,
	CategoryCharger,
	CategorySmartMeter,
	CategoryGridConnection,
}

// ParseCategory converts a name into a Category.
func ParseCategory(name string) (Category, error) {
	c := Category(name)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return c, nil
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryVehicle, CategorySolarInverter, CategoryBattery, CategoryHVAC,
		CategoryCharger, CategorySmartMeter, CategoryGridConnection:
		return true
	}
	return false
}

// Label returns a human readable name for messages.
func (c Category) Label() string {
	switch c {
	case CategoryVehicle:
		return "vehicles"
	case CategorySolarInverter:
		return "solar inverters"
	case CategoryBattery:
		return "batteries"
	case CategoryHVAC:
		return "HVAC units"
	case CategoryCharger:
		return "chargers"
	case CategorySmartMeter:
		return "smart meters"
	case CategoryGridConnection:
		return "grid connections"
	}
	return string(c)
}

// DerivedKind names a count derived from a predicate over fetched records
// rather than from a raw category listing.
type DerivedKind string

const (
	// DerivedSteerableInverters counts steerable solar inverters that report
	// a production state, deduplicated per address.
	DerivedSteerableInverters DerivedKind = "steerableInverters"

	// DerivedConnectedSparkies counts addresses with a linked Sparky.
	DerivedConnectedSparkies DerivedKind = "connectedSparkies"

	// DerivedReportingSparkies counts sampled Sparkies whose latest reading
	// could be fetched.
	DerivedReportingSparkies DerivedKind = "reportingSparkies"
)

// AllDerivedKinds lists every derived kind.
var AllDerivedKinds = []DerivedKind{
	DerivedSteerableInverters,
	DerivedConnectedSparkies,
	DerivedReportingSparkies,
}

// ListFunc fetches the devices of one category for a single address.
type ListFunc func(ctx context.Context, parentID string) ([]ChildRecord, error)

// Dispatch returns the listing call of src that serves category c.
// Adding a category means adding a DeviceSource method and a case here.
func Dispatch(src DeviceSource, c Category) (ListFunc, error) {
	switch c {
	case CategoryVehicle:
		return src.ListVehicles, nil
	case CategorySolarInverter:
		return src.ListSolarInverters, nil
	case CategoryBattery:
		return src.ListBatteries, nil
	case CategoryHVAC:
		return src.ListHvacs, nil
	case CategoryCharger:
		return src.ListChargers, nil
	case CategorySmartMeter:
		return src.ListSmartMeters, nil
	case CategoryGridConnection:
		return src.ListGridConnections, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
}

// ListChildren fetches the devices of category c for parentID and stamps
// each record with its category and parent back-reference.
func ListChildren(ctx context.Context, src DeviceSource, c Category, parentID string) ([]ChildRecord, error) {
	fetch, err := Dispatch(src, c)
	if err != nil {
		return nil, err
	}

	records, err := fetch(ctx, parentID)
	if err != nil {
		return nil, err
	}

	for i := range records {
		records[i].Category = c
		records[i].ParentID = parentID
	}
	return records, nil
}
