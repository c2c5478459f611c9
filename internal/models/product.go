package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Origin string

const (
	OriginLocal  Origin = "local-mirror"
	OriginRemote Origin = "remote-api"
)

// ProductRecord is the denormalized product view returned by every search path.
// PartNumber is the distributor-issued identifier and is never empty for
// records handed to callers.
type ProductRecord struct {
	PartNumber       string              `json:"part_number"`
	VendorPartNumber string              `json:"vendor_part_number,omitempty"`
	Description      string              `json:"description"`
	VendorName       string              `json:"vendor_name,omitempty"`
	Category         string              `json:"category,omitempty"`
	Subcategory      string              `json:"subcategory,omitempty"`
	UPC              string              `json:"upc,omitempty"`
	UnitPrice        decimal.NullDecimal `json:"unit_price"`
	Currency         string              `json:"currency,omitempty"`
	Availability     Availability        `json:"availability"`
	ImageURLs        []string            `json:"image_urls,omitempty"`
	Origin           Origin              `json:"origin"`
}

type AvailabilityKind int

const (
	AvailabilityUnknown AvailabilityKind = iota
	AvailabilitySimple
	AvailabilityDetailed
)

func (k AvailabilityKind) String() string {
	switch k {
	case AvailabilitySimple:
		return "simple"
	case AvailabilityDetailed:
		return "detailed"
	default:
		return "unknown"
	}
}

type WarehouseStock struct {
	WarehouseID string `json:"warehouse_id"`
	Location    string `json:"location,omitempty"`
	Quantity    int    `json:"quantity"`
}

// Availability is resolved once when a distributor or mirror payload is
// parsed. Simple carries only a flag; Detailed carries unit totals and the
// per-warehouse breakdown.
type Availability struct {
	Kind       AvailabilityKind
	Available  bool
	TotalUnits int
	Warehouses []WarehouseStock
}

func UnknownAvailability() Availability {
	return Availability{Kind: AvailabilityUnknown}
}

func SimpleAvailability(available bool) Availability {
	return Availability{Kind: AvailabilitySimple, Available: available}
}

func DetailedAvailability(totalUnits int, warehouses []WarehouseStock) Availability {
	return Availability{
		Kind:       AvailabilityDetailed,
		Available:  totalUnits > 0,
		TotalUnits: totalUnits,
		Warehouses: warehouses,
	}
}

func (a Availability) InStock() bool {
	switch a.Kind {
	case AvailabilitySimple:
		return a.Available
	case AvailabilityDetailed:
		return a.TotalUnits > 0
	default:
		return false
	}
}

type availabilityJSON struct {
	Kind       string           `json:"kind"`
	Available  *bool            `json:"available,omitempty"`
	TotalUnits *int             `json:"total_units,omitempty"`
	Warehouses []WarehouseStock `json:"warehouses,omitempty"`
}

func (a Availability) MarshalJSON() ([]byte, error) {
	out := availabilityJSON{Kind: a.Kind.String()}
	switch a.Kind {
	case AvailabilitySimple:
		available := a.Available
		out.Available = &available
	case AvailabilityDetailed:
		available := a.InStock()
		total := a.TotalUnits
		out.Available = &available
		out.TotalUnits = &total
		out.Warehouses = a.Warehouses
	}
	return json.Marshal(out)
}

func (a *Availability) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = UnknownAvailability()
		return nil
	}
	var in availabilityJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decoding availability: %w", err)
	}
	switch in.Kind {
	case "simple":
		*a = SimpleAvailability(in.Available != nil && *in.Available)
	case "detailed":
		total := 0
		if in.TotalUnits != nil {
			total = *in.TotalUnits
		}
		*a = DetailedAvailability(total, in.Warehouses)
	case "", "unknown":
		*a = UnknownAvailability()
	default:
		return fmt.Errorf("unknown availability kind %q", in.Kind)
	}
	return nil
}

type ChangeType string

const (
	ChangeUpsert ChangeType = "UPSERT"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent describes one mutation of the local product mirror.
type ChangeEvent struct {
	ID         string         `json:"id"`
	Type       ChangeType     `json:"type"`
	PartNumber string         `json:"part_number"`
	Product    *ProductRecord `json:"product,omitempty"`
	Source     string         `json:"source,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
