package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Core domain records. Route and cargo attributes are carried as opaque payload;
// lifecycle decisions only ever look at Status and ExpiresAt.

// Money and weight limits match the NUMERIC(14,2) and NUMERIC(12,3) columns.
var (
	MaxQuotedPrice = decimal.New(1, 12)
	MaxWeightTons  = decimal.New(1, 9)
)

const (
	priceScale  = 2
	weightScale = 3
)

// fitsScale reports whether d has no more than places fractional digits.
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusAwarded Status = "awarded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusAwarded:
		return true
	}
	return false
}

// Closed reports whether the status is terminal for the sweep.
func (s Status) Closed() bool { return s == StatusClosed || s == StatusAwarded }

// CanTransition lists the only edges a conditional status update may take.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusOpen && to == StatusClosed:
		return true
	case from == StatusClosed && to == StatusAwarded:
		return true
	}
	return false
}

type Bid struct {
	ID                   string          `json:"id"`
	BidNumber            string          `json:"bid_number"`
	Origin               string          `json:"origin"`
	Destination          string          `json:"destination"`
	MaterialType         string          `json:"material_type"`
	WeightTons           decimal.Decimal `json:"weight_tons"`
	PickupDate           string          `json:"pickup_date"`
	RequiredDeliveryDate string          `json:"required_delivery_date"`
	Notes                string          `json:"additional_notes,omitempty"`
	Status               Status          `json:"status"`
	ExpiresAt            time.Time       `json:"expires_at"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Validate enforces the invariants a bid must hold before it is persisted.
func (b Bid) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return NewValidationError("id", "must not be empty")
	}
	if strings.TrimSpace(b.BidNumber) == "" {
		return NewValidationError("bid_number", "must not be empty")
	}
	if b.CreatedAt.IsZero() {
		return NewValidationError("created_at", "must be set")
	}
	if !b.ExpiresAt.After(b.CreatedAt) {
		return NewValidationError("expires_at", "must be after created_at")
	}
	if b.WeightTons.IsNegative() {
		return NewValidationError("weight_tons", "must not be negative")
	}
	if b.WeightTons.GreaterThanOrEqual(MaxWeightTons) {
		return NewValidationError("weight_tons", "must be below "+MaxWeightTons.String())
	}
	if !fitsScale(b.WeightTons, weightScale) {
		return NewValidationError("weight_tons", "must have at most 3 decimal places")
	}
	return nil
}

type Offer struct {
	ID                    string          `json:"id"`
	BidID                 string          `json:"bid_id"`
	CompanyName           string          `json:"company_name"`
	PersonName            string          `json:"person_name"`
	MobileNumber          string          `json:"mobile_number"`
	AlternateNumber       string          `json:"alternate_number,omitempty"`
	QuotedPrice           decimal.Decimal `json:"quoted_price"`
	EstimatedDeliveryDate string          `json:"estimated_delivery_date"`
	VehicleType           string          `json:"vehicle_type,omitempty"`
	AdditionalComments    string          `json:"additional_comments,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

func (o Offer) Validate() error {
	switch {
	case strings.TrimSpace(o.ID) == "":
		return NewValidationError("id", "must not be empty")
	case strings.TrimSpace(o.BidID) == "":
		return NewValidationError("bid_id", "must not be empty")
	case strings.TrimSpace(o.CompanyName) == "":
		return NewValidationError("company_name", "must not be empty")
	case strings.TrimSpace(o.PersonName) == "":
		return NewValidationError("person_name", "must not be empty")
	case strings.TrimSpace(o.MobileNumber) == "":
		return NewValidationError("mobile_number", "must not be empty")
	case !o.QuotedPrice.IsPositive():
		return NewValidationError("quoted_price", "must be positive")
	case o.QuotedPrice.GreaterThanOrEqual(MaxQuotedPrice):
		return NewValidationError("quoted_price", "must be below "+MaxQuotedPrice.String())
	case !fitsScale(o.QuotedPrice, priceScale):
		return NewValidationError("quoted_price", "must have at most 2 decimal places")
	case o.CreatedAt.IsZero():
		return NewValidationError("created_at", "must be set")
	}
	return nil
}

// BidFilter narrows List results. A zero Status matches every bid.
type BidFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Stats are the dashboard counters.
type Stats struct {
	Open    int `json:"open"`
	Closed  int `json:"closed"`
	Awarded int `json:"awarded"`
	Offers  int `json:"offers"`
}
