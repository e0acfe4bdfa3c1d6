package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RateOverride is a sparse per-day exception to the default nightly price
// and/or minimum stay. A row with both fields null must not persist: the
// rate resolver deletes it instead.
type RateOverride struct {
	bun.BaseModel `bun:"table:rate_overrides"`

	Date      Date      `bun:"date,pk,type:date" json:"date"`
	Price     *float64  `bun:"price,nullzero" json:"price,omitempty"`
	MinNights *int      `bun:"min_nights,nullzero" json:"min_nights,omitempty"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Empty reports whether the override no longer overrides anything.
func (o *RateOverride) Empty() bool {
	return o.Price == nil && o.MinNights == nil
}

// NightPrice is one resolved night in a quote.
type NightPrice struct {
	Date     Date    `json:"date"`
	Price    float64 `json:"price"`
	Override bool    `json:"override"`
}

// Quote is the full price breakdown for a candidate stay.
type Quote struct {
	CheckIn       Date         `json:"check_in"`
	CheckOut      Date         `json:"check_out"`
	Nights        int          `json:"nights"`
	NightPrices   []NightPrice `json:"night_prices"`
	Subtotal      float64      `json:"subtotal"`
	CleaningFee   float64      `json:"cleaning_fee"`
	ServiceFee    float64      `json:"service_fee"`
	Total         float64      `json:"total"`
	AvgNightly    float64      `json:"avg_nightly"`
	MinNights     int          `json:"min_nights"`
	HasCustomRate bool         `json:"has_custom_rate"`
}

// OverrideField names a clearable RateOverride column.
type OverrideField string

const (
	FieldPrice     OverrideField = "price"
	FieldMinNights OverrideField = "min_nights"
)

type SetOverridesRequest struct {
	Dates     []string `json:"dates" validate:"required,min=1,dive,required"`
	Price     *float64 `json:"price" validate:"omitempty,gt=0"`
	MinNights *int     `json:"min_nights" validate:"omitempty,min=1"`
}

type ClearOverridesRequest struct {
	Dates []string `json:"dates" validate:"required,min=1,dive,required"`
	Field string   `json:"field" validate:"required,oneof=price min_nights"`
}
