package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ManualBlock is an owner- or integration-created interval of unavailable
// dates. StartDate and EndDate are stored inclusive; overlap against a
// half-open reservation range [a,b) therefore tests a <= EndDate AND
// StartDate < b.
type ManualBlock struct {
	bun.BaseModel `bun:"table:manual_blocks"`

	ID        string `bun:"id,pk" json:"id"`
	StartDate Date   `bun:"start_date,type:date" json:"start_date"`
	EndDate   Date   `bun:"end_date,type:date" json:"end_date"`
	Reason    string `bun:"reason,nullzero" json:"reason,omitempty"`

	// Set only when the block was produced by calendar ingestion. Such
	// blocks are owned by their source and replaced wholesale on sync.
	SourceID string `bun:"source_id,nullzero" json:"source_id,omitempty"`
	EventUID string `bun:"event_uid,nullzero" json:"event_uid,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Covers reports whether day falls inside the inclusive block range.
func (b *ManualBlock) Covers(day Date) bool {
	return !day.Before(b.StartDate) && !day.After(b.EndDate)
}

// BlockedRange is a ManualBlock flattened for calendar display, with a
// human label instead of source internals.
type BlockedRange struct {
	StartDate Date   `json:"start_date"`
	EndDate   Date   `json:"end_date"`
	Label     string `json:"label"`
	Imported  bool   `json:"imported"`
}

type BlockRangeRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Reason    string `json:"reason" validate:"omitempty,max=255"`
}

type ToggleDayRequest struct {
	Date   string `json:"date" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=255"`
}
