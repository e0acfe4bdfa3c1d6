package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// CalendarSource is one configured third-party iCal feed. It owns the
// manual blocks tagged with its ID; deleting the source cascades to them.
type CalendarSource struct {
	bun.BaseModel `bun:"table:calendar_sources"`

	ID        string     `bun:"id,pk" json:"id"`
	Platform  string     `bun:"platform" json:"platform"`
	URL       string     `bun:"url" json:"url"`
	Active    bool       `bun:"active" json:"active"`
	LastSync  *time.Time `bun:"last_sync,nullzero" json:"last_sync,omitempty"`
	SyncState SyncStatus `bun:"sync_state" json:"sync_state"`
	LastError string     `bun:"last_error,nullzero" json:"last_error,omitempty"`
	CreatedAt time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// CalendarEvent is one VEVENT parsed out of an iCal document. End follows
// the iCal convention of an exclusive DTEND.
type CalendarEvent struct {
	UID     string `json:"uid"`
	Summary string `json:"summary"`
	Start   Date   `json:"start"`
	End     Date   `json:"end"`
}

// SyncResult summarizes one sync cycle for one source.
type SyncResult struct {
	SourceID    string    `json:"source_id"`
	Platform    string    `json:"platform"`
	EventsFound int       `json:"events_found"`
	Blocked     int       `json:"blocked"`
	SyncedAt    time.Time `json:"synced_at"`
	Err         error     `json:"-"`
}

type CalendarSourceRequest struct {
	Platform string `json:"platform" validate:"required,max=64"`
	URL      string `json:"url" validate:"required,url"`
	Active   *bool  `json:"active"`
}
