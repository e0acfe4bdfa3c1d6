package calendars

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"staybook/internal/errs"
	"staybook/internal/models"
)

type ReservationLister interface {
	ListActive(ctx context.Context) ([]models.Reservation, error)
}

// Exporter renders the property's own calendar as an iCal document for
// the platforms to pull. Reserved ranges are published without guest
// details; only owner-created blocks are included, never imported ones,
// so a platform never sees its own events reflected back.
type Exporter struct {
	Reservations ReservationLister
	DB           DBLayer
	FeedDomain   string
}

func (e *Exporter) BuildFeed(ctx context.Context) (string, error) {
	reservations, err := e.Reservations.ListActive(ctx)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "failed to load reservations for export", err)
	}
	blocks, err := e.DB.ListOwnerBlocks(ctx)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "failed to load blocks for export", err)
	}

	var b strings.Builder
	stamp := time.Now().UTC().Format("20060102T150405Z")

	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:-//staybook//availability//EN")
	writeLine(&b, "CALSCALE:GREGORIAN")
	writeLine(&b, "METHOD:PUBLISH")

	for _, res := range reservations {
		e.writeEvent(&b, fmt.Sprintf("res-%s@%s", res.ID, e.FeedDomain), stamp,
			res.CheckIn, res.CheckOut, "Reserved")
	}
	for _, block := range blocks {
		summary := "Not available"
		if block.Reason != "" {
			summary = block.Reason
		}
		// Stored block ends are inclusive; DTEND wants exclusive.
		e.writeEvent(&b, fmt.Sprintf("blk-%s@%s", block.ID, e.FeedDomain), stamp,
			block.StartDate, block.EndDate.AddDays(1), summary)
	}

	writeLine(&b, "END:VCALENDAR")
	return b.String(), nil
}

func (e *Exporter) writeEvent(b *strings.Builder, uid, stamp string, start, end models.Date, summary string) {
	writeLine(b, "BEGIN:VEVENT")
	writeLine(b, "UID:"+uid)
	writeLine(b, "DTSTAMP:"+stamp)
	writeLine(b, "DTSTART;VALUE=DATE:"+start.Time().Format(icalDateLayout))
	writeLine(b, "DTEND;VALUE=DATE:"+end.Time().Format(icalDateLayout))
	writeLine(b, "SUMMARY:"+EscapeText(summary))
	writeLine(b, "END:VEVENT")
}

// foldWidth is the RFC 5545 content-line limit in octets, excluding CRLF.
const foldWidth = 75

// iCal requires CRLF line endings, and content lines longer than 75 octets
// must be folded onto continuation lines starting with a space. Folding
// counts bytes, never splitting inside a UTF-8 sequence.
func writeLine(b *strings.Builder, line string) {
	width := foldWidth
	for len(line) > width {
		cut := width
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines lose one octet to the leading space.
		width = foldWidth - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}
