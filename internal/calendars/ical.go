package calendars

import (
	"fmt"
	"strings"
	"time"

	"staybook/internal/models"
)

// iCal timestamp encodings we accept: date-only and UTC/floating
// date-time (RFC 5545 §3.3.4/§3.3.5).
const (
	icalDateLayout      = "20060102"
	icalDateTimeLayout  = "20060102T150405"
	icalDateTimeZLayout = "20060102T150405Z"
)

// unfoldLines undoes iCal line folding: a line starting with a space or
// tab continues the previous line.
func unfoldLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")

	unfolded := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(unfolded) > 0 {
			unfolded[len(unfolded)-1] += line[1:]
			continue
		}
		if line != "" {
			unfolded = append(unfolded, line)
		}
	}
	return unfolded
}

// splitProperty separates "NAME;PARAM=X:VALUE" into its name (parameters
// dropped) and value.
func splitProperty(line string) (name, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	name = line[:idx]
	value = line[idx+1:]
	if paramIdx := strings.Index(name, ";"); paramIdx >= 0 {
		name = name[:paramIdx]
	}
	return strings.ToUpper(name), value, true
}

func parseICalDate(value string) (models.Date, error) {
	for _, layout := range []string{icalDateLayout, icalDateTimeZLayout, icalDateTimeLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return models.DateOf(t), nil
		}
	}
	return models.Date{}, fmt.Errorf("unrecognized iCal timestamp %q", value)
}

// unescapeText reverses RFC 5545 text escaping for SUMMARY values.
func unescapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			switch r {
			case 'n', 'N':
				b.WriteByte('\n')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeText applies RFC 5545 text escaping: backslash, semicolon, comma
// and newline. Backslash must go first.
func EscapeText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// ParseICal extracts the VEVENT blocks of an iCal document. Events missing
// DTSTART are dropped; a missing DTEND defaults to a one-day event, which
// is how feeds encode single-night busy days.
func ParseICal(raw string) ([]models.CalendarEvent, error) {
	lines := unfoldLines(raw)

	var events []models.CalendarEvent
	var current *models.CalendarEvent
	for _, line := range lines {
		name, value, ok := splitProperty(line)
		if !ok {
			continue
		}

		switch name {
		case "BEGIN":
			if strings.EqualFold(value, "VEVENT") {
				current = &models.CalendarEvent{}
			}
		case "END":
			if strings.EqualFold(value, "VEVENT") && current != nil {
				if !current.Start.IsZero() {
					if current.End.IsZero() {
						current.End = current.Start.AddDays(1)
					}
					events = append(events, *current)
				}
				current = nil
			}
		case "UID":
			if current != nil {
				current.UID = value
			}
		case "SUMMARY":
			if current != nil {
				current.Summary = unescapeText(value)
			}
		case "DTSTART":
			if current != nil {
				if d, err := parseICalDate(value); err == nil {
					current.Start = d
				}
			}
		case "DTEND":
			if current != nil {
				if d, err := parseICalDate(value); err == nil {
					current.End = d
				}
			}
		}
	}

	if len(events) == 0 && !strings.Contains(strings.ToUpper(raw), "BEGIN:VCALENDAR") {
		return nil, fmt.Errorf("document is not an iCal calendar")
	}
	return events, nil
}
