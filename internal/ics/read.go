package ics

import (
	"errors"
	"os"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Entry is a VEVENT read back from a calendar document.
type Entry struct {
	UID         string
	Summary     string
	Description string
	URL         string
	RRule       string

	Start  time.Time
	End    time.Time
	AllDay bool
}

// ReadFile parses a calendar document written by Export. It is used to
// verify published output; it does not try to cover arbitrary feeds.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cal, err := ical.ParseCalendar(f)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		entry, err := readVEvent(ve)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readVEvent(ve *ical.VEvent) (Entry, error) {
	var out Entry

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		t, err := parseICSTime(p.Value)
		if err != nil {
			return out, err
		}
		out.Start = t
		out.AllDay = !strings.Contains(p.Value, "T")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		t, err := parseICSTime(p.Value)
		if err != nil {
			return out, err
		}
		out.End = t
	}

	return out, nil
}

// parseICSTime parses the basic DATE / DATE-TIME forms Export produces.
// Floating and date-only values are returned in UTC.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Floating date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.Parse("20060102T150405", v)
	}

	// Date-only (all-day), e.g., 20250101
	return time.Parse("20060102", v)
}
