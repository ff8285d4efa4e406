package model

// Event is one admission window for one institution, as contributed in a
// source YAML file. Every field is free text; an empty string means the key
// was absent (or null) in the source.
//
// Begin and End hold the original text so the snapshot store can keep
// exactly what contributors wrote. The calendar exporter interprets them as
// dates or date-times.
type Event struct {
	Year        string
	School      string
	Begin       string
	End         string
	Description string
	URL         string

	// RRule is an optional RFC 5545 recurrence rule (e.g. "FREQ=YEARLY").
	// It only affects the calendar document.
	RRule string

	// Source is the file the event was read from.
	Source string
}

// HasBounds reports whether both temporal bounds are present.
func (e Event) HasBounds() bool {
	return e.Begin != "" && e.End != ""
}
