package ics

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "github.com/lingtimeone/BAOYAN-Calendar/internal/log"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/model"
)

// UnknownSchool is the entry title used when an event has no school.
const UnknownSchool = "Unknown School"

const (
	defaultProductID = "-//lingtimeone//BAOYAN-Calendar//EN"
	defaultUIDDomain = "baoyan-calendar"
)

var (
	ErrMissingBounds  = errors.New("missing begin or end")
	ErrBadTime        = errors.New("unrecognized date/time value")
	ErrEndBeforeBegin = errors.New("end is before begin")
)

// uidNamespace seeds the name-based UUIDs of calendar entries.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/lingtimeone/BAOYAN-Calendar"))

// Options controls how events are rendered into a calendar document.
type Options struct {
	// Location is used for begin/end values without an explicit offset.
	// If nil, time.Local is used.
	Location *time.Location

	// Now is written as DTSTAMP on every entry. Zero means time.Now().
	Now time.Time

	// CalendarName is published as X-WR-CALNAME when non-empty.
	CalendarName string

	// UIDDomain is appended to every UID ("<uuid>@<domain>").
	UIDDomain string
}

// Skip records an event left out of the calendar and why.
type Skip struct {
	Index  int
	School string
	Err    error
}

// ExportReport summarizes a Build/Export call.
type ExportReport struct {
	Entries int
	Skipped []Skip
}

// MissingBounds returns how many events were left out for lacking begin or
// end. These are expected and not treated as errors.
func (r ExportReport) MissingBounds() int {
	n := 0
	for _, s := range r.Skipped {
		if errors.Is(s.Err, ErrMissingBounds) {
			n++
		}
	}
	return n
}

// Invalid returns how many events were left out for unusable values.
func (r ExportReport) Invalid() int {
	return len(r.Skipped) - r.MissingBounds()
}

// Build converts the merged event list into a calendar. Events without
// both bounds are skipped silently; events whose bounds cannot be used are
// logged and skipped. Neither aborts the build.
func Build(events []model.Event, opts Options) (*ical.Calendar, ExportReport) {
	opts = opts.withDefaults()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(defaultProductID)
	if opts.CalendarName != "" {
		cal.SetXWRCalName(opts.CalendarName)
	}

	var report ExportReport
	seen := make(map[string]int)

	for i, ev := range events {
		if !ev.HasBounds() {
			report.Skipped = append(report.Skipped, Skip{Index: i, School: ev.School, Err: ErrMissingBounds})
			appLog.Debug("calendar entry skipped, no begin/end", "school", ev.School, "source", ev.Source)
			continue
		}

		sp, err := eventSpan(ev, opts.Location)
		if err != nil {
			report.Skipped = append(report.Skipped, Skip{Index: i, School: ev.School, Err: err})
			appLog.Error("failed to convert event for calendar", err, "school", titleOf(ev), "source", ev.Source)
			continue
		}

		uid := entryUID(ev, opts.UIDDomain, seen)
		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(opts.Now)
		ve.SetSummary(titleOf(ev))
		ve.SetDescription(Notes(ev))
		if u := absoluteURL(ev.URL); u != "" {
			ve.SetURL(u)
		}

		if sp.allDay {
			ve.SetAllDayStartAt(sp.start)
			ve.SetAllDayEndAt(sp.end)
		} else {
			ve.SetStartAt(sp.start)
			ve.SetEndAt(sp.end)
		}

		if rule := strings.TrimPrefix(ev.RRule, "RRULE:"); rule != "" {
			if _, err := rrule.StrToRRule(rule); err != nil {
				appLog.Warn("ignoring invalid rrule", "school", titleOf(ev), "rrule", ev.RRule, "reason", err)
			} else {
				ve.AddProperty(ical.ComponentPropertyRrule, rule)
			}
		}

		report.Entries++
	}

	return cal, report
}

// Export builds the calendar and replaces the document at path with it.
// The returned error only covers writing; per-event problems are in the
// report.
func Export(path string, events []model.Event, opts Options) (ExportReport, error) {
	cal, report := Build(events, opts)

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return report, fmt.Errorf("remove old calendar: %w", err)
	}

	var b strings.Builder
	if err := cal.SerializeTo(&b); err != nil {
		return report, fmt.Errorf("serialize calendar: %w", err)
	}
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		return report, fmt.Errorf("write calendar: %w", err)
	}

	appLog.Info("calendar written",
		"path", path,
		"entries", report.Entries,
		"missing_bounds", report.MissingBounds(),
		"invalid", report.Invalid(),
	)
	return report, nil
}

// Notes joins description and url the way the published calendar has
// always shown them, trimmed, never a placeholder.
func Notes(ev model.Event) string {
	return strings.TrimSpace(ev.Description + "  " + ev.URL)
}

func titleOf(ev model.Event) string {
	if ev.School == "" {
		return UnknownSchool
	}
	return ev.School
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.UIDDomain == "" {
		o.UIDDomain = defaultUIDDomain
	}
	return o
}

// entryUID derives a stable UID from the event content so that unchanged
// input yields unchanged entries. Identical events get a numeric suffix.
func entryUID(ev model.Event, domain string, seen map[string]int) string {
	key := strings.Join([]string{ev.Year, ev.School, ev.Begin, ev.End}, "\x1f")
	id := uuid.NewSHA1(uidNamespace, []byte(key)).String()
	n := seen[id]
	seen[id] = n + 1
	if n > 0 {
		id += "-" + strconv.Itoa(n)
	}
	return id + "@" + domain
}

func absoluteURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.String()
}

type span struct {
	start, end time.Time
	allDay     bool
}

// eventSpan interprets begin/end. Two plain dates become an all-day entry
// whose exclusive DTEND is the day after the end date, since admission
// windows include their last day.
func eventSpan(ev model.Event, loc *time.Location) (span, error) {
	start, startDate, err := ParseTime(ev.Begin, loc)
	if err != nil {
		return span{}, fmt.Errorf("begin %q: %w", ev.Begin, err)
	}
	end, endDate, err := ParseTime(ev.End, loc)
	if err != nil {
		return span{}, fmt.Errorf("end %q: %w", ev.End, err)
	}
	if end.Before(start) {
		return span{}, fmt.Errorf("%w: %s > %s", ErrEndBeforeBegin, ev.Begin, ev.End)
	}
	if startDate && endDate {
		return span{start: start, end: end.AddDate(0, 0, 1), allDay: true}, nil
	}
	return span{start: start, end: end}, nil
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006.01.02"}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

// ParseTime parses a contributor-written date or date-time. Values with an
// explicit offset keep it; others are read in loc. dateOnly reports whether
// the value had no time of day.
func ParseTime(v string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, ErrMissingBounds
	}
	if loc == nil {
		loc = time.Local
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true, nil
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05Z07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, false, nil
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: %q", ErrBadTime, v)
}

// writeFileAtomic writes data via a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calendar-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
