package source

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	appLog "github.com/lingtimeone/BAOYAN-Calendar/internal/log"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/model"
)

// EventsKey is the top-level key holding the list of events in a source file.
const EventsKey = "events"

var (
	ErrNotDirectory  = errors.New("source root is missing or not a directory")
	ErrEmptyFile     = errors.New("empty file")
	ErrNotMapping    = errors.New("document is not a mapping")
	ErrNoEventsKey   = errors.New("missing '" + EventsKey + "' key")
	ErrEventsNotList = errors.New("'" + EventsKey + "' is not a list")
	ErrSyntax        = errors.New("yaml syntax error")
)

// FileReport describes the outcome for a single discovered file.
type FileReport struct {
	Path string
	// Events is the number of events the file contributed.
	Events int
	// Skipped counts entries inside the events list that could not be
	// decoded into an Event.
	Skipped int
	// Err is nil for accepted files. Otherwise it wraps one of the package
	// sentinel errors (or the underlying read error).
	Err error
}

// Warning reports whether the file was rejected for its shape rather than
// for a parse or read failure.
func (r FileReport) Warning() bool {
	return errors.Is(r.Err, ErrEmptyFile) ||
		errors.Is(r.Err, ErrNotMapping) ||
		errors.Is(r.Err, ErrNoEventsKey) ||
		errors.Is(r.Err, ErrEventsNotList)
}

// Result is the merged outcome of a Load.
type Result struct {
	// Events is the merged event sequence in discovery order. Never nil.
	Events []model.Event
	Files  []FileReport
	// RootErr is set when the root itself could not be walked.
	RootErr error
}

// Accepted returns the number of files that contributed an events list
// (possibly empty).
func (r Result) Accepted() int {
	n := 0
	for _, f := range r.Files {
		if f.Err == nil {
			n++
		}
	}
	return n
}

// Rejected returns the number of files that were skipped.
func (r Result) Rejected() int {
	return len(r.Files) - r.Accepted()
}

// IsSourceFile reports whether name has a recognized YAML extension.
func IsSourceFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Load walks root recursively and merges the events of every YAML file it
// finds. A bad file never aborts the walk: it is logged, reported in
// Result.Files and contributes no events.
func Load(root string) Result {
	res := Result{Events: []model.Event{}}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		res.RootErr = fmt.Errorf("%w: %s", ErrNotDirectory, root)
		appLog.Warn("source directory unavailable, no events loaded", "root", root)
		return res
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subdirectory: skip it and keep walking.
			appLog.Error("source walk failed", err, "path", path)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsSourceFile(d.Name()) {
			return nil
		}

		events, skipped, perr := ParseFile(path)
		report := FileReport{Path: path, Events: len(events), Skipped: skipped, Err: perr}
		res.Files = append(res.Files, report)

		switch {
		case perr == nil:
			res.Events = append(res.Events, events...)
			appLog.Debug("source file loaded", "path", path, "events", len(events))
		case report.Warning():
			appLog.Warn("skipping source file", "path", path, "reason", perr)
		default:
			appLog.Error("failed to parse source file", perr, "path", path)
		}
		return nil
	})
	if walkErr != nil {
		res.RootErr = walkErr
		appLog.Error("source walk aborted", walkErr, "root", root)
	}

	appLog.Info("source files read",
		"root", root,
		"files", len(res.Files),
		"rejected", res.Rejected(),
		"events", len(res.Events),
	)
	return res
}

// ParseFile reads and parses one source file. skipped counts list entries
// that were not usable events.
func ParseFile(path string) (events []model.Event, skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	events, skipped, err = Parse(data)
	for i := range events {
		events[i].Source = path
	}
	if skipped > 0 {
		appLog.Warn("skipped unusable event entries", "path", path, "count", skipped)
	}
	return events, skipped, err
}

// rawEvent is the on-disk shape of a single entry. Every key is optional.
type rawEvent struct {
	Year        string `yaml:"year"`
	School      string `yaml:"school"`
	Begin       string `yaml:"begin"`
	End         string `yaml:"end"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
	RRule       string `yaml:"rrule"`
}

func (r rawEvent) event() model.Event {
	return model.Event{
		Year:        strings.TrimSpace(r.Year),
		School:      strings.TrimSpace(r.School),
		Begin:       strings.TrimSpace(r.Begin),
		End:         strings.TrimSpace(r.End),
		Description: strings.TrimSpace(r.Description),
		URL:         strings.TrimSpace(r.URL),
		RRule:       strings.TrimSpace(r.RRule),
	}
}

// Parse validates the shape of a source document and decodes its events.
//
// The document must be a mapping with an "events" key holding a list. Each
// list item that is a mapping becomes an Event; other items are counted in
// skipped. Scalar values of any YAML type are kept as written, so
// `year: 2024` and `begin: 2024-01-01` both arrive as text.
func Parse(data []byte) (events []model.Event, skipped int, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, 0, ErrEmptyFile
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	root := resolve(&doc)
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = resolve(root.Content[0])
	}
	if root.Kind != yaml.MappingNode {
		return nil, 0, ErrNotMapping
	}

	list := lookup(root, EventsKey)
	if list == nil {
		return nil, 0, ErrNoEventsKey
	}
	if list.Kind != yaml.SequenceNode {
		return nil, 0, ErrEventsNotList
	}

	events = make([]model.Event, 0, len(list.Content))
	for _, item := range list.Content {
		item = resolve(item)
		if item.Kind != yaml.MappingNode {
			skipped++
			continue
		}
		var raw rawEvent
		if err := item.Decode(&raw); err != nil {
			skipped++
			continue
		}
		events = append(events, raw.event())
	}
	return events, skipped, nil
}

// lookup returns the value node for key in a mapping node, or nil.
func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return resolve(m.Content[i+1])
		}
	}
	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
