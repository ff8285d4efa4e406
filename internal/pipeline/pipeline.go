package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/lingtimeone/BAOYAN-Calendar/internal/config"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/ics"
	appLog "github.com/lingtimeone/BAOYAN-Calendar/internal/log"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/metrics"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/source"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/status"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/store"
)

const (
	StageLoad     = "load"
	StageCalendar = "calendar"
	StageStore    = "store"
	StageStatus   = "status"
)

// StageResult is the outcome of one stage. Err is a hard failure of the
// stage; Warnings counts units (files, events) that were skipped while the
// stage itself succeeded.
type StageResult struct {
	Name     string
	Err      error
	Warnings int
}

func (s StageResult) OK() bool { return s.Err == nil }

// Report is everything a run produced, for logging, metrics and tests.
type Report struct {
	Started  time.Time
	Duration time.Duration

	Load      source.Result
	Calendar  ics.ExportReport
	StoreRows int
	Stages    []StageResult
}

// OK reports whether every stage completed.
func (r Report) OK() bool {
	for _, s := range r.Stages {
		if !s.OK() {
			return false
		}
	}
	return true
}

// Stage returns the result for name, if the stage ran.
func (r Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Run executes one full recompute: load sources, then write the calendar,
// the database snapshot and the status page. A failing output stage is
// logged and the remaining stages still run.
func Run(ctx context.Context, cfg *config.Config, now time.Time) Report {
	rep := Report{Started: now}
	loc := time.FixedZone(fmt.Sprintf("UTC%+d", cfg.UTCOffsetHours), cfg.UTCOffsetHours*60*60)
	wallStart := time.Now()

	appLog.Info("reading and merging source files", "root", cfg.SourceDir)
	rep.Load = source.Load(cfg.SourceDir)
	rep.Stages = append(rep.Stages, StageResult{
		Name:     StageLoad,
		Warnings: rep.Load.Rejected(),
	})
	appLog.Info("finished reading source files", "events", len(rep.Load.Events))

	events := rep.Load.Events

	appLog.Info("generating calendar file", "path", cfg.Output.Calendar)
	calReport, err := ics.Export(cfg.Output.Calendar, events, ics.Options{
		Location:     loc,
		Now:          now,
		CalendarName: cfg.CalendarName,
		UIDDomain:    cfg.Repository.Owner + ".github.io",
	})
	rep.Calendar = calReport
	rep.Stages = append(rep.Stages, StageResult{Name: StageCalendar, Err: err, Warnings: len(calReport.Skipped)})
	if err != nil {
		appLog.Error("failed to write calendar file", err, "path", cfg.Output.Calendar)
	}

	appLog.Info("writing database snapshot", "path", cfg.Output.Database)
	rows, err := store.WriteSnapshot(ctx, cfg.Output.Database, events)
	rep.StoreRows = rows
	rep.Stages = append(rep.Stages, StageResult{Name: StageStore, Err: err})
	if err != nil {
		kv := []any{"path", cfg.Output.Database}
		if code, ok := store.DriverCode(err); ok {
			kv = append(kv, "sqlite_code", code)
		}
		appLog.Error("failed to write database snapshot", err, kv...)
	}

	appLog.Info("updating status page", "path", cfg.Output.Status)
	err = status.Write(cfg.Output.Status, StatusPage(cfg, now))
	rep.Stages = append(rep.Stages, StageResult{Name: StageStatus, Err: err})
	if err != nil {
		appLog.Error("failed to update status page", err, "path", cfg.Output.Status)
	}

	rep.Duration = time.Since(wallStart)
	appLog.Info("run finished", "ok", rep.OK(), "duration", rep.Duration)
	return rep
}

// StatusPage builds the status page values for cfg at time now.
func StatusPage(cfg *config.Config, now time.Time) status.Page {
	raw := status.RawURL(cfg.Repository.Owner, cfg.Repository.Name, cfg.Repository.Branch, cfg.Output.Calendar)
	return status.Page{
		LastUpdated: status.Timestamp(now, cfg.UTCOffsetHours),
		ViewerURL:   status.ViewerURL(cfg.ViewerBase, raw),
		ImagePath:   cfg.StatusImage,
	}
}

// Record copies a run report into rec.
func Record(rec *metrics.Recorder, rep Report) {
	rec.SourceFiles(rep.Load.Accepted(), rep.Load.Rejected())
	rec.EventsMerged(len(rep.Load.Events))
	rec.Calendar(rep.Calendar.Entries, rep.Calendar.MissingBounds(), rep.Calendar.Invalid())
	rec.StoreRows(rep.StoreRows)
	for _, s := range rep.Stages {
		rec.Stage(s.Name, s.OK())
	}
	rec.Finished(rep.Started.Add(rep.Duration), rep.Duration)
}
