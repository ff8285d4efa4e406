package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "baoyan"

// Recorder holds the gauges describing the most recent run. Each Recorder
// has its own registry so runs never mix with the default one.
type Recorder struct {
	registry *prometheus.Registry

	sourceFiles     *prometheus.GaugeVec
	eventsMerged    prometheus.Gauge
	calendarEntries prometheus.Gauge
	calendarSkipped *prometheus.GaugeVec
	storeRows       prometheus.Gauge
	stageSuccess    *prometheus.GaugeVec
	lastRun         prometheus.Gauge
	duration        prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sourceFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_files",
			Help:      "Source files seen in the last run, by result.",
		}, []string{"result"}),
		eventsMerged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_merged",
			Help:      "Events in the merged sequence of the last run.",
		}),
		calendarEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calendar_entries",
			Help:      "Entries written to the calendar document.",
		}),
		calendarSkipped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calendar_skipped",
			Help:      "Events left out of the calendar document, by reason.",
		}, []string{"reason"}),
		storeRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_rows",
			Help:      "Rows written to the snapshot database.",
		}),
		stageSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_success",
			Help:      "1 if the stage completed in the last run, 0 otherwise.",
		}, []string{"stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}

	r.registry.MustRegister(
		r.sourceFiles,
		r.eventsMerged,
		r.calendarEntries,
		r.calendarSkipped,
		r.storeRows,
		r.stageSuccess,
		r.lastRun,
		r.duration,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) SourceFiles(accepted, rejected int) {
	r.sourceFiles.WithLabelValues("accepted").Set(float64(accepted))
	r.sourceFiles.WithLabelValues("rejected").Set(float64(rejected))
}

func (r *Recorder) EventsMerged(n int) {
	r.eventsMerged.Set(float64(n))
}

func (r *Recorder) Calendar(entries, missingBounds, invalid int) {
	r.calendarEntries.Set(float64(entries))
	r.calendarSkipped.WithLabelValues("missing_bounds").Set(float64(missingBounds))
	r.calendarSkipped.WithLabelValues("invalid").Set(float64(invalid))
}

func (r *Recorder) StoreRows(n int) {
	r.storeRows.Set(float64(n))
}

func (r *Recorder) Stage(name string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	r.stageSuccess.WithLabelValues(name).Set(v)
}

func (r *Recorder) Finished(at time.Time, took time.Duration) {
	r.lastRun.Set(float64(at.Unix()))
	r.duration.Set(took.Seconds())
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
