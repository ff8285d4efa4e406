package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lingtimeone/BAOYAN-Calendar/internal/config"
	appLog "github.com/lingtimeone/BAOYAN-Calendar/internal/log"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/metrics"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/pipeline"
)

// flagConfig holds CLI flag values. Every flag is optional; with none the
// job runs once with the built-in configuration.
type flagConfig struct {
	configPath string
	sourceDir  string
	cronSpec   string
	metrics    string
	logLevel   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the config file if provided.
	if flags.sourceDir != "" {
		conf.SourceDir = flags.sourceDir
	}
	if flags.metrics != "" {
		conf.Output.Metrics = flags.metrics
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("baoyan calendar generator starting",
		"source_dir", conf.SourceDir,
		"calendar", conf.Output.Calendar,
		"database", conf.Output.Database,
		"status", conf.Output.Status,
		"repository", conf.Repository.Owner+"/"+conf.Repository.Name+"@"+conf.Repository.Branch,
		"cron", flags.cronSpec,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flags.cronSpec == "" {
		rep := runOnce(ctx, conf)
		if !rep.OK() {
			appLog.Warn("run finished with failed stages")
		}
		appLog.Info("script execution finished")
		return
	}

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	if _, err := sched.AddFunc(flags.cronSpec, func() { runOnce(ctx, conf) }); err != nil {
		appLog.Error("invalid cron expression", err, "cron", flags.cronSpec)
		os.Exit(1)
	}
	sched.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLog.Info("signal received, shutting down", "signal", sig.String())
	cancel()

	// Wait for a run in progress to finish.
	<-sched.Stop().Done()
	appLog.Info("baoyan calendar generator exiting")
}

// runOnce performs one full recompute and, if configured, dumps metrics.
func runOnce(ctx context.Context, conf *config.Config) pipeline.Report {
	rep := pipeline.Run(ctx, conf, time.Now())

	if conf.Output.Metrics != "" {
		rec := metrics.NewRecorder()
		pipeline.Record(rec, rep)
		if err := rec.WriteTextfile(conf.Output.Metrics); err != nil {
			appLog.Error("failed to write metrics textfile", err, "path", conf.Output.Metrics)
		}
	}
	return rep
}

// cronLogger routes scheduler messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "baoyan.yaml", "Path to optional config file")
	flag.StringVar(&cfg.sourceDir, "root", "", "Source YAML directory (overrides config if set)")
	flag.StringVar(&cfg.cronSpec, "cron", "", "Cron expression; if set, keep running and regenerate on schedule")
	flag.StringVar(&cfg.metrics, "metrics", "", "Write Prometheus textfile metrics to this path after each run")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	flag.Parse()

	return cfg
}
