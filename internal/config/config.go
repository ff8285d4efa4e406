package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: every field has a compiled-in default, so a run without any config
// file behaves like the original fixed-configuration job.

// RepositoryConfig identifies where the generated calendar is published.
// The raw URL of the calendar file is built from these three values.
type RepositoryConfig struct {
	Owner  string `yaml:"owner" validate:"required"`
	Name   string `yaml:"name" validate:"required"`
	Branch string `yaml:"branch" validate:"required"`
}

// OutputConfig holds destination paths for the generated artifacts.
type OutputConfig struct {
	Calendar string `yaml:"calendar" validate:"required"`
	Database string `yaml:"database" validate:"required"`
	Status   string `yaml:"status" validate:"required"`
	// Metrics, if non-empty, is a Prometheus textfile written after each run.
	Metrics string `yaml:"metrics,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// SourceDir is the root of the contributed YAML tree.
	SourceDir string `yaml:"source_dir" validate:"required"`

	Output     OutputConfig     `yaml:"output"`
	Repository RepositoryConfig `yaml:"repository"`

	// ViewerBase is the externally hosted calendar renderer. The status page
	// links to <ViewerBase>/calendar.html?url=<raw calendar URL>.
	ViewerBase string `yaml:"viewer_base" validate:"required,url"`

	// UTCOffsetHours is the fixed offset of the reference time zone. It is
	// used for the status page timestamp and for naive begin/end values.
	UTCOffsetHours int `yaml:"utc_offset_hours" validate:"gte=-12,lte=14"`

	// CalendarName is published as X-WR-CALNAME.
	CalendarName string `yaml:"calendar_name"`

	// StatusImage is the image the status page wraps in the viewer link.
	StatusImage string `yaml:"status_image"`

	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

const (
	defaultSourceDir    = "all_info"
	defaultCalendarFile = "calendar.ics"
	defaultDatabaseFile = "baoyan_calendar.db"
	defaultStatusFile   = "README.md"
	defaultOwner        = "lingtimeone"
	defaultRepo         = "BAOYAN-Calendar"
	defaultBranch       = "main"
	defaultViewerBase   = "https://open-web-calendar.hosted.quelltext.eu"
	defaultOffsetHours  = 8
	defaultCalendarName = "Baoyan Calendar"
	defaultStatusImage  = "img.png"
	defaultLogLevel     = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		SourceDir: defaultSourceDir,
		Output: OutputConfig{
			Calendar: defaultCalendarFile,
			Database: defaultDatabaseFile,
			Status:   defaultStatusFile,
		},
		Repository: RepositoryConfig{
			Owner:  defaultOwner,
			Name:   defaultRepo,
			Branch: defaultBranch,
		},
		ViewerBase:     defaultViewerBase,
		UTCOffsetHours: defaultOffsetHours,
		CalendarName:   defaultCalendarName,
		StatusImage:    defaultStatusImage,
		LogLevel:       defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly. UTCOffsetHours is left alone since
// zero is a valid offset; configs that omit it get the default through Load.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.SourceDir == "" {
		c.SourceDir = d.SourceDir
	}
	if c.Output.Calendar == "" {
		c.Output.Calendar = d.Output.Calendar
	}
	if c.Output.Database == "" {
		c.Output.Database = d.Output.Database
	}
	if c.Output.Status == "" {
		c.Output.Status = d.Output.Status
	}
	if c.Repository.Owner == "" {
		c.Repository.Owner = d.Repository.Owner
	}
	if c.Repository.Name == "" {
		c.Repository.Name = d.Repository.Name
	}
	if c.Repository.Branch == "" {
		c.Repository.Branch = d.Repository.Branch
	}
	c.ViewerBase = strings.TrimRight(c.ViewerBase, "/")
	if c.ViewerBase == "" {
		c.ViewerBase = d.ViewerBase
	}
	if c.CalendarName == "" {
		c.CalendarName = d.CalendarName
	}
	if c.StatusImage == "" {
		c.StatusImage = d.StatusImage
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - An empty path or a missing file yields the defaults.
//   - An existing file is decoded on top of the defaults, then normalized.
//   - Environment overrides are applied last (see ApplyEnv).
//   - The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Fixed defaults, like the original job.
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", filepath.Clean(path), err)
			}
		}
	}

	cfg.Normalize()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv loads a .env file from the working directory if one exists and
// applies environment overrides for the repository identity and log level.
//
// GITHUB_REPOSITORY ("owner/name", set by GitHub Actions) is used when the
// specific BAOYAN_REPO_* variables are not set.
func (c *Config) ApplyEnv() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	if owner, name, ok := strings.Cut(getEnvOrDefault("GITHUB_REPOSITORY", ""), "/"); ok && owner != "" && name != "" {
		c.Repository.Owner = owner
		c.Repository.Name = name
	}
	c.Repository.Owner = getEnvOrDefault("BAOYAN_REPO_OWNER", c.Repository.Owner)
	c.Repository.Name = getEnvOrDefault("BAOYAN_REPO_NAME", c.Repository.Name)
	c.Repository.Branch = getEnvOrDefault("BAOYAN_BRANCH", c.Repository.Branch)
	c.LogLevel = getEnvOrDefault("BAOYAN_LOG_LEVEL", c.LogLevel)
}

// getEnvOrDefault returns the trimmed value of key, or defaultValue when it
// is unset or blank.
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
