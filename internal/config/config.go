package config

import (
	"fmt"
	"strings"
	"time"

	"bytemomo/rhembatch/internal/domain"
)

// Config is a batch run configuration.
type Config struct {
	Name      string          `yaml:"name" json:"name"`
	Table     TableConfig     `yaml:"table" json:"table"`
	Runtime   RuntimeOpts     `yaml:"runtime" json:"runtime"`
	Service   ServiceConfig   `yaml:"service" json:"service"`
	Local     LocalConfig     `yaml:"local" json:"local"`
	Artifacts ArtifactsConfig `yaml:"artifacts" json:"artifacts"`
}

// Table kinds.
const (
	TableXLSX     = "xlsx"
	TablePostgres = "postgres"
)

// TableConfig selects the scenario table.
type TableConfig struct {
	Kind          string `yaml:"kind" json:"kind"` // xlsx, postgres
	Path          string `yaml:"path,omitempty" json:"path,omitempty"`
	Sheet         string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	DSN           string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Name          string `yaml:"name,omitempty" json:"name,omitempty"`
	HeaderRows    *int   `yaml:"header_rows,omitempty" json:"header_rows,omitempty"`
	ScenarioCount int    `yaml:"scenario_count,omitempty" json:"scenario_count,omitempty"`
	MarkerColumn  *int   `yaml:"marker_column,omitempty" json:"marker_column,omitempty"`
}

// RuntimeOpts contains runtime configuration options
type RuntimeOpts struct {
	Mode           string      `yaml:"mode" json:"mode"` // service, local
	Concurrency    int         `yaml:"concurrency" json:"concurrency"`
	TimeoutSeconds int         `yaml:"timeout_seconds" json:"timeout_seconds"`
	OutDir         string      `yaml:"out_dir" json:"out_dir"`
	RunID          string      `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	Logging        LoggingOpts `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// LoggingOpts defines logging configuration
type LoggingOpts struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // json, text
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

type ServiceConfig struct {
	URL       string `yaml:"url" json:"url"`
	AuxResult string `yaml:"aux_result,omitempty" json:"aux_result,omitempty"`
}

type LocalConfig struct {
	Executable  string   `yaml:"executable" json:"executable"`
	Args        []string `yaml:"args,omitempty" json:"args,omitempty"`
	WorkDir     string   `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
	ControlFile string   `yaml:"control_file,omitempty" json:"control_file,omitempty"`
	ParFile     string   `yaml:"par_file,omitempty" json:"par_file,omitempty"`
	ClimateFile string   `yaml:"climate_file,omitempty" json:"climate_file,omitempty"`
	OutputFile  string   `yaml:"output_file,omitempty" json:"output_file,omitempty"`
}

type ArtifactsConfig struct {
	Minio MinioOpts `yaml:"minio,omitempty" json:"minio,omitempty"`
}

// MinioOpts configures the optional artifact mirror.
type MinioOpts struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty" json:"-"`
	SecretKey string `yaml:"secret_key,omitempty" json:"-"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Bucket    string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty" json:"use_ssl,omitempty"`
}

// Timeout is the overall batch deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Runtime.TimeoutSeconds) * time.Second
}

// Layout is the column layout, with the configured marker column.
func (c *Config) Layout() domain.Layout {
	l := domain.DefaultLayout()
	if c.Table.MarkerColumn != nil {
		l.Marker = domain.Column(*c.Table.MarkerColumn)
	}
	return l
}

// Headers is the number of header rows above the first scenario.
func (c *Config) Headers() int {
	if c.Table.HeaderRows == nil {
		return DefaultHeaderRows
	}
	return *c.Table.HeaderRows
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Table.Kind {
	case TableXLSX:
		if strings.TrimSpace(c.Table.Path) == "" {
			return ErrInvalidTable("xlsx table requires a path")
		}
	case TablePostgres:
		if strings.TrimSpace(c.Table.DSN) == "" {
			return ErrInvalidTable("postgres table requires a dsn")
		}
	default:
		return ErrInvalidTable(fmt.Sprintf("unknown table kind %q", c.Table.Kind))
	}
	if c.Table.HeaderRows != nil && *c.Table.HeaderRows < 0 {
		return ErrInvalidTable("header_rows cannot be negative")
	}
	if c.Table.ScenarioCount < 0 {
		return ErrInvalidTable("scenario_count cannot be negative")
	}
	if err := c.Layout().Validate(); err != nil {
		return ErrInvalidTable(err.Error())
	}

	switch c.Runtime.Mode {
	case domain.ModeService:
		if strings.TrimSpace(c.Service.URL) == "" {
			return ErrInvalidRuntime("service mode requires service.url")
		}
	case domain.ModeLocal:
		if strings.TrimSpace(c.Local.Executable) == "" {
			return ErrInvalidRuntime("local mode requires local.executable")
		}
	default:
		return ErrInvalidRuntime(fmt.Sprintf("unknown mode %q", c.Runtime.Mode))
	}
	if c.Runtime.Concurrency < 0 {
		return ErrInvalidRuntime("concurrency cannot be negative")
	}
	if c.Runtime.TimeoutSeconds < 0 {
		return ErrInvalidRuntime("timeout_seconds cannot be negative")
	}

	if m := c.Artifacts.Minio; m.Enabled {
		switch {
		case strings.TrimSpace(m.Endpoint) == "":
			return ErrInvalidArtifacts("minio endpoint is required")
		case strings.Contains(m.Endpoint, "://"):
			return ErrInvalidArtifacts(fmt.Sprintf("minio endpoint must not include scheme: %q", m.Endpoint))
		case strings.TrimSpace(m.Bucket) == "":
			return ErrInvalidArtifacts("minio bucket is required")
		case m.AccessKey == "" || m.SecretKey == "":
			return ErrInvalidArtifacts("minio credentials are required")
		}
	}
	return nil
}

type ConfigError struct {
	Type    string
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

func ErrInvalidTable(msg string) error {
	return ConfigError{Type: "invalid_table", Message: "table: " + msg}
}

func ErrInvalidRuntime(msg string) error {
	return ConfigError{Type: "invalid_runtime", Message: "runtime: " + msg}
}

func ErrInvalidArtifacts(msg string) error {
	return ConfigError{Type: "invalid_artifacts", Message: "artifacts: " + msg}
}
