package config

import (
	"fmt"
	"os"
	"path/filepath"

	"bytemomo/rhembatch/internal/domain"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty.
const (
	DefaultWorkbook       = "RHEM_template.xlsx"
	DefaultTableName      = "scenarios"
	DefaultHeaderRows     = 1
	DefaultConcurrency    = 10
	DefaultTimeoutSeconds = 86400
	DefaultOutDir         = "output"
	DefaultServiceURL     = "http://csip.engr.colostate.edu:8083/csip-rhem/m/rhem/runrhem/1.0"
	DefaultAuxResult      = "TDS"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Loader provides functionality to load and validate configuration files
type Loader struct {
	basePath string
}

// NewLoader creates a new configuration loader with the specified base path
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{
		basePath: basePath,
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// Load reads, defaults and validates the configuration at path. An empty
// path yields Default.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	fullPath := l.resolvePath(path)

	data, err := l.readFile(fullPath)
	if err != nil {
		return nil, NewConfigLoadError(fullPath, "cannot read file", err)
	}

	// Expand environment variables
	data = l.expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewConfigLoadError(fullPath, "cannot parse yaml", err)
	}

	setDefaults(&cfg)
	l.resolveRelative(&cfg, filepath.Dir(fullPath))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed for %s: %w", fullPath, err)
	}
	return &cfg, nil
}

// resolvePath resolves a path relative to the loader's base path
func (l *Loader) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.basePath, path)
}

// resolveRelative makes file paths in the config relative to the file itself.
func (l *Loader) resolveRelative(cfg *Config, dir string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if cfg.Table.Kind == TableXLSX {
		cfg.Table.Path = rel(cfg.Table.Path)
	}
	cfg.Runtime.OutDir = rel(cfg.Runtime.OutDir)
	cfg.Runtime.Logging.File = rel(cfg.Runtime.Logging.File)
	cfg.Local.WorkDir = rel(cfg.Local.WorkDir)
}

// readFile reads a file and returns its contents
func (l *Loader) readFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}

	return os.ReadFile(path)
}

// expandEnvVars expands environment variables in the configuration data
func (l *Loader) expandEnvVars(data []byte) []byte {
	content := string(data)
	return []byte(os.ExpandEnv(content))
}

func setDefaults(cfg *Config) {
	if cfg.Table.Kind == "" {
		cfg.Table.Kind = TableXLSX
	}
	if cfg.Table.Kind == TableXLSX && cfg.Table.Path == "" {
		cfg.Table.Path = DefaultWorkbook
	}
	if cfg.Table.Kind == TablePostgres && cfg.Table.Name == "" {
		cfg.Table.Name = DefaultTableName
	}

	if cfg.Runtime.Mode == "" {
		cfg.Runtime.Mode = domain.ModeService
	}
	if cfg.Runtime.Concurrency == 0 {
		cfg.Runtime.Concurrency = DefaultConcurrency
	}
	if cfg.Runtime.TimeoutSeconds == 0 {
		cfg.Runtime.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Runtime.OutDir == "" {
		cfg.Runtime.OutDir = DefaultOutDir
	}
	if cfg.Runtime.Logging.Level == "" {
		cfg.Runtime.Logging.Level = DefaultLogLevel
	}
	if cfg.Runtime.Logging.Format == "" {
		cfg.Runtime.Logging.Format = DefaultLogFormat
	}

	if cfg.Service.URL == "" {
		cfg.Service.URL = DefaultServiceURL
	}
	if cfg.Service.AuxResult == "" {
		cfg.Service.AuxResult = DefaultAuxResult
	}
	if cfg.Local.WorkDir == "" {
		cfg.Local.WorkDir = "."
	}
}

// LoaderError represents a configuration loading error
type LoaderError struct {
	Type    string
	Path    string
	Message string
	Cause   error
}

func (e LoaderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (caused by: %v)", e.Type, e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Type, e.Path, e.Message)
}

func (e LoaderError) Unwrap() error {
	return e.Cause
}

func NewConfigLoadError(path, message string, cause error) error {
	return LoaderError{
		Type:    "config",
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}
