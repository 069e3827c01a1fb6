package explorer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/uiprobe/internal/capture"
	"github.com/PentesterFlow/uiprobe/internal/classify"
	"github.com/PentesterFlow/uiprobe/internal/dom"
	"github.com/PentesterFlow/uiprobe/internal/logger"
	"github.com/PentesterFlow/uiprobe/internal/server"
)

// DefaultHistoryFile is the history database name under ReportsDir.
const DefaultHistoryFile = "history.db"

// Environment variables read by ApplyEnv.
const (
	EnvBaseURL    = "UIPROBE_BASE_URL"
	EnvHost       = "UIPROBE_HOST"
	EnvPort       = "UIPROBE_PORT"
	EnvBackend    = "UIPROBE_BACKEND"
	EnvReportsDir = "UIPROBE_REPORTS_DIR"
)

// Config holds all explorer configuration.
type Config struct {
	// Page explored when DiscoverAll gets an empty URL
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Backend is dom.BackendStatic or dom.BackendRendered
	Backend string `json:"backend" yaml:"backend"`

	// Directory for reports; created on save
	ReportsDir string `json:"reports_dir" yaml:"reports_dir"`

	// Attach per-category counts to results
	Statistics bool `json:"statistics" yaml:"statistics"`

	// Record saved reports in the run history database
	History bool `json:"history" yaml:"history"`
	// Run history database; empty means <ReportsDir>/history.db
	HistoryPath string `json:"history_path" yaml:"history_path"`

	Static     dom.StaticConfig   `json:"static" yaml:"static"`
	Browser    dom.RenderedConfig `json:"browser" yaml:"browser"`
	Classify   classify.Config    `json:"classify" yaml:"classify"`
	Screenshot capture.Config     `json:"screenshot" yaml:"screenshot"`
	Server     server.Config      `json:"server" yaml:"server"`

	// Quiet hides per-element progress; Debug wins over it
	Quiet bool `json:"quiet" yaml:"quiet"`
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:5173",
		Backend:    dom.BackendStatic,
		ReportsDir: "reports",
		Statistics: true,
		History:    true,
		Static:     dom.DefaultStaticConfig(),
		Browser:    dom.DefaultRenderedConfig(),
		Classify:   classify.DefaultConfig(),
		Screenshot: capture.Config{
			Prefix:         "login_page",
			ThumbnailWidth: 320,
		},
		Server: server.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON) over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile writes the configuration as JSON or YAML depending on the extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from the environment. lookup is usually os.LookupEnv.
// UIPROBE_HOST and UIPROBE_PORT set the server address and, unless
// UIPROBE_BASE_URL is also set, the base URL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	hostPortChanged := false

	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Server.Host = v
		hostPortChanged = true
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
		hostPortChanged = true
	}
	if hostPortChanged {
		c.BaseURL = strings.TrimSuffix(c.Server.URL(), "/")
	}

	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvBackend); ok && v != "" {
		c.Backend = v
	}
	if v, ok := lookup(EnvReportsDir); ok && v != "" {
		c.ReportsDir = v
	}
	return nil
}

// HistoryFile returns the history database path, or "" when history is off.
func (c *Config) HistoryFile() string {
	if !c.History {
		return ""
	}
	if c.HistoryPath != "" {
		return c.HistoryPath
	}
	return filepath.Join(c.ReportsDir, DefaultHistoryFile)
}

// LogLevel returns the level for the explorer's own logger. Per-element
// progress is logged at info, so it shows unless Quiet is set.
func (c *Config) LogLevel() logger.Level {
	switch {
	case c.Debug:
		return logger.DebugLevel
	case c.Quiet:
		return logger.WarnLevel
	default:
		return logger.InfoLevel
	}
}

// ScreenshotDir returns the screenshot directory, defaulting under ReportsDir.
func (c *Config) ScreenshotDir() string {
	if c.Screenshot.Dir != "" {
		return c.Screenshot.Dir
	}
	return filepath.Join(c.ReportsDir, "screenshots")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base URL %q is not an absolute URL", c.BaseURL)
		}
	}

	switch c.Backend {
	case dom.BackendStatic, dom.BackendRendered:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", dom.BackendStatic, dom.BackendRendered, c.Backend)
	}

	if c.ReportsDir == "" {
		return fmt.Errorf("reports directory is required")
	}

	if c.Screenshot.ThumbnailWidth < 0 {
		return fmt.Errorf("thumbnail width must not be negative")
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}
