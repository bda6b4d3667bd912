// Package config loads browserctl settings from defaults, an optional YAML
// file and BROWSERCTL_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EngineChromium = "chromium"
	EngineDocker   = "docker"
)

// Config holds all browserctl configuration.
type Config struct {
	StateDir  string `yaml:"state_dir"`
	TraceDir  string `yaml:"trace_dir"`
	OutputDir string `yaml:"output_dir"`

	Browser  BrowserConfig  `yaml:"browser"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Recorder RecorderConfig `yaml:"recorder"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BrowserConfig selects and parameterises the supervised browser.
type BrowserConfig struct {
	Engine      string   `yaml:"engine"` // chromium, docker
	Bin         string   `yaml:"bin"`
	Headless    bool     `yaml:"headless"`
	Args        []string `yaml:"args"`
	UserDataDir string   `yaml:"user_data_dir"`
	DockerImage string   `yaml:"docker_image"`
	Width       int      `yaml:"width"`
	Height      int      `yaml:"height"`
}

type TimeoutConfig struct {
	Action     time.Duration `yaml:"action"`
	Navigation time.Duration `yaml:"navigation"`
	Connect    time.Duration `yaml:"connect"`
	Launch     time.Duration `yaml:"launch"`
	DaemonAck  time.Duration `yaml:"daemon_ack"`
	DaemonStop time.Duration `yaml:"daemon_stop"`
	Settle     time.Duration `yaml:"settle"`
}

// RecorderConfig bounds response body capture.
type RecorderConfig struct {
	MaxBodySize          int     `yaml:"max_body_size"`
	BodyFetchConcurrency int64   `yaml:"body_fetch_concurrency"`
	BodyFetchRate        float64 `yaml:"body_fetch_rate"`
	BodyFetchBurst       int     `yaml:"body_fetch_burst"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	tmp := os.TempDir()
	return &Config{
		StateDir:  filepath.Join(tmp, "browserctl"),
		TraceDir:  filepath.Join(tmp, "browserctl-traces"),
		OutputDir: filepath.Join(tmp, "browserctl-output"),
		Browser: BrowserConfig{
			Engine:      EngineChromium,
			Headless:    runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "",
			DockerImage: "browserless/chrome:latest",
			Width:       1280,
			Height:      720,
		},
		Timeouts: TimeoutConfig{
			Action:     5 * time.Second,
			Navigation: 60 * time.Second,
			Connect:    3 * time.Second,
			Launch:     15 * time.Second,
			DaemonAck:  10 * time.Second,
			DaemonStop: 5 * time.Second,
			Settle:     5 * time.Second,
		},
		Recorder: RecorderConfig{
			MaxBodySize:          512 * 1024,
			BodyFetchConcurrency: 4,
			BodyFetchRate:        50,
			BodyFetchBurst:       10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath is $BROWSERCTL_CONFIG, or config.yaml inside the state
// directory ($BROWSERCTL_STATE_DIR when set).
func DefaultPath() string {
	if p := os.Getenv("BROWSERCTL_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("BROWSERCTL_STATE_DIR")
	if dir == "" {
		dir = DefaultConfig().StateDir
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads configuration from path. A missing file yields the defaults;
// environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("BROWSERCTL_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("BROWSERCTL_TRACE_DIR"); v != "" {
		c.TraceDir = v
	}
	if v := os.Getenv("BROWSERCTL_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("BROWSERCTL_ENGINE"); v != "" {
		c.Browser.Engine = strings.ToLower(v)
	}
	if v := os.Getenv("BROWSERCTL_BROWSER_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("BROWSERCTL_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BROWSERCTL_HEADLESS %q: %w", v, err)
		}
		c.Browser.Headless = b
	}
	if v := os.Getenv("BROWSERCTL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BROWSERCTL_MAX_BODY_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BROWSERCTL_MAX_BODY_SIZE %q: %w", v, err)
		}
		c.Recorder.MaxBodySize = n
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case EngineChromium, EngineDocker:
	default:
		return fmt.Errorf("unknown browser engine %q", c.Browser.Engine)
	}
	if c.Recorder.MaxBodySize <= 0 {
		return fmt.Errorf("recorder.max_body_size must be positive")
	}
	if c.Recorder.BodyFetchConcurrency <= 0 {
		c.Recorder.BodyFetchConcurrency = 1
	}
	return nil
}

func (c *Config) BrowserStatePath() string {
	return filepath.Join(c.StateDir, "browser-state.json")
}

func (c *Config) TracerStatePath() string {
	return filepath.Join(c.StateDir, "tracer-state.json")
}

// ArtifactName is the timestamped file name given to generated output that
// was not named by the user, e.g. page-2024-03-01T10-20-30-456Z.png.
func ArtifactName(prefix, ext string, at time.Time) string {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format("2006-01-02T15:04:05.000Z"))
	if ext == "" {
		return prefix + "-" + stamp
	}
	return fmt.Sprintf("%s-%s.%s", prefix, stamp, ext)
}

func (c *Config) SessionsDir() string {
	return filepath.Join(c.TraceDir, "sessions")
}

func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.StateDir, "daemon.log")
}

// ProfileDir is the browser's user data directory.
func (c *Config) ProfileDir() string {
	if c.Browser.UserDataDir != "" {
		return c.Browser.UserDataDir
	}
	return filepath.Join(c.StateDir, "profile")
}
