// Package config resolves runtime settings from defaults, a YAML file,
// a .env file, the process environment and command-line flags, in that
// order of increasing precedence.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "VOTEDESK_"

// Config holds runtime settings
type Config struct {
	Port           int           `yaml:"port"`
	APIBaseURL     string        `yaml:"api_base_url"`
	DBPath         string        `yaml:"db"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	PageSize       int           `yaml:"page_size"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ShareURL       string        `yaml:"share_url"`
	NoAnimate      bool          `yaml:"no_animate"`
	NoKeyboard     bool          `yaml:"no_keyboard"`
	NoBrowser      bool          `yaml:"no_browser"`

	ConfigFile  string `yaml:"-"`
	EnvFile     string `yaml:"-"`
	ShowVersion bool   `yaml:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:           8082,
		APIBaseURL:     "http://localhost:5000",
		DBPath:         "votedesk.db",
		LogLevel:       "info",
		LogFormat:      "text",
		PageSize:       9,
		TickInterval:   time.Second,
		RequestTimeout: 30 * time.Second,
		EnvFile:        ".env",
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LocalURL returns the URL the browser should open.
func (c Config) LocalURL() string {
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// Validate checks ranges and the API base URL.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api url %q must be an absolute http(s) URL", c.APIBaseURL)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("page size %d must be between 1 and 100", c.PageSize)
	}
	if c.ShareURL != "" {
		u, err := url.Parse(c.ShareURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("share url %q must be an absolute http(s) URL", c.ShareURL)
		}
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

// LookupEnv matches os.LookupEnv
type LookupEnv func(key string) (string, bool)

// Load resolves the configuration for args (without the program name).
// lookup is consulted before the .env file; pass os.LookupEnv in production.
func Load(args []string, lookup LookupEnv, output io.Writer) (Config, error) {
	cfg := Default()
	if lookup == nil {
		lookup = os.LookupEnv
	}

	fs, flagged := newFlagSet(&cfg, output)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// Start over from defaults and layer sources in precedence order.
	merged := Default()
	merged.ConfigFile = cfg.ConfigFile
	merged.EnvFile = cfg.EnvFile
	merged.ShowVersion = cfg.ShowVersion

	if merged.ConfigFile == "" {
		if v, ok := lookup(EnvPrefix + "CONFIG"); ok {
			merged.ConfigFile = v
		}
	}
	if merged.ConfigFile != "" {
		if err := applyYAML(&merged, merged.ConfigFile); err != nil {
			return merged, err
		}
	}

	fileEnv, err := readEnvFile(merged.EnvFile, set["env"])
	if err != nil {
		return merged, err
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	if err := applyEnv(&merged, env); err != nil {
		return merged, err
	}

	for name := range set {
		if apply, ok := flagged[name]; ok {
			apply(&merged)
		}
	}

	return merged, merged.Validate()
}

func newFlagSet(cfg *Config, output io.Writer) (*flag.FlagSet, map[string]func(*Config)) {
	fs := flag.NewFlagSet("votedesk", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "Voting backend base URL")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "logformat", cfg.LogFormat, "Log format (text, json)")
	fs.IntVar(&cfg.PageSize, "pagesize", cfg.PageSize, "Polls per page")
	fs.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Countdown refresh interval")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Backend request timeout")
	fs.StringVar(&cfg.ShareURL, "share", cfg.ShareURL, "Base URL for share links (detected from the LAN address if empty)")
	fs.BoolVar(&cfg.NoAnimate, "noanimate", cfg.NoAnimate, "Skip the startup banner")
	fs.BoolVar(&cfg.NoKeyboard, "nokeyboard", cfg.NoKeyboard, "Disable keyboard shortcuts")
	fs.BoolVar(&cfg.NoBrowser, "nobrowser", cfg.NoBrowser, "Do not open a browser on start")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")
	fs.StringVar(&cfg.EnvFile, "env", cfg.EnvFile, ".env file")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `votedesk - local front end for the online voting platform

Usage:
  votedesk [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), `
Environment:
  VOTEDESK_PORT, VOTEDESK_API_URL, VOTEDESK_DB, VOTEDESK_LOG_LEVEL,
  VOTEDESK_LOG_FORMAT, VOTEDESK_PAGE_SIZE, VOTEDESK_TICK, VOTEDESK_TIMEOUT,
  VOTEDESK_SHARE_URL, VOTEDESK_NO_BROWSER, VOTEDESK_CONFIG

Keyboard Shortcuts (when enabled):
  o              Open votedesk in browser
  h              Toggle HTTP request logging
  l              Cycle log level (debug → info → warn → error)
  x              Sign out
  q              Quit
  ?              Show keyboard help

Examples:
  votedesk                                  # Port 8082, backend at localhost:5000
  votedesk -api https://vote.example.org    # Use a remote backend
  votedesk -config votedesk.yaml            # Load settings from YAML
`)
	}

	// Flags explicitly given on the command line are re-applied last.
	flagged := map[string]func(*Config){
		"port":       func(c *Config) { c.Port = cfg.Port },
		"api":        func(c *Config) { c.APIBaseURL = cfg.APIBaseURL },
		"db":         func(c *Config) { c.DBPath = cfg.DBPath },
		"loglevel":   func(c *Config) { c.LogLevel = cfg.LogLevel },
		"logformat":  func(c *Config) { c.LogFormat = cfg.LogFormat },
		"pagesize":   func(c *Config) { c.PageSize = cfg.PageSize },
		"tick":       func(c *Config) { c.TickInterval = cfg.TickInterval },
		"timeout":    func(c *Config) { c.RequestTimeout = cfg.RequestTimeout },
		"share":      func(c *Config) { c.ShareURL = cfg.ShareURL },
		"noanimate":  func(c *Config) { c.NoAnimate = cfg.NoAnimate },
		"nokeyboard": func(c *Config) { c.NoKeyboard = cfg.NoKeyboard },
		"nobrowser":  func(c *Config) { c.NoBrowser = cfg.NoBrowser },
	}
	return fs, flagged
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// readEnvFile loads path if it exists. A missing file is only an error when
// it was asked for explicitly.
func readEnvFile(path string, explicit bool) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return values, nil
}

func applyEnv(cfg *Config, env LookupEnv) error {
	str := func(key string, dst *string) {
		if v, ok := env(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := env(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := env(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := env(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("API_URL", &cfg.APIBaseURL)
	str("DB", &cfg.DBPath)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("SHARE_URL", &cfg.ShareURL)

	for _, err := range []error{
		num("PORT", &cfg.Port),
		num("PAGE_SIZE", &cfg.PageSize),
		dur("TICK", &cfg.TickInterval),
		dur("TIMEOUT", &cfg.RequestTimeout),
		boolean("NO_BROWSER", &cfg.NoBrowser),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
