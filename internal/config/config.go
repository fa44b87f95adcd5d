// Package config provides configuration management for the cliptrail agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// Default values
	DefaultPort     = 8788
	DefaultLogLevel = "info"
	DefaultDataDir  = ".cliptrail"
	DefaultFFmpeg   = "ffmpeg"
	DefaultFFprobe  = "ffprobe"

	// Environment variable names
	EnvPort        = "CLIPTRAIL_PORT"
	EnvLogLevel    = "CLIPTRAIL_LOG_LEVEL"
	EnvDataDir     = "CLIPTRAIL_DATA_DIR"
	EnvPresetsFile = "CLIPTRAIL_PRESETS_FILE"
	EnvFFmpeg      = "CLIPTRAIL_FFMPEG"
	EnvFFprobe     = "CLIPTRAIL_FFPROBE"
	EnvHeadless    = "CLIPTRAIL_HEADLESS"

	// Upload host environment variable names
	EnvUploadAPIURL       = "CLIPTRAIL_UPLOAD_API_URL"
	EnvUploadFileDropURL  = "CLIPTRAIL_UPLOAD_FILEDROP_URL"
	EnvUploadShareURL     = "CLIPTRAIL_UPLOAD_SHARE_URL"
	EnvUploadClientID     = "CLIPTRAIL_UPLOAD_CLIENT_ID"
	EnvUploadClientSecret = "CLIPTRAIL_UPLOAD_CLIENT_SECRET"
	EnvUploadUsername     = "CLIPTRAIL_UPLOAD_USERNAME"
	EnvUploadPassword     = "CLIPTRAIL_UPLOAD_PASSWORD"

	DBFilename      = "cliptrail.db"
	PresetsFilename = "presets.ini"
)

// Upload holds the upload host endpoints and credentials.
type Upload struct {
	APIURL       string
	FileDropURL  string
	ShareURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	PresetsPath() string
	FFmpegPath() string
	FFprobePath() string
	Headless() bool
	Upload() Upload
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port        int
	logLevel    string
	dataDir     string
	presetsPath string
	ffmpeg      string
	ffprobe     string
	headless    bool
	upload      Upload
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:     DefaultPort,
		logLevel: DefaultLogLevel,
		dataDir:  defaultDataDir(),
		ffmpeg:   DefaultFFmpeg,
		ffprobe:  DefaultFFprobe,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		switch strings.ToLower(ll) {
		case "debug", "info", "warn", "warning", "error":
			cfg.logLevel = strings.ToLower(ll)
		default:
			return nil, fmt.Errorf("invalid %s: %q", EnvLogLevel, ll)
		}
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}
	cfg.presetsPath = os.Getenv(EnvPresetsFile)

	if v := os.Getenv(EnvFFmpeg); v != "" {
		cfg.ffmpeg = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		cfg.ffprobe = v
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	cfg.upload = Upload{
		APIURL:       os.Getenv(EnvUploadAPIURL),
		FileDropURL:  os.Getenv(EnvUploadFileDropURL),
		ShareURL:     os.Getenv(EnvUploadShareURL),
		ClientID:     os.Getenv(EnvUploadClientID),
		ClientSecret: os.Getenv(EnvUploadClientSecret),
		Username:     os.Getenv(EnvUploadUsername),
		Password:     os.Getenv(EnvUploadPassword),
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// PresetsPath returns the preset INI file, inside the data directory unless
// overridden.
func (c *EnvConfig) PresetsPath() string {
	if c.presetsPath != "" {
		return c.presetsPath
	}
	return filepath.Join(c.dataDir, PresetsFilename)
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

// Headless reports whether the tray UI is disabled.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) Upload() Upload {
	return c.upload
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
