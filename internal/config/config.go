// Package config handles platform configuration
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/crop"
	"github.com/GriffinCanCode/slidecapture/internal/dedup"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
)

// Source kinds
const (
	SourceBrowser = "browser"
	SourceScreen  = "screen"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string
	LogLevel string

	CaptureInterval time.Duration
	SearchInterval  time.Duration
	SearchTimeout   time.Duration
	ThumbnailSize   int
	AverageHashSize int

	PHashMinSimilarity  float64 // percent
	IdenticalBytesCheck bool
	AverageExactCheck   bool

	CropAnchor string
	CropWidth  float64 // percent
	CropHeight float64 // percent

	SourceKind             string
	BrowserURL             string
	BrowserRemote          string
	ExcludedCanvasSuffixes []string

	SettingsFile string
	ArchiveDir   string
	CatalogDB    string
}

func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr: getEnv("GRPC_ADDR", ":50061"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CaptureInterval: getEnvDuration("CAPTURE_INTERVAL", capture.DefaultCaptureInterval),
		SearchInterval:  getEnvDuration("SEARCH_INTERVAL", capture.DefaultSearchInterval),
		SearchTimeout:   getEnvDuration("SEARCH_TIMEOUT", capture.DefaultSearchTimeout),
		ThumbnailSize:   getEnvInt("THUMBNAIL_SIZE", 64),
		AverageHashSize: getEnvInt("AHASH_SIZE", 8),

		PHashMinSimilarity:  getEnvFloat("PHASH_MIN_SIMILARITY", dedup.DefaultPHashMin*100),
		IdenticalBytesCheck: getEnvBool("IDENTICAL_BYTES_CHECK", true),
		AverageExactCheck:   getEnvBool("AHASH_EXACT_CHECK", true),

		CropAnchor: getEnv("CROP_ANCHOR", string(crop.Center)),
		CropWidth:  getEnvFloat("CROP_WIDTH", 100),
		CropHeight: getEnvFloat("CROP_HEIGHT", 100),

		SourceKind:             getEnv("SOURCE_KIND", SourceBrowser),
		BrowserURL:             getEnv("BROWSER_URL", ""),
		BrowserRemote:          getEnv("BROWSER_REMOTE", ""),
		ExcludedCanvasSuffixes: getEnvList("EXCLUDED_CANVAS_SUFFIXES", []string{"-anno", "-local", "-share"}),

		SettingsFile: getEnv("SETTINGS_FILE", "settings.yaml"),
		ArchiveDir:   getEnv("ARCHIVE_DIR", "captures"),
		CatalogDB:    getEnv("CATALOG_DB", "captures/catalog.db"),
	}
}

// Validate fails fast on values the engine cannot run with.
func (c *Config) Validate() error {
	if c.SourceKind != SourceBrowser && c.SourceKind != SourceScreen {
		return apperrors.Newf(apperrors.Configuration, "unknown SOURCE_KIND %q", c.SourceKind)
	}
	if c.AverageHashSize <= 0 {
		return apperrors.Newf(apperrors.Configuration, "AHASH_SIZE must be positive, got %d", c.AverageHashSize)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return err
	}
	return c.Capture().Validate()
}

// Region is the configured crop, before any settings file overrides it.
func (c *Config) Region() crop.Region {
	return crop.Region{
		Anchor:         crop.Anchor(c.CropAnchor),
		WidthFraction:  c.CropWidth / 100,
		HeightFraction: c.CropHeight / 100,
	}
}

// Thresholds converts the dedup settings.
func (c *Config) Thresholds() dedup.Thresholds {
	return dedup.Thresholds{
		IdenticalBytes: c.IdenticalBytesCheck,
		AverageExact:   c.AverageExactCheck,
		PHashMin:       c.PHashMinSimilarity / 100,
	}
}

// Capture converts the engine settings.
func (c *Config) Capture() capture.Config {
	return capture.Config{
		Region:          c.Region(),
		ThumbnailSize:   c.ThumbnailSize,
		CaptureInterval: c.CaptureInterval,
		SearchInterval:  c.SearchInterval,
		SearchTimeout:   c.SearchTimeout,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
