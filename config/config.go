// Package config loads service configuration from a yaml file with
// environment overrides, and validates the result before any service
// starts.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "config")

// BundleRef names one kernel bundle and its manifest on disk. Order
// matters: the first bundle covering an epoch wins, so the primary
// (DE440) is listed before the long-span fallback (DE441).
type BundleRef struct {
	ID       string `json:"id" validate:"required"`
	Manifest string `json:"manifest" validate:"required"`
}

// Config is the full service configuration.
type Config struct {
	HTTPHost       string `json:"http_host"`
	HTTPPort       int    `json:"http_port" validate:"gte=0,lte=65535"`
	MonitoringHost string `json:"monitoring_host"`
	MonitoringPort int    `json:"monitoring_port" validate:"gte=0,lte=65535"`

	Bundles           []BundleRef `json:"bundles" validate:"required,min=1,dive"`
	AyanamshaRegistry string      `json:"ayanamsha_registry" validate:"required"`

	Workers       int `json:"workers" validate:"gte=0"`
	QueueSize     int `json:"queue_size" validate:"gte=0"`
	JobTimeoutSec int `json:"job_timeout_sec" validate:"gte=0"`

	CacheSize   int    `json:"cache_size" validate:"gte=0"`
	CacheTTLSec int    `json:"cache_ttl_sec" validate:"gte=0"`
	RedisURL    string `json:"redis_url"`

	RateLimitStorageURI string `json:"rate_limit_storage_uri"`
	RateLimitRules      string `json:"rate_limit_rules"`
	DisableRateLimit    bool   `json:"disable_rate_limit"`

	TimePatches string `json:"time_patches"`
	GeocoderURL string `json:"geocoder_url" validate:"omitempty,url"`

	AllowedOrigins []string `json:"allowed_origins"`
	LogLevel       string   `json:"log_level"`
}

// Default returns the baseline configuration before file and env layers.
func Default() *Config {
	return &Config{
		HTTPHost:       "127.0.0.1",
		HTTPPort:       8080,
		MonitoringHost: "127.0.0.1",
		MonitoringPort: 9090,
		JobTimeoutSec:  30,
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
	}
}

// Load layers the yaml file (optional) and environment overrides over the
// defaults, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "could not read config file")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrap(err, "could not parse config file")
		}
		log.WithField("path", path).Info("Loaded configuration file")
	}
	applyEnv(cfg)
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// applyEnv maps the documented environment overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("KERNEL_BUNDLE"); v != "" {
		cfg.Bundles = parseBundleEnv(v)
	}
	if v := os.Getenv("WORKERS"); v != "" {
		cfg.Workers = envInt("WORKERS", v, cfg.Workers)
	}
	if v := os.Getenv("QUEUE_SIZE"); v != "" {
		cfg.QueueSize = envInt("QUEUE_SIZE", v, cfg.QueueSize)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("RATE_LIMIT_STORAGE_URI"); v != "" {
		cfg.RateLimitStorageURI = v
	}
	if v := os.Getenv("GEOCODER_URL"); v != "" {
		cfg.GeocoderURL = v
	}
	if v := os.Getenv("DISABLE_RATE_LIMIT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.WithField("value", v).Warn("Ignoring non-boolean DISABLE_RATE_LIMIT")
		} else {
			cfg.DisableRateLimit = b
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitTrim(v)
	}
}

// parseBundleEnv reads "DE440=/path/a.yaml,DE441=/path/b.yaml". A bare
// path becomes a single bundle whose id is read from the manifest later.
func parseBundleEnv(v string) []BundleRef {
	var refs []BundleRef
	for _, part := range splitTrim(v) {
		if id, manifest, ok := strings.Cut(part, "="); ok {
			refs = append(refs, BundleRef{ID: id, Manifest: manifest})
			continue
		}
		refs = append(refs, BundleRef{ID: "default", Manifest: part})
	}
	return refs
}

func envInt(name, v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		log.WithField("value", v).Warnf("Ignoring non-integer %s", name)
		return fallback
	}
	return n
}

func splitTrim(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
