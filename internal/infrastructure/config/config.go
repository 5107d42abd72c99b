// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	m := matcher.NewMatcher(cfg.MatcherConfig(), registry, eng)
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/reconcile-backend/internal/domain/alias"
	"github.com/eshaffer321/reconcile-backend/internal/domain/allocator"
	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
)

// Config represents the entire application configuration
type Config struct {
	Matching      MatchingConfig      `yaml:"matching"`
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds thresholds and weights for alias resolution and auto-matching
type MatchingConfig struct {
	ResolveFloor        float64 `yaml:"resolve_floor"`
	SuggestFloor        float64 `yaml:"suggest_floor"`
	AutoCommitThreshold float64 `yaml:"auto_commit_threshold"`
	AmountWeight        float64 `yaml:"amount_weight"`
	DateWeight          float64 `yaml:"date_weight"`
	AliasWeight         float64 `yaml:"alias_weight"`
	DateWindowDays      int     `yaml:"date_window_days"`
	MaxSubsetCandidates int     `yaml:"max_subset_candidates"`
	MaxQueuedCandidates int     `yaml:"max_queued_candidates"`
	SubsetFloor         float64 `yaml:"subset_floor"`
	AllocationStrategy  string  `yaml:"allocation_strategy"` // sequential or pro_rata
	AutoMatchActor      string  `yaml:"auto_match_actor"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	DashboardPort  int      `yaml:"dashboard_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	CORSMaxAge     int      `yaml:"cors_max_age"` // seconds a browser may cache a preflight
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILE_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	matcherDefaults := matcher.DefaultConfig()
	aliasDefaults := alias.DefaultConfig()

	return &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("RECONCILE_DB_PATH", "reconcile.db"),
		},
		Matching: MatchingConfig{
			ResolveFloor:        getEnvFloat("RECONCILE_RESOLVE_FLOOR", aliasDefaults.ResolveFloor),
			SuggestFloor:        getEnvFloat("RECONCILE_SUGGEST_FLOOR", aliasDefaults.SuggestFloor),
			AutoCommitThreshold: getEnvFloat("RECONCILE_AUTO_COMMIT_THRESHOLD", matcherDefaults.AutoCommitThreshold),
			AmountWeight:        matcherDefaults.AmountWeight,
			DateWeight:          matcherDefaults.DateWeight,
			AliasWeight:         matcherDefaults.AliasWeight,
			DateWindowDays:      getEnvInt("RECONCILE_DATE_WINDOW_DAYS", matcherDefaults.DateWindowDays),
			MaxSubsetCandidates: getEnvInt("RECONCILE_MAX_SUBSET_CANDIDATES", matcherDefaults.MaxSubsetCandidates),
			MaxQueuedCandidates: getEnvInt("RECONCILE_MAX_QUEUED_CANDIDATES", matcherDefaults.MaxQueuedCandidates),
			SubsetFloor:         getEnvFloat("RECONCILE_SUBSET_FLOOR", matcherDefaults.SubsetFloor),
			AllocationStrategy:  getEnv("RECONCILE_ALLOCATION_STRATEGY", string(allocator.StrategySequential)),
			AutoMatchActor:      getEnv("RECONCILE_AUTO_MATCH_ACTOR", matcherDefaults.Actor),
		},
		API: APIConfig{
			Port:           getEnvInt("RECONCILE_API_PORT", 8085),
			DashboardPort:  getEnvInt("RECONCILE_DASHBOARD_PORT", 8086),
			AllowedOrigins: getEnvList("RECONCILE_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvList("RECONCILE_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvList("RECONCILE_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
			CORSMaxAge:     getEnvInt("RECONCILE_CORS_MAX_AGE", 600),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate checks that thresholds are usable
func (c *Config) Validate() error {
	m := c.Matching
	for name, v := range map[string]float64{
		"resolve_floor":         m.ResolveFloor,
		"suggest_floor":         m.SuggestFloor,
		"auto_commit_threshold": m.AutoCommitThreshold,
		"subset_floor":          m.SubsetFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("matching.%s must be between 0 and 1, got %v", name, v)
		}
	}
	if m.AmountWeight < 0 || m.DateWeight < 0 || m.AliasWeight < 0 {
		return fmt.Errorf("matching weights cannot be negative")
	}
	if m.DateWindowDays < 0 {
		return fmt.Errorf("matching.date_window_days cannot be negative, got %d", m.DateWindowDays)
	}
	switch allocator.Strategy(m.AllocationStrategy) {
	case allocator.StrategySequential, allocator.StrategyProRata:
	default:
		return fmt.Errorf("matching.allocation_strategy %q is not one of sequential, pro_rata", m.AllocationStrategy)
	}
	return nil
}

// MatcherConfig translates the matching section into matcher settings
func (c *Config) MatcherConfig() matcher.Config {
	return matcher.Config{
		AmountWeight:        c.Matching.AmountWeight,
		DateWeight:          c.Matching.DateWeight,
		AliasWeight:         c.Matching.AliasWeight,
		AutoCommitThreshold: c.Matching.AutoCommitThreshold,
		DateWindowDays:      c.Matching.DateWindowDays,
		MaxSubsetCandidates: c.Matching.MaxSubsetCandidates,
		MaxQueuedCandidates: c.Matching.MaxQueuedCandidates,
		SubsetFloor:         c.Matching.SubsetFloor,
		Actor:               c.Matching.AutoMatchActor,
	}
}

// AliasConfig translates the matching section into alias registry settings
func (c *Config) AliasConfig() alias.Config {
	return alias.Config{
		ResolveFloor: c.Matching.ResolveFloor,
		SuggestFloor: c.Matching.SuggestFloor,
	}
}

// applyDefaults fills in anything the YAML file left out
func (c *Config) applyDefaults() {
	env := LoadFromEnv()

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = env.Storage.DatabasePath
	}

	m := &c.Matching
	if m.ResolveFloor == 0 {
		m.ResolveFloor = env.Matching.ResolveFloor
	}
	if m.SuggestFloor == 0 {
		m.SuggestFloor = env.Matching.SuggestFloor
	}
	if m.AutoCommitThreshold == 0 {
		m.AutoCommitThreshold = env.Matching.AutoCommitThreshold
	}
	if m.AmountWeight == 0 && m.DateWeight == 0 && m.AliasWeight == 0 {
		m.AmountWeight = env.Matching.AmountWeight
		m.DateWeight = env.Matching.DateWeight
		m.AliasWeight = env.Matching.AliasWeight
	}
	if m.DateWindowDays == 0 {
		m.DateWindowDays = env.Matching.DateWindowDays
	}
	if m.MaxSubsetCandidates == 0 {
		m.MaxSubsetCandidates = env.Matching.MaxSubsetCandidates
	}
	if m.MaxQueuedCandidates == 0 {
		m.MaxQueuedCandidates = env.Matching.MaxQueuedCandidates
	}
	if m.AllocationStrategy == "" {
		m.AllocationStrategy = env.Matching.AllocationStrategy
	}
	if m.AutoMatchActor == "" {
		m.AutoMatchActor = env.Matching.AutoMatchActor
	}

	if c.API.Port == 0 {
		c.API.Port = env.API.Port
	}
	if c.API.DashboardPort == 0 {
		c.API.DashboardPort = env.API.DashboardPort
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = env.API.AllowedOrigins
	}
	if len(c.API.AllowedMethods) == 0 {
		c.API.AllowedMethods = env.API.AllowedMethods
	}
	if len(c.API.AllowedHeaders) == 0 {
		c.API.AllowedHeaders = env.API.AllowedHeaders
	}
	if c.API.CORSMaxAge == 0 {
		c.API.CORSMaxAge = env.API.CORSMaxAge
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = env.Observability.Logging.Level
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = env.Observability.Logging.Format
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback default
func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		var result float64
		if _, err := fmt.Sscanf(val, "%g", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvList retrieves a comma-separated environment variable with a fallback default
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
