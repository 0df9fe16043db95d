package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"heart-risk/internal/common"
	"heart-risk/internal/risk"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelPath         string
	DataPath          string // empty disables the prediction log
	HTTPPort          int
	DecisionThreshold float64
	RiskBands         []risk.Band
	MaxConcurrency    int
	Permutations      int
	BackgroundLimit   int
	AttributionSeed   uint64
	ReportRowLimit    int
	MaxUploadBytes    int64
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	LogLevel          string
	LogFormat         string
	APIVersion        string
}

type ConfigFile struct {
	Model struct {
		Path              string      `yaml:"path"`
		DecisionThreshold float64     `yaml:"decisionThreshold"`
		RiskBands         []risk.Band `yaml:"riskBands"`
	} `yaml:"model"`

	Attribution struct {
		Permutations    int    `yaml:"permutations"`
		BackgroundLimit int    `yaml:"backgroundLimit"`
		Seed            uint64 `yaml:"seed"`
	} `yaml:"attribution"`

	Server struct {
		Port            int    `yaml:"port"`
		MaxConcurrency  int    `yaml:"maxConcurrency"`
		MaxUploadBytes  int64  `yaml:"maxUploadBytes"`
		ReportRowLimit  int    `yaml:"reportRowLimit"`
		RequestTimeout  string `yaml:"requestTimeout"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
		APIVersion      string `yaml:"apiVersion"`
	} `yaml:"server"`

	System struct {
		DataPath  string `yaml:"dataPath"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`
	} `yaml:"system"`
}

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = defaultRequestTimeout
	}
	shutdownTimeout, err := time.ParseDuration(config.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = defaultShutdownTimeout
	}

	// Environment variables override the file
	bands, err := getBandsFromEnvOrConfig(config.Model.RiskBands)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		ModelPath:         getEnvOrDefault(common.EnvModelPath, orString(config.Model.Path, common.DefaultModelPath)),
		DataPath:          getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		HTTPPort:          getIntFromEnvOrConfig(common.EnvHTTPPort, config.Server.Port, common.DefaultHTTPPort),
		DecisionThreshold: getFloatFromEnvOrConfig(common.EnvDecisionThreshold, config.Model.DecisionThreshold, common.DefaultDecisionThreshold),
		RiskBands:         bands,
		MaxConcurrency:    getIntFromEnvOrConfig(common.EnvMaxConcurrency, config.Server.MaxConcurrency, common.DefaultMaxConcurrency),
		Permutations:      getIntFromEnvOrConfig(common.EnvPermutations, config.Attribution.Permutations, common.DefaultPermutations),
		BackgroundLimit:   getIntFromEnvOrConfig(common.EnvBackgroundLimit, config.Attribution.BackgroundLimit, common.DefaultBackgroundLimit),
		AttributionSeed:   getUintFromEnvOrConfig(common.EnvAttributionSeed, config.Attribution.Seed, common.DefaultAttributionSeed),
		ReportRowLimit:    getIntFromEnvOrConfig(common.EnvReportRowLimit, config.Server.ReportRowLimit, common.DefaultReportRowLimit),
		MaxUploadBytes:    int64(getIntFromEnvOrConfig(common.EnvMaxUploadBytes, int(config.Server.MaxUploadBytes), common.DefaultMaxUploadBytes)),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		ShutdownTimeout:   getDurationOrDefault(common.EnvShutdownTimeout, shutdownTimeout),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, orString(config.System.LogLevel, common.DefaultLogLevel)),
		LogFormat:         getEnvOrDefault(common.EnvLogFormat, orString(config.System.LogFormat, common.DefaultLogFormat)),
		APIVersion:        getEnvOrDefault(common.EnvAPIVersion, orString(config.Server.APIVersion, common.DefaultAPIVersion)),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	bands, err := getBandsFromEnvOrConfig(nil)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		ModelPath:         getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		DataPath:          os.Getenv(common.EnvDataPath), // optional
		HTTPPort:          getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		DecisionThreshold: getFloatOrDefault(common.EnvDecisionThreshold, common.DefaultDecisionThreshold),
		RiskBands:         bands,
		MaxConcurrency:    getIntOrDefault(common.EnvMaxConcurrency, common.DefaultMaxConcurrency),
		Permutations:      getIntOrDefault(common.EnvPermutations, common.DefaultPermutations),
		BackgroundLimit:   getIntOrDefault(common.EnvBackgroundLimit, common.DefaultBackgroundLimit),
		AttributionSeed:   getUintOrDefault(common.EnvAttributionSeed, common.DefaultAttributionSeed),
		ReportRowLimit:    getIntOrDefault(common.EnvReportRowLimit, common.DefaultReportRowLimit),
		MaxUploadBytes:    int64(getIntOrDefault(common.EnvMaxUploadBytes, common.DefaultMaxUploadBytes)),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, defaultRequestTimeout),
		ShutdownTimeout:   getDurationOrDefault(common.EnvShutdownTimeout, defaultShutdownTimeout),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:         getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		APIVersion:        getEnvOrDefault(common.EnvAPIVersion, common.DefaultAPIVersion),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// StorageEnabled reports whether a prediction log should be opened.
func (s *Settings) StorageEnabled() bool { return s.DataPath != "" }

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getUintFromEnvOrConfig(key string, configValue, defaultValue uint64) uint64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getUintOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// getBandsFromEnvOrConfig fails on a malformed RISK_BANDS rather than
// silently classifying against the defaults.
func getBandsFromEnvOrConfig(configBands []risk.Band) ([]risk.Band, error) {
	if env := strings.TrimSpace(os.Getenv(common.EnvRiskBands)); env != "" {
		bands, err := risk.ParseBands(env)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", common.EnvRiskBands, err)
		}
		return bands, nil
	}
	if len(configBands) > 0 {
		return configBands, nil
	}
	return risk.ParseBands(common.DefaultRiskBands)
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.HTTPPort < common.MinHTTPPort || settings.HTTPPort > common.MaxHTTPPort {
		return fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinHTTPPort, common.MaxHTTPPort, settings.HTTPPort)
	}

	// Classification
	if settings.DecisionThreshold <= 0 || settings.DecisionThreshold >= 1 {
		return fmt.Errorf("decision threshold must be between 0 and 1 (exclusive), got %f", settings.DecisionThreshold)
	}
	if err := risk.ValidateBands(settings.RiskBands); err != nil {
		return fmt.Errorf("risk bands: %w", err)
	}

	// Concurrency and attribution
	if settings.MaxConcurrency < 1 || settings.MaxConcurrency > common.MaxConcurrency {
		return fmt.Errorf("max concurrency must be between 1 and %d, got %d", common.MaxConcurrency, settings.MaxConcurrency)
	}
	if settings.Permutations < 1 || settings.Permutations > common.MaxPermutations {
		return fmt.Errorf("attribution permutations must be between 1 and %d, got %d", common.MaxPermutations, settings.Permutations)
	}
	if settings.BackgroundLimit < 0 {
		return fmt.Errorf("attribution background limit cannot be negative, got %d", settings.BackgroundLimit)
	}

	// Server limits
	if settings.ReportRowLimit < 1 || settings.ReportRowLimit > common.MaxReportRowLimit {
		return fmt.Errorf("report row limit must be between 1 and %d, got %d", common.MaxReportRowLimit, settings.ReportRowLimit)
	}
	if settings.MaxUploadBytes < common.MinMaxUploadBytes || settings.MaxUploadBytes > common.MaxMaxUploadBytes {
		return fmt.Errorf("max upload bytes must be between %d and %d, got %d", common.MinMaxUploadBytes, common.MaxMaxUploadBytes, settings.MaxUploadBytes)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 10*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 10m, got %v", settings.RequestTimeout)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}

	// Logging
	switch settings.LogFormat {
	case common.LogFormatConsole, common.LogFormatJSON:
	default:
		return fmt.Errorf("log format must be %q or %q, got %q", common.LogFormatConsole, common.LogFormatJSON, settings.LogFormat)
	}

	return nil
}
