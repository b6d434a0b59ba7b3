package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"legendary-classifier/internal/common"
)

type Settings struct {
	ModelPath             string
	ScalerPath            string
	FeatureImportancePath string
	TrainingDataPath      string
	BackgroundDataPath    string
	DataPath              string
	HistoryEnabled        bool
	Port                  int
	CORSOrigins           []string
	RequestTimeout        time.Duration
	RateLimitRPS          float64
	RateLimitBurst        int
	ShapEnabled           bool
	ShapTimeout           time.Duration
	CacheBackend          string
	CacheSize             int
	CacheTTL              time.Duration
	RedisAddr             string
	LogLevel              string
	OTLPEndpoint          string
}

const (
	defaultShapTimeout    = 2 * time.Second
	defaultCacheTTL       = 10 * time.Minute
	defaultRequestTimeout = 30 * time.Second
)

func Load() (Settings, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

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

	shapTimeout := parseDurationOr(config.Explainer.ShapTimeout, defaultShapTimeout)
	cacheTTL := parseDurationOr(config.Cache.TTL, defaultCacheTTL)
	requestTimeout := parseDurationOr(config.Server.RequestTimeout, defaultRequestTimeout)

	shapEnabled := true
	if config.Explainer.ShapEnabled != nil {
		shapEnabled = *config.Explainer.ShapEnabled
	}
	historyEnabled := true
	if config.System.HistoryEnabled != nil {
		historyEnabled = *config.System.HistoryEnabled
	}

	settings := Settings{
		ModelPath:             getStringFromEnvOrConfig(common.EnvModelPath, config.Artifacts.ModelPath, common.DefaultModelPath),
		ScalerPath:            getStringFromEnvOrConfig(common.EnvScalerPath, config.Artifacts.ScalerPath, common.DefaultScalerPath),
		FeatureImportancePath: getStringFromEnvOrConfig(common.EnvFeatureImportancePath, config.Artifacts.FeatureImportancePath, common.DefaultFeatureImportancePath),
		TrainingDataPath:      getStringFromEnvOrConfig(common.EnvTrainingDataPath, config.Artifacts.TrainingDataPath, common.DefaultTrainingDataPath),
		BackgroundDataPath:    getStringFromEnvOrConfig(common.EnvBackgroundDataPath, config.Artifacts.BackgroundDataPath, common.DefaultBackgroundDataPath),
		DataPath:              getStringFromEnvOrConfig(common.EnvDataPath, config.System.DataPath, common.DefaultDataPath),
		HistoryEnabled:        getBoolFromEnvOrConfig(common.EnvHistoryEnabled, historyEnabled),
		Port:                  getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		CORSOrigins:           getOriginsFromEnvOrConfig(config.Server.CORSOrigins),
		RequestTimeout:        getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		RateLimitRPS:          getFloatFromEnvOrConfig(common.EnvRateLimitRPS, config.Server.RateLimitRPS, common.DefaultRateLimitRPS),
		RateLimitBurst:        getIntFromEnvOrConfig(common.EnvRateLimitBurst, config.Server.RateLimitBurst, common.DefaultRateLimitBurst),
		ShapEnabled:           getBoolFromEnvOrConfig(common.EnvShapEnabled, shapEnabled),
		ShapTimeout:           getDurationOrDefault(common.EnvShapTimeout, shapTimeout),
		CacheBackend:          getStringFromEnvOrConfig(common.EnvCacheBackend, config.Cache.Backend, common.DefaultCacheBackend),
		CacheSize:             getIntFromEnvOrConfig(common.EnvCacheSize, config.Cache.Size, common.DefaultCacheSize),
		CacheTTL:              getDurationOrDefault(common.EnvCacheTTL, cacheTTL),
		RedisAddr:             getStringFromEnvOrConfig(common.EnvRedisAddr, config.Cache.RedisAddr, common.DefaultRedisAddr),
		LogLevel:              getStringFromEnvOrConfig(common.EnvLogLevel, config.System.LogLevel, common.DefaultLogLevel),
		OTLPEndpoint:          getStringFromEnvOrConfig(common.EnvOTLPEndpoint, config.System.OTLPEndpoint, ""),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelPath:             getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ScalerPath:            getEnvOrDefault(common.EnvScalerPath, common.DefaultScalerPath),
		FeatureImportancePath: getEnvOrDefault(common.EnvFeatureImportancePath, common.DefaultFeatureImportancePath),
		TrainingDataPath:      getEnvOrDefault(common.EnvTrainingDataPath, common.DefaultTrainingDataPath),
		BackgroundDataPath:    getEnvOrDefault(common.EnvBackgroundDataPath, common.DefaultBackgroundDataPath),
		DataPath:              getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		HistoryEnabled:        getBoolOrDefault(common.EnvHistoryEnabled, true),
		Port:                  getIntOrDefault(common.EnvPort, common.DefaultPort),
		CORSOrigins:           splitOrDefault(os.Getenv(common.EnvCORSOrigins), []string{common.DefaultCORSOrigins}),
		RequestTimeout:        getDurationOrDefault(common.EnvRequestTimeout, defaultRequestTimeout),
		RateLimitRPS:          getFloatOrDefault(common.EnvRateLimitRPS, common.DefaultRateLimitRPS),
		RateLimitBurst:        getIntOrDefault(common.EnvRateLimitBurst, common.DefaultRateLimitBurst),
		ShapEnabled:           getBoolOrDefault(common.EnvShapEnabled, true),
		ShapTimeout:           getDurationOrDefault(common.EnvShapTimeout, defaultShapTimeout),
		CacheBackend:          getEnvOrDefault(common.EnvCacheBackend, common.DefaultCacheBackend),
		CacheSize:             getIntOrDefault(common.EnvCacheSize, common.DefaultCacheSize),
		CacheTTL:              getDurationOrDefault(common.EnvCacheTTL, defaultCacheTTL),
		RedisAddr:             getEnvOrDefault(common.EnvRedisAddr, common.DefaultRedisAddr),
		LogLevel:              getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		OTLPEndpoint:          os.Getenv(common.EnvOTLPEndpoint), // optional
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Level returns the configured zerolog level, defaulting to info.
func (s *Settings) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func parseDurationOr(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
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

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getOriginsFromEnvOrConfig(configOrigins []string) []string {
	if env := os.Getenv(common.EnvCORSOrigins); env != "" {
		return splitOrDefault(env, []string{common.DefaultCORSOrigins})
	}
	if len(configOrigins) > 0 {
		return configOrigins
	}
	return []string{common.DefaultCORSOrigins}
}

func getStringFromEnvOrConfig(key, configValue, defaultValue string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs range validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if len(settings.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be specified")
	}

	if settings.ShapTimeout < 10*time.Millisecond || settings.ShapTimeout > time.Minute {
		return fmt.Errorf("SHAP timeout must be between 10ms and 1m, got %v", settings.ShapTimeout)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}

	switch settings.CacheBackend {
	case common.CacheBackendMemory:
		if settings.CacheSize <= 0 || settings.CacheSize > common.MaxCacheSize {
			return fmt.Errorf("cache size must be between 1 and %d, got %d", common.MaxCacheSize, settings.CacheSize)
		}
	case common.CacheBackendRedis:
		if settings.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis cache backend")
		}
	case common.CacheBackendNone:
	default:
		return fmt.Errorf("cache backend must be one of memory, redis, none, got %q", settings.CacheBackend)
	}
	if settings.CacheTTL < 0 || settings.CacheTTL > 24*time.Hour {
		return fmt.Errorf("cache TTL must be between 0 and 24h, got %v", settings.CacheTTL)
	}

	// A zero rate disables limiting
	if settings.RateLimitRPS < 0 || settings.RateLimitRPS > common.MaxRateLimitRPS {
		return fmt.Errorf("rate limit must be between 0 and %.0f requests/s, got %f", common.MaxRateLimitRPS, settings.RateLimitRPS)
	}
	if settings.RateLimitRPS > 0 && (settings.RateLimitBurst <= 0 || settings.RateLimitBurst > common.MaxRateLimitBurst) {
		return fmt.Errorf("rate limit burst must be between 1 and %d, got %d", common.MaxRateLimitBurst, settings.RateLimitBurst)
	}

	if settings.HistoryEnabled && settings.DataPath == "" {
		return fmt.Errorf("data path is required when prediction history is enabled")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
