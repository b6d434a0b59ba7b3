package common

// Service identity
const (
	ServiceName    = "Legendary Pokémon Classifier API"
	ServiceVersion = "1.0.0"
	TracerName     = "legendary-classifier"
)

// Environment variable keys
const (
	EnvConfigFile            = "CONFIG_FILE"
	EnvModelPath             = "MODEL_PATH"
	EnvScalerPath            = "SCALER_PATH"
	EnvFeatureImportancePath = "FEATURE_IMPORTANCE_PATH"
	EnvTrainingDataPath      = "TRAINING_DATA_PATH"
	EnvBackgroundDataPath    = "BACKGROUND_DATA_PATH"
	EnvDataPath              = "DATA_PATH"
	EnvPort                  = "PORT"
	EnvCORSOrigins           = "CORS_ORIGINS"
	EnvShapEnabled           = "SHAP_ENABLED"
	EnvShapTimeout           = "SHAP_TIMEOUT"
	EnvCacheBackend          = "CACHE_BACKEND"
	EnvCacheSize             = "CACHE_SIZE"
	EnvCacheTTL              = "CACHE_TTL"
	EnvRedisAddr             = "REDIS_ADDR"
	EnvRateLimitRPS          = "RATE_LIMIT_RPS"
	EnvRateLimitBurst        = "RATE_LIMIT_BURST"
	EnvLogLevel              = "LOG_LEVEL"
	EnvOTLPEndpoint          = "OTLP_ENDPOINT"
	EnvHistoryEnabled        = "HISTORY_ENABLED"
	EnvRequestTimeout        = "REQUEST_TIMEOUT"
)

// Configuration defaults
const (
	DefaultModelPath             = "models/legendary_classifier_v1.json"
	DefaultScalerPath            = "models/scaler.json"
	DefaultFeatureImportancePath = "models/feature_importance.json"
	DefaultTrainingDataPath      = "models/training_data.csv"
	DefaultBackgroundDataPath    = "models/background_data.csv"
	DefaultDataPath              = "data"
	DefaultPort                  = 8000
	DefaultCORSOrigins           = "*"
	DefaultCacheBackend          = CacheBackendMemory
	DefaultCacheSize             = 1024
	DefaultRedisAddr             = "localhost:6379"
	DefaultRateLimitRPS          = 50.0
	DefaultRateLimitBurst        = 100
	DefaultLogLevel              = "info"
	DefaultSimilarLimit          = 5
	DefaultHistoryLimit          = 20
	MaxHistoryLimit              = 200
)

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// Validation constants
const (
	MinPort           = 1024
	MaxPort           = 65535
	MaxCacheSize      = 1_000_000
	MaxRateLimitRPS   = 10_000.0
	MaxRateLimitBurst = 100_000
)

// Common error messages
const (
	ErrMsgModelNotLoaded          = "Model not loaded"
	ErrMsgImportanceUnavailable   = "Feature importance not available"
	ErrMsgTrainingDataUnavailable = "Training data not available"
	ErrMsgHistoryUnavailable      = "Prediction history not enabled"
	ErrMsgRateLimited             = "Rate limit exceeded"
)
