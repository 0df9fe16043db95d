package common

// Environment variable keys
const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvModelPath         = "MODEL_PATH"
	EnvDataPath          = "DATA_PATH"
	EnvHTTPPort          = "HTTP_PORT"
	EnvDecisionThreshold = "DECISION_THRESHOLD"
	EnvRiskBands         = "RISK_BANDS"
	EnvMaxConcurrency    = "MAX_CONCURRENCY"
	EnvPermutations      = "ATTRIBUTION_PERMUTATIONS"
	EnvBackgroundLimit   = "ATTRIBUTION_BACKGROUND_LIMIT"
	EnvAttributionSeed   = "ATTRIBUTION_SEED"
	EnvReportRowLimit    = "REPORT_ROW_LIMIT"
	EnvMaxUploadBytes    = "MAX_UPLOAD_BYTES"
	EnvRequestTimeout    = "REQUEST_TIMEOUT"
	EnvShutdownTimeout   = "SHUTDOWN_TIMEOUT"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
	EnvAPIVersion        = "API_VERSION"
	EnvServerURL         = "HEART_RISK_URL"
)

// Configuration defaults
const (
	DefaultModelPath         = "models/heart_model.json"
	DefaultHTTPPort          = 8080
	DefaultDecisionThreshold = 0.5
	DefaultRiskBands         = "LOW:0,MODERATE:0.3,HIGH:0.6"
	DefaultMaxConcurrency    = 4
	DefaultPermutations      = 8
	DefaultBackgroundLimit   = 0 // all rows in the artifact
	DefaultAttributionSeed   = 42
	DefaultReportRowLimit    = 50
	DefaultMaxUploadBytes    = 16 << 20 // 16 MiB
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
	DefaultAPIVersion        = "1.0.0"
	DefaultServerURL         = "http://localhost:8080"
	DefaultRecentPredictions = 10
)

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Validation constants
const (
	MinHTTPPort       = 1024
	MaxHTTPPort       = 65535
	MaxConcurrency    = 256
	MaxPermutations   = 1024
	MaxReportRowLimit = 10000
	MinMaxUploadBytes = 1 << 10
	MaxMaxUploadBytes = 256 << 20
)
