package config

// ConfigFileName is the configuration file looked up by FindConfig.
const ConfigFileName = "consteval.yaml"

// ConfigFileNameAlt is the alternative spelling also accepted by FindConfig.
const ConfigFileNameAlt = "consteval.yml"

// Evaluation limits
const (
	// DefaultMaxInstructions is the instruction budget of one top-level evaluation.
	DefaultMaxInstructions = 1_000_000
	// DefaultTimeoutGrace is how many further instructions may run after the
	// timeout exception was raised before the evaluation is aborted hard.
	DefaultTimeoutGrace = 10_000
	// DefaultMaxProxyDepth bounds nested evaluations started by builtins
	// (toString overrides, array initializers, enum values).
	DefaultMaxProxyDepth = 64
)

// Log levels accepted in the configuration file.
const (
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)
