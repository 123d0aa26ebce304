package config

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// DefaultLogLevel is used when no level is configured
const DefaultLogLevel = "info"

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// DeliveryMode selects how stats windows are handed to the telemetry sink
type DeliveryMode string

const (
	// DeliveryBestEffort publishes fire-and-forget; consumed samples are
	// retired whether or not the publish succeeded.
	DeliveryBestEffort DeliveryMode = "best_effort"

	// DeliveryAtLeastOnce blocks until the sink acknowledges; on failure the
	// samples are kept and retried next cycle.
	DeliveryAtLeastOnce DeliveryMode = "at_least_once"
)

// IsValid returns whether the delivery mode is valid
func (d DeliveryMode) IsValid() bool {
	switch d {
	case DeliveryBestEffort, DeliveryAtLeastOnce:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (d DeliveryMode) String() string {
	return string(d)
}
