package xlog

const (
	colorReset   = "\033[0m"
	colorTrace   = "\033[0;36m"
	colorDebug   = "\033[1;36m"
	colorWarning = "\033[1;33m"
	colorError   = "\033[1;31m"
)

// colorFor returns the escape codes wrapping a line of the given zap level.
// info stays uncolored.
func colorFor(level string) (string, string) {
	switch level {
	case "trace":
		return colorTrace, colorReset
	case "debug":
		return colorDebug, colorReset
	case "warn", "warning":
		return colorWarning, colorReset
	case "error", "dpanic", "panic", "fatal":
		return colorError, colorReset
	}
	return "", ""
}
