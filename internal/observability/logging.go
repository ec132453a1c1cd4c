package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures structured logging for the runtime.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn",
	// "error".
	Level string

	// Format selects the handler: "json" or "text". JSON for
	// production, text for development.
	Format string

	// Output is the log writer (defaults to os.Stdout).
	Output io.Writer

	// AddSource includes file and line in records.
	AddSource bool

	// RedactPatterns are additional regexes for sensitive values.
	// The defaults already cover common API key and token shapes.
	RedactPatterns []string
}

var defaultRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[-_]?key|token|secret|password|authorization)["'\s:=]+[\w\-./+]{8,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`Bearer\s+[\w\-.~+/]+`),
}

// NewLogger builds a slog.Logger with level filtering and sensitive
// value redaction on string attributes.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	redacts := append([]*regexp.Regexp(nil), defaultRedactPatterns...)
	for _, pattern := range cfg.RedactPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(redact(a.Value.String(), redacts))
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redact(s string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
