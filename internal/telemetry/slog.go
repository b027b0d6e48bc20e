package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger builds a slog handler from the logging.format and logging.level
// config values and installs it as the process default, so plain
// slog.Info/Warn/Error calls anywhere in the codebase route through it
// without a *slog.Logger being threaded around.
//
// "json" selects the JSONHandler for production log pipelines; any other
// format value falls back to the human-readable TextHandler. Levels are
// matched case-insensitively with "info" as the fallback. Source locations
// are attached only at debug level.
func SetupLogger(format, level string) {
	lvl := parseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
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
