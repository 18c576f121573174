package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/zimshelf/zim-library/internal/config"
)

// logEnv reads ZIM_LIBRARY_<key>, then the unprefixed <key>
func logEnv(key string) string {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	if s := v.GetString(key); s != "" {
		return s
	}
	return os.Getenv(key)
}

// getLogLevel resolves LOG_LEVEL. Anything slog understands is accepted,
// including offsets such as "debug+2"; unknown values fall back to info.
func getLogLevel() slog.Level {
	raw := strings.TrimSpace(logEnv("LOG_LEVEL"))
	if raw == "" {
		return slog.LevelInfo
	}
	if strings.EqualFold(raw, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", raw)
		return slog.LevelInfo
	}
	return level
}

// newLogger builds the process logger. LOG_FORMAT=text switches from JSON to
// the human readable handler for local runs.
func newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: getLogLevel()}

	var base slog.Handler
	if strings.EqualFold(logEnv("LOG_FORMAT"), "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(&traceHandler{Handler: base})
}

func setupLogging(w io.Writer) {
	slog.SetDefault(newLogger(w))
}

// traceHandler stamps records logged inside a span with its trace and span
// ids so logs can be joined with traces.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}
