package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

var (
	logFormat = envOr("LOG_FORMAT", "text")
	logLevel  = strings.ToLower(envOr("LOG_LEVEL", "info"))
)

// SetupSLog installs the default slog handler. Format and level come from the
// LOG_FORMAT and LOG_LEVEL environment variables; file paths in source attrs
// are shown relative to rootPath.
func SetupSLog(rootPath string) {
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		slog.Error("LOG_LEVEL must be one of: debug, info, warn, error")
		os.Exit(1)
	}

	ho := slog.HandlerOptions{
		Level: lvl,
	}

	var h slog.Handler
	switch logFormat {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &ho)
	case "text":
		h = slog.NewTextHandler(os.Stderr, &ho)
	default:
		slog.Error("LOG_FORMAT must be json or text")
		os.Exit(1)
	}

	slog.SetDefault(slog.New(&handler{
		baseHandler: h,
		rootPath:    strings.TrimSuffix(rootPath, "/") + "/",
	}))
}

type handler struct {
	baseHandler slog.Handler
	rootPath    string
}

func (e *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return e.baseHandler.Enabled(ctx, level)
}

func (e *handler) Handle(ctx context.Context, record slog.Record) error {
	record = record.Clone()

	hasSource := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == slog.SourceKey {
			hasSource = true
			return false
		}

		return true
	})

	if !hasSource && record.PC != 0 {
		record.AddAttrs(e.getSourceAttr(record.PC))
	}

	return e.baseHandler.Handle(ctx, record)
}

func (e *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{
		baseHandler: e.baseHandler.WithAttrs(attrs),
		rootPath:    e.rootPath,
	}
}

func (e *handler) WithGroup(name string) slog.Handler {
	return &handler{
		baseHandler: e.baseHandler.WithGroup(name),
		rootPath:    e.rootPath,
	}
}

func (e *handler) getSourceAttr(pc uintptr) slog.Attr {
	fs := runtime.CallersFrames([]uintptr{pc})
	f, _ := fs.Next()
	file := strings.TrimPrefix(f.File, e.rootPath)

	return slog.Any(slog.SourceKey, slog.Source{
		Function: f.Function,
		File:     file,
		Line:     f.Line,
	})
}
