package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

type LogType string

const (
	TypeCommand LogType = "CMD"
	TypeDB      LogType = "DB"
	TypeSystem  LogType = "SYS"
	TypeError   LogType = "ERR"
	TypeOrder   LogType = "ORD"
	TypeRunner  LogType = "RUN"
	TypeKarma   LogType = "KRM"
	TypeHTTP    LogType = "WEB"
)

// Options configure the console handler.
type Options struct {
	Level     slog.Leveler
	AddSource bool
	NoColor   bool
}

type CustomHandler struct {
	opts   Options
	out    io.Writer
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewHandler(w io.Writer, opts Options) *CustomHandler {
	if w == nil {
		w = os.Stdout
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &CustomHandler{
		opts: opts,
		out:  w,
		mu:   &sync.Mutex{},
	}
}

// New picks the handler for format: "json" uses slog's JSON handler, anything
// else the colored console handler.
func New(w io.Writer, format string, opts Options) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource})
	}
	return NewHandler(w, opts)
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CustomHandler{opts: h.opts, out: h.out, mu: h.mu, attrs: merged, groups: h.groups}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &CustomHandler{opts: h.opts, out: h.out, mu: h.mu, attrs: h.attrs, groups: groups}
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	if shouldSkipLog(&r) {
		return nil
	}

	timestamp := r.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var levelColor, levelText string
	switch {
	case r.Level >= slog.LevelError:
		levelColor, levelText = colorRed, "ERROR"
	case r.Level >= slog.LevelWarn:
		levelColor, levelText = colorYellow, "WARN"
	case r.Level >= slog.LevelInfo:
		levelColor, levelText = colorGreen, "INFO"
	default:
		levelColor, levelText = colorPurple, "DEBUG"
	}

	fields := collect(h.attrs, &r)
	message := r.Message

	if r.Level >= slog.LevelError {
		location := fields["error_location"]
		if location == "" && h.opts.AddSource && r.PC != 0 {
			frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
			location = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
		if location != "" {
			message = fmt.Sprintf("%s (%s)", message, location)
		}
		if details := fields["error"]; details != "" {
			message = fmt.Sprintf("%s: %s", message, details)
		}
	}

	if name, user := fields["name"], fields["user_name"]; name != "" && user != "" {
		message = fmt.Sprintf("%s [%s by %s]", message, name, user)
	}
	if status := fields["status"]; status != "" {
		message = fmt.Sprintf("%s [Status: %s]", message, status)
	}
	if took := fields["took"]; took != "" {
		message = fmt.Sprintf("%s (took %s)", message, took)
	}

	var attrs strings.Builder
	prefix := strings.Join(h.groups, ".")
	appendAttr := func(a slog.Attr) {
		if isInternalAttr(a.Key) {
			return
		}
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		fmt.Fprintf(&attrs, " %s=%v", key, a.Value)
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})

	var line string
	if h.opts.NoColor {
		line = fmt.Sprintf("[karma-runner] [%s] [%s] [%s] %s%s\n",
			timestamp.Format("15:04:05"), levelText, logType(fields["type"]), message, attrs.String())
	} else {
		line = fmt.Sprintf("%s[karma-runner] [%s] [%s%s%s] [%s%s%s] %s%s%s\n",
			colorWhite,
			timestamp.Format("15:04:05"),
			levelColor, levelText, colorWhite,
			typeColor(logType(fields["type"])), logType(fields["type"]), colorWhite,
			message,
			attrs.String(),
			colorReset,
		)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

// disgo logs every gateway frame and rest bucket at debug level.
var skippedMessages = []string{
	"locking buckets",
	"unlocking buckets",
	"gateway event",
	"cleaning up bucket",
	"cleaned up rate limit buckets",
	"binary message received",
	"received gateway message",
	"opening gateway connection",
	"locking gateway rate limiter",
	"unlocking gateway rate limiter",
	"sending gateway command",
	"new request",
	"new response",
	"locking rest bucket",
	"unlocking rest bucket",
	"rate limit response headers",
	"sending heartbeat",
}

func shouldSkipLog(r *slog.Record) bool {
	msg := strings.ToLower(r.Message)
	for _, skip := range skippedMessages {
		if strings.Contains(msg, skip) {
			return true
		}
	}
	return false
}

func logType(t string) LogType {
	switch t {
	case "cmd", "component", "modal":
		return TypeCommand
	case "db":
		return TypeDB
	case "error":
		return TypeError
	case "order":
		return TypeOrder
	case "offer":
		return TypeRunner
	case "karma":
		return TypeKarma
	case "http":
		return TypeHTTP
	default:
		return TypeSystem
	}
}

func typeColor(t LogType) string {
	switch t {
	case TypeError:
		return colorRed
	case TypeDB:
		return colorBlue
	case TypeOrder, TypeRunner:
		return colorCyan
	case TypeKarma:
		return colorYellow
	default:
		return colorWhite
	}
}

func isInternalAttr(key string) bool {
	switch key {
	case "type", "name", "user_name", "status", "error", "error_location", "took":
		return true
	}
	return false
}

// collect flattens the attributes the header line is built from. Record
// attributes override handler attributes.
func collect(base []slog.Attr, r *slog.Record) map[string]string {
	fields := make(map[string]string, 8)
	set := func(a slog.Attr) {
		if isInternalAttr(a.Key) {
			fields[a.Key] = a.Value.Resolve().String()
		}
	}
	for _, a := range base {
		set(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		set(a)
		return true
	})
	return fields
}
