package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"dubsync/internal/config"
)

// LogFileName is the file NewFromConfig appends to inside the log directory.
const LogFileName = "dubsync.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives every line; nil means stderr so stdout stays free for
	// command results.
	Console io.Writer
	// FilePath, when set, also appends every line to that file.
	FilePath string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	addSource := level.Level() <= slog.LevelDebug

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	if path := strings.TrimSpace(opts.FilePath); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		out = io.MultiWriter(out, file)
	}

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(&dubHandler{shared: &sharedWriter{w: out}, level: level, addSource: addSource}), nil
	case "json":
		return slog.New(newJSONHandler(out, level, addSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig builds the run logger: console lines on stderr plus an
// append-only copy under the configured log directory.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	opts := Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if cfg.Paths.LogDir != "" {
		opts.FilePath = filepath.Join(cfg.Paths.LogDir, LogFileName)
	}
	return New(opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newJSONHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(filepath.Base(src.File) + ":" + strconv.Itoa(src.Line))
				}
			}
			return attr
		},
	})
}

type sharedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sharedWriter) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

// dubHandler renders one line per record:
//
//	15:04:05.000 WARN  overlay [compose] seg s0007: segment truncated run=3f2a9c1e reason=...
//
// component, stage and the segment label are lifted out of the key/value
// tail and run_id is shortened to eight characters.
type dubHandler struct {
	shared    *sharedWriter
	level     slog.Leveler
	addSource bool
	attrs     []slog.Attr
	group     string
}

func (h *dubHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *dubHandler) Handle(_ context.Context, record slog.Record) error {
	var head lineHead
	tail := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	collect := func(prefix string, a slog.Attr) {
		if head.absorb(a) {
			return
		}
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		tail = append(tail, a)
	}
	for _, a := range h.attrs {
		collect("", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		collect(h.group, a)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var buf bytes.Buffer
	buf.WriteString(ts.Format("15:04:05.000"))
	buf.WriteByte(' ')
	buf.WriteString(fmt.Sprintf("%-5s", levelLabel(record.Level)))
	head.writeTo(&buf)
	buf.WriteString(strings.TrimSpace(record.Message))

	if h.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(frame.File), frame.Line)
	}
	if head.runID != "" {
		buf.WriteString(" run=")
		buf.WriteString(head.runID)
	}
	for _, a := range tail {
		writeAttr(&buf, "", a)
	}
	buf.WriteByte('\n')
	return h.shared.write(buf.Bytes())
}

func (h *dubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" && !isHeadKey(a.Key) {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *dubHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		name = clone.group + "." + name
	}
	clone.group = name
	return &clone
}

// lineHead holds the fields promoted into the line prefix.
type lineHead struct {
	component string
	stage     string
	segment   string
	segIndex  string
	runID     string
}

func isHeadKey(key string) bool {
	switch key {
	case FieldComponent, FieldStage, FieldSegmentID, FieldSegmentIndex, FieldRunID:
		return true
	}
	return false
}

// absorb reports whether a was consumed into the prefix. The last value wins
// so a record attr overrides a logger-level one.
func (l *lineHead) absorb(a slog.Attr) bool {
	if !isHeadKey(a.Key) {
		return false
	}
	v := plain(a.Value)
	switch a.Key {
	case FieldComponent:
		l.component = v
	case FieldStage:
		l.stage = v
	case FieldSegmentID:
		l.segment = v
	case FieldSegmentIndex:
		l.segIndex = v
	case FieldRunID:
		if len(v) > 8 {
			v = v[:8]
		}
		l.runID = v
	}
	return true
}

func (l lineHead) writeTo(buf *bytes.Buffer) {
	buf.WriteByte(' ')
	if l.component != "" {
		buf.WriteString(l.component)
		buf.WriteByte(' ')
	}
	if l.stage != "" {
		buf.WriteString("[" + l.stage + "] ")
	}
	switch {
	case l.segment != "":
		buf.WriteString("seg " + l.segment)
	case l.segIndex != "":
		buf.WriteString("seg #" + l.segIndex)
	}
	if l.component != "" || l.stage != "" || l.segment != "" || l.segIndex != "" {
		trimTrailingSpace(buf)
		buf.WriteString(": ")
	}
}

func trimTrailingSpace(buf *bytes.Buffer) {
	for buf.Len() > 0 && buf.Bytes()[buf.Len()-1] == ' ' {
		buf.Truncate(buf.Len() - 1)
	}
}

func writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		for _, inner := range a.Value.Group() {
			writeAttr(buf, key, inner)
		}
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(key)
	buf.WriteByte('=')
	s := plain(a.Value)
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		s = strconv.Quote(s)
	}
	buf.WriteString(s)
}

func plain(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
