package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// ANSI color codes
const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Gray    = "\033[90m"
)

// ColorHandler implements a colorized, masked text handler for slog
type ColorHandler struct {
	opts     *slog.HandlerOptions
	mu       *sync.Mutex
	writer   io.Writer
	attrs    []slog.Attr
	groups   []string
	useColor bool
}

// NewColorHandler creates a new color handler. Colors are only emitted when w is a terminal.
func NewColorHandler(w io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ColorHandler{
		opts:     opts,
		mu:       &sync.Mutex{},
		writer:   w,
		useColor: isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Enabled reports whether the handler handles records at the given level
func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle writes one line: time, level, component prefix, message, then the
// remaining attributes. The "component" attribute becomes a bracketed prefix.
func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	masker := GetGlobalMasker()

	attrs := make([]slog.Attr, 0, r.NumAttrs()+len(h.attrs))
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	var component string
	rest := attrs[:0:0]
	for _, a := range attrs {
		if a.Key == "component" {
			component = a.Value.String()
			continue
		}
		rest = append(rest, a)
	}

	var sb strings.Builder
	if !r.Time.IsZero() {
		sb.WriteString(h.colorize(Gray, r.Time.Format(time.RFC3339)))
		sb.WriteByte(' ')
	}
	sb.WriteString(h.formatLevel(r.Level))
	sb.WriteByte(' ')
	prefix := append([]string(nil), h.groups...)
	if component != "" {
		prefix = append([]string{component}, prefix...)
	}
	if len(prefix) > 0 {
		sb.WriteString(h.colorize(Cyan, "["+strings.Join(prefix, ".")+"]"))
		sb.WriteByte(' ')
	}
	sb.WriteString(h.colorize(White, masker.MaskString(r.Message)))

	for _, a := range rest {
		a = masker.MaskAttr(a)
		sb.WriteByte(' ')
		sb.WriteString(h.colorize(Cyan, a.Key))
		sb.WriteByte('=')
		sb.WriteString(h.formatValue(a.Key, a.Value))
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

func (h *ColorHandler) formatLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.colorize(Red, "[ERROR]")
	case level >= slog.LevelWarn:
		return h.colorize(Yellow, "[WARN ]")
	case level >= slog.LevelInfo:
		return h.colorize(Green, "[INFO ]")
	default:
		return h.colorize(Gray, "[DEBUG]")
	}
}

// stateColor maps task states to colors. Unknown states are left uncolored.
func stateColor(s string) (string, bool) {
	switch strings.ToUpper(s) {
	case "COMPLETE":
		return Green, true
	case "ERROR", "UNINITIALIZED":
		return Red, true
	case "QUEUED", "RUNNING":
		return Yellow, true
	}
	return "", false
}

// statusColor maps HTTP status codes by class.
func statusColor(code int64) string {
	switch {
	case code >= 500:
		return Red
	case code >= 400:
		return Yellow
	case code >= 200 && code < 300:
		return Green
	}
	return Magenta
}

func (h *ColorHandler) formatValue(key string, v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if c, ok := stateColor(s); ok && (key == "state" || key == "last_state") {
			return h.colorize(c, s)
		}
		if key == "error" {
			return h.colorize(Red, fmt.Sprintf("%q", s))
		}
		return h.colorize(White, fmt.Sprintf("%q", s))
	case slog.KindInt64:
		if key == "status" {
			return h.colorize(statusColor(v.Int64()), v.String())
		}
		return h.colorize(Magenta, v.String())
	case slog.KindUint64, slog.KindFloat64:
		return h.colorize(Magenta, v.String())
	case slog.KindBool:
		if v.Bool() {
			return h.colorize(Green, "true")
		}
		return h.colorize(Red, "false")
	case slog.KindDuration:
		return h.colorize(Yellow, v.Duration().Round(time.Millisecond).String())
	case slog.KindTime:
		return h.colorize(Gray, v.Time().Format(time.RFC3339))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return h.colorize(Red, fmt.Sprintf("%q", err.Error()))
		}
		return h.colorize(White, v.String())
	default:
		return h.colorize(White, v.String())
	}
}

func (h *ColorHandler) colorize(color, text string) string {
	if !h.useColor {
		return text
	}
	return color + text + Reset
}

// WithAttrs returns a new ColorHandler with the given attributes added
func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &c
}

// WithGroup returns a new ColorHandler with the given group name added
func (h *ColorHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.groups = append(append([]string{}, h.groups...), name)
	return &c
}

// SetColorEnabled forces colors on or off regardless of terminal detection
func (h *ColorHandler) SetColorEnabled(enabled bool) {
	h.useColor = enabled
}
