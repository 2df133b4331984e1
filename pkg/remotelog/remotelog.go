package remotelog

import (
	"sync"
	"time"
)

// Standard level names. Any other string is accepted by Log as well.
const (
	LevelEmergency = "emergency"
	LevelAlert     = "alert"
	LevelCritical  = "critical"
	LevelError     = "error"
	LevelWarning   = "warning"
	LevelNotice    = "notice"
	LevelInfo      = "info"
	LevelDebug     = "debug"
)

// Entry is a single log record produced on the remote side.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp float64        `json:"timestamp"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
}

// Time converts the entry timestamp back to wall-clock time.
func (e Entry) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Logger collects entries in production order. It never persists anything.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
	sink    func(Entry)
}

// Option customises a Logger.
type Option func(*Logger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSink registers a function called with every entry as it is logged.
func WithSink(sink func(Entry)) Option {
	return func(l *Logger) {
		l.sink = sink
	}
}

// New returns an empty Logger.
func New(opts ...Option) *Logger {
	l := &Logger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log appends an entry at the given level. The level is an open string.
func (l *Logger) Log(level, message string, context map[string]any) {
	if context == nil {
		context = map[string]any{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now()
	entry := Entry{
		Level:     level,
		Timestamp: float64(ts.UnixNano()) / 1e9,
		Message:   message,
		Context:   context,
	}
	l.entries = append(l.entries, entry)
	if l.sink != nil {
		l.sink(entry)
	}
}

func (l *Logger) Emergency(message string, context map[string]any) {
	l.Log(LevelEmergency, message, context)
}

func (l *Logger) Alert(message string, context map[string]any) {
	l.Log(LevelAlert, message, context)
}

func (l *Logger) Critical(message string, context map[string]any) {
	l.Log(LevelCritical, message, context)
}

func (l *Logger) Error(message string, context map[string]any) {
	l.Log(LevelError, message, context)
}

func (l *Logger) Warning(message string, context map[string]any) {
	l.Log(LevelWarning, message, context)
}

func (l *Logger) Notice(message string, context map[string]any) {
	l.Log(LevelNotice, message, context)
}

func (l *Logger) Info(message string, context map[string]any) {
	l.Log(LevelInfo, message, context)
}

func (l *Logger) Debug(message string, context map[string]any) {
	l.Log(LevelDebug, message, context)
}

// Entries returns a copy of all entries in the order they were logged.
func (l *Logger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of entries logged so far.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
