package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents a log severity level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase name of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel parses a level name, defaulting to info for unknown input
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures a Logger
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Output string // "stdout", "stderr", or a file path
}

// Logger writes structured JSON log entries
type Logger struct {
	output io.Writer
	level  Level
	mu     sync.Mutex
}

// Entry is a single structured log record
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// ConnLog is a per-connection log record
type ConnLog struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	LocalAddr string    `json:"local_addr,omitempty"`
	PeerAddr  string    `json:"peer_addr,omitempty"`
	Scheme    string    `json:"scheme,omitempty"`
	Country   string    `json:"country,omitempty"`
	Error     string    `json:"error,omitempty"`
	Duration  float64   `json:"duration_ms,omitempty"`
}

// New creates a logger from configuration
func New(cfg Config) (*Logger, error) {
	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}

	return &Logger{
		output: out,
		level:  ParseLevel(cfg.Level),
	}, nil
}

// Debug logs a message at debug level
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.log(LevelDebug, msg, fields)
}

// Info logs a message at info level
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.log(LevelInfo, msg, fields)
}

// Warn logs a message at warn level
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.log(LevelWarn, msg, fields)
}

// Error logs a message at error level
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.log(LevelError, msg, fields)
}

// LogConn writes a per-connection record, bypassing level filtering
func (l *Logger) LogConn(c ConnLog) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	l.write(c)
}

func (l *Logger) log(level Level, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		Fields:    fields,
	})
}

func (l *Logger) write(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write(append(data, '\n'))
}
