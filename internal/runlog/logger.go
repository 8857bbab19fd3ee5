// Package runlog writes the per-run log file and drives the terminal
// progress bar.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	fileNameLayout  = "20060102_150405"
)

// Options control where run logs go
type Options struct {
	Dir   string
	Level zerolog.Level
	Echo  bool      // Also write to stdout
	Start time.Time // Names the log file; zero means now
}

// Logger is the run-scoped logger and the file behind it
type Logger struct {
	zerolog.Logger
	Path string

	file *lumberjack.Logger
}

// New opens consultation_<timestamp>.log under opts.Dir
func New(opts Options) (*Logger, error) {
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	path := filepath.Join(opts.Dir, FileName(opts.Start))
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
	}

	var out io.Writer = file
	if opts.Echo {
		out = io.MultiWriter(file, os.Stdout)
	}

	return &Logger{
		Logger: NewWithWriter(out, opts.Level),
		Path:   path,
		file:   file,
	}, nil
}

// FileName is the log file name for a run started at t
func FileName(t time.Time) string {
	return "consultation_" + t.Format(fileNameLayout) + ".log"
}

// NewWithWriter returns a logger that renders "[timestamp] message
// key=value" lines to w
func NewWithWriter(w io.Writer, level zerolog.Level) zerolog.Logger {
	console := zerolog.ConsoleWriter{
		Out:     w,
		NoColor: true,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
		FormatTimestamp: formatTimestamp,
		FormatLevel:     formatLevel,
	}
	return zerolog.New(console).With().Timestamp().Logger().Level(level)
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func formatTimestamp(i interface{}) string {
	s, ok := i.(string)
	if !ok {
		return fmt.Sprintf("[%v]", i)
	}
	t, err := time.Parse(zerolog.TimeFieldFormat, s)
	if err != nil {
		return "[" + s + "]"
	}
	return "[" + t.Local().Format(timestampLayout) + "]"
}

// formatLevel leaves info lines unmarked
func formatLevel(i interface{}) string {
	lvl, _ := i.(string)
	switch lvl {
	case "", zerolog.LevelInfoValue:
		return ""
	default:
		return strings.ToUpper(lvl) + ":"
	}
}
