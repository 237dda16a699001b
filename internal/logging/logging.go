// Package logging builds the zap loggers used across ddi-assistant: the
// application log (stderr plus a JSON file) and the separate security
// audit trail.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects log level and destinations.
type Config struct {
	Level         string // DEBUG, INFO, WARNING, ERROR, CRITICAL
	Dir           string
	File          string
	SecurityAudit bool

	// Console receives human-readable output. Defaults to os.Stderr so
	// that stdout stays reserved for the MCP stdio transport.
	Console io.Writer
}

// Loggers bundles the application and audit loggers with their cleanup.
type Loggers struct {
	App   *zap.Logger
	Audit *AuditLogger
	close []func() error
}

// Sync flushes and closes every sink.
func (l *Loggers) Sync() {
	_ = l.App.Sync()
	l.Audit.Sync()
	for _, fn := range l.close {
		_ = fn()
	}
}

// ParseLevel maps the settings level names to zap levels. CRITICAL maps to
// DPanic, the highest level that does not terminate the process.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO", "":
		return zapcore.InfoLevel, nil
	case "WARNING", "WARN":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	case "CRITICAL":
		return zapcore.DPanicLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New creates the application and audit loggers. The console core logs at
// INFO or above (or the configured level if higher); the file core logs
// at the configured level.
func New(cfg Config) (*Loggers, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	consoleLevel := level
	if consoleLevel < zapcore.InfoLevel {
		consoleLevel = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEnc := zap.NewDevelopmentEncoderConfig()
	consoleEnc.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.AddSync(console), consoleLevel),
	}

	loggers := &Loggers{}
	if cfg.Dir != "" && cfg.File != "" {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		sink, closeFn, err := zap.Open(filepath.Join(cfg.Dir, cfg.File))
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		loggers.close = append(loggers.close, func() error { closeFn(); return nil })
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level))
	}

	loggers.App = zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	loggers.Audit = NewAuditLogger(zap.NewNop())
	if cfg.SecurityAudit && cfg.Dir != "" {
		sink, closeFn, err := zap.Open(filepath.Join(cfg.Dir, "security_audit.log"))
		if err != nil {
			loggers.Sync()
			return nil, fmt.Errorf("failed to open security audit log: %w", err)
		}
		loggers.close = append(loggers.close, func() error { closeFn(); return nil })
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, zapcore.InfoLevel)
		loggers.Audit = NewAuditLogger(zap.New(core).Named("security"))
	}

	loggers.App.Debug("logging initialized",
		zap.String("level", level.CapitalString()),
		zap.String("dir", cfg.Dir),
		zap.Bool("security_audit", cfg.SecurityAudit))
	return loggers, nil
}

// Nop returns loggers that discard everything. Used by tests and by
// commands that run before settings are available.
func Nop() *Loggers {
	return &Loggers{App: zap.NewNop(), Audit: NewAuditLogger(zap.NewNop())}
}
