// Package logging provides categorized structured logging for cogmux.
// All categories share one rotated JSON log file; each subsystem gets a
// named child logger so entries can be filtered by category after the fact.
// Before Init is called every category resolves to a no-op logger, which
// keeps tests and library consumers quiet by default.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category identifies a cogmux subsystem in log output.
type Category string

const (
	CategoryDispatch  Category = "dispatch"  // Engine selection and switching decisions
	CategoryModes     Category = "modes"     // Mode plugin activity
	CategorySession   Category = "session"   // Session lifecycle and reaping
	CategoryStore     Category = "store"     // SQLite persistence
	CategoryAnalytics Category = "analytics" // Usage tracking and event fan-out
	CategoryConfig    Category = "config"    // Config load, save, hot reload
	CategoryUI        Category = "ui"        // CLI and chat TUI
)

// Options controls where and how much cogmux logs.
type Options struct {
	// Dir is the directory for the rotated log file. Required.
	Dir string
	// Level is the minimum level written to the file: debug, info, warn, error.
	Level string
	// Console mirrors entries to stderr at debug level. Off by default so
	// the chat TUI owns the terminal.
	Console bool

	// Rotation knobs. Zero values fall back to the defaults below.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 5
	defaultMaxAgeDays = 30
)

var (
	mu     sync.RWMutex
	active bool

	root   = zap.NewNop()
	byName = make(map[Category]*zap.Logger)
)

// Init builds the shared logger. Safe to call more than once; the most
// recent call wins.
func Init(opts Options) error {
	if opts.Dir == "" {
		return fmt.Errorf("logging: log directory required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log dir: %w", err)
	}

	level := zap.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("logging: bad level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = defaultMaxSizeMB
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = defaultMaxBackups
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = defaultMaxAgeDays
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, "cogmux.log"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	fileCore := zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level)
	core := zapcore.Core(fileCore)
	if opts.Console {
		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			zap.DebugLevel,
		)
		core = zapcore.NewTee(fileCore, consoleCore)
	}

	logger := zap.New(core, zap.AddCaller())

	mu.Lock()
	defer mu.Unlock()
	root = logger
	byName = make(map[Category]*zap.Logger)
	active = true
	return nil
}

// Get returns the named logger for a category. Loggers are cached per
// category; callers may hold the result for the life of the process.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := byName[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := byName[cat]; ok {
		return l
	}
	l := root.Named(string(cat))
	byName[cat] = l
	return l
}

// L returns the root logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Enabled reports whether Init has run.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Sync flushes buffered entries. Call before process exit.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return root.Sync()
}
