package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultHistorySize is the number of recent records kept for GET /api/logs.
const DefaultHistorySize = 500

// Logger is satisfied by *slog.Logger. Constructors accept it so callers
// can pass any structured logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config selects the global level, output format and per-module levels.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var (
	mutex       sync.RWMutex
	modules     = make(map[string]*moduleLogger)
	config      Config
	initialized bool
	history     = NewHistory(DefaultHistorySize)
)

// Initialize applies cfg to every module logger, existing and future, and
// installs the default slog logger. It may be called again to reconfigure.
func Initialize(cfg Config) {
	mutex.Lock()
	defer mutex.Unlock()

	config = cfg
	initialized = true

	for name, m := range modules {
		m.level.Set(levelFor(name))
		m.logger = newModuleLogger(name, m.level)
	}

	global := &slog.LevelVar{}
	global.Set(levelFor(""))
	slog.SetDefault(slog.New(createHandler(cfg.Format, global)))
}

// GetLogger returns the logger for a module. Loggers obtained before
// Initialize pick up level changes when it runs.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if m, ok := modules[module]; ok {
		logger := m.logger
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()
	if m, ok := modules[module]; ok {
		return m.logger
	}

	level := &slog.LevelVar{}
	level.Set(levelFor(module))
	m := &moduleLogger{level: level, logger: newModuleLogger(module, level)}
	modules[module] = m
	return m.logger
}

// SetLevel changes a module's level at runtime. It reports false for an
// unknown level name.
func SetLevel(module, level string) bool {
	parsed, ok := parseLevel(level)
	if !ok {
		return false
	}
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	modules[module].level.Set(parsed)
	if config.Modules == nil {
		config.Modules = make(map[string]string)
	}
	config.Modules[module] = level
	return true
}

// Levels returns the effective level of every module logger.
func Levels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()
	levels := make(map[string]string, len(modules))
	for name, m := range modules {
		levels[name] = strings.ToLower(m.level.Level().String())
	}
	return levels
}

// Recent returns up to n of the most recent log records, oldest first.
// n <= 0 returns everything retained.
func Recent(n int) []Entry {
	return history.Last(n)
}

// levelFor returns the configured level of a module. Callers hold mutex.
func levelFor(module string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	if s, ok := config.Modules[module]; ok {
		if level, ok := parseLevel(s); ok {
			return level
		}
	}
	if level, ok := parseLevel(config.Level); ok {
		return level
	}
	return slog.LevelInfo
}

func newModuleLogger(module string, level slog.Leveler) *slog.Logger {
	format := "text"
	if initialized {
		format = config.Format
	}
	return slog.New(createHandler(format, level)).With("module", module)
}

// createHandler writes to stdout when it is connected, to the journal when
// journald is running, and always into the in-memory history.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewHistoryHandler(history, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable reports whether stdout goes to a terminal, pipe, socket
// or regular file rather than a device such as /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
