// Package logging provides categorized logging for the synthesis pipeline.
// Every category logs through the process zap logger; when a log directory is
// configured each enabled category additionally writes to
// <dir>/<date>_<category>.log.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup, config, wiring
	CategoryAPI         Category = "api"         // LLM gateway calls
	CategoryGenerate    Category = "generate"    // Candidate generation loop
	CategoryVerify      Category = "verify"      // Verification stage
	CategorySandbox     Category = "sandbox"     // Sandbox backends
	CategoryDataset     Category = "dataset"     // Formatting, repair, validation
	CategoryQueue       Category = "queue"       // Job submission
	CategoryExperiments Category = "experiments" // Hyper-parameter grid
	CategoryStore       Category = "store"       // Run ledger
)

// Config controls category filtering and file output.
type Config struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	Dir        string          `yaml:"dir"`    // empty disables file output
	Categories map[string]bool `yaml:"categories"`
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	config  Config
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggers = make(map[Category]*zap.SugaredLogger)
	files   []*os.File
)

// Initialize installs the console logger and, if cfg.Dir is set, prepares
// per-category log files. It may be called again to reconfigure.
func Initialize(console *zap.Logger, cfg Config) error {
	CloseAll()

	mu.Lock()
	defer mu.Unlock()

	if console == nil {
		console = zap.NewNop()
	}
	base = console
	config = cfg
	level.SetLevel(parseLevel(cfg.Level))

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsCategoryEnabled reports whether a category produces output. With no
// category filter configured every category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if len(config.Categories) == 0 {
		return true
	}
	enabled, ok := config.Categories[string(category)]
	return !ok || enabled
}

// Get returns the logger for a category, creating its file sink on first use.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	if !categoryEnabledLocked(category) {
		l := zap.NewNop().Sugar()
		loggers[category] = l
		return l
	}

	logger := base.Named(string(category))
	if config.Dir != "" {
		if core, err := fileCoreLocked(category); err != nil {
			fmt.Fprintf(os.Stderr, "[logging] Warning: %v\n", err)
		} else {
			logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
				return zapcore.NewTee(c, core)
			}))
		}
	}

	l := logger.Sugar()
	loggers[category] = l
	return l
}

func fileCoreLocked(category Category) (zapcore.Core, error) {
	date := time.Now().Format("2006-01-02")
	path := filepath.Join(config.Dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file %s: %w", path, err)
	}
	files = append(files, file)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if config.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(file), level), nil
}

// CloseAll flushes and closes every category file and drops cached loggers.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()

	for _, l := range loggers {
		_ = l.Sync()
	}
	for _, f := range files {
		_ = f.Close()
	}
	files = nil
	loggers = make(map[Category]*zap.SugaredLogger)
}

// =============================================================================
// CATEGORY HELPERS
// =============================================================================

func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Infof(format, args...)
}

func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debugf(format, args...)
}

func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warnf(format, args...)
}

func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Errorf(format, args...)
}

func API(format string, args ...interface{}) {
	Get(CategoryAPI).Infof(format, args...)
}

func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debugf(format, args...)
}

func APIWarn(format string, args ...interface{}) {
	Get(CategoryAPI).Warnf(format, args...)
}

func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Errorf(format, args...)
}

func Generate(format string, args ...interface{}) {
	Get(CategoryGenerate).Infof(format, args...)
}

func GenerateDebug(format string, args ...interface{}) {
	Get(CategoryGenerate).Debugf(format, args...)
}

func GenerateWarn(format string, args ...interface{}) {
	Get(CategoryGenerate).Warnf(format, args...)
}

func GenerateError(format string, args ...interface{}) {
	Get(CategoryGenerate).Errorf(format, args...)
}

func Verify(format string, args ...interface{}) {
	Get(CategoryVerify).Infof(format, args...)
}

func VerifyDebug(format string, args ...interface{}) {
	Get(CategoryVerify).Debugf(format, args...)
}

func VerifyWarn(format string, args ...interface{}) {
	Get(CategoryVerify).Warnf(format, args...)
}

func VerifyError(format string, args ...interface{}) {
	Get(CategoryVerify).Errorf(format, args...)
}

func Sandbox(format string, args ...interface{}) {
	Get(CategorySandbox).Infof(format, args...)
}

func SandboxDebug(format string, args ...interface{}) {
	Get(CategorySandbox).Debugf(format, args...)
}

func SandboxWarn(format string, args ...interface{}) {
	Get(CategorySandbox).Warnf(format, args...)
}

func SandboxError(format string, args ...interface{}) {
	Get(CategorySandbox).Errorf(format, args...)
}

func Dataset(format string, args ...interface{}) {
	Get(CategoryDataset).Infof(format, args...)
}

func DatasetDebug(format string, args ...interface{}) {
	Get(CategoryDataset).Debugf(format, args...)
}

func DatasetWarn(format string, args ...interface{}) {
	Get(CategoryDataset).Warnf(format, args...)
}

func Queue(format string, args ...interface{}) {
	Get(CategoryQueue).Infof(format, args...)
}

func QueueError(format string, args ...interface{}) {
	Get(CategoryQueue).Errorf(format, args...)
}

func Experiments(format string, args ...interface{}) {
	Get(CategoryExperiments).Infof(format, args...)
}

func ExperimentsWarn(format string, args ...interface{}) {
	Get(CategoryExperiments).Warnf(format, args...)
}

func Store(format string, args ...interface{}) {
	Get(CategoryStore).Infof(format, args...)
}

func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debugf(format, args...)
}

func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warnf(format, args...)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Infof("%s completed in %v", t.op, elapsed)
	return elapsed
}
