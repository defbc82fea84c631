// Package logging provides categorized zap loggers for verdict. Everything
// goes to stderr so stdout stays free for the server protocol and JSON
// output. Initialize is called once from the command layer and never again.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem logger.
type Category string

const (
	CategoryPipeline Category = "pipeline"
	CategoryDiff     Category = "diff"
	CategoryAnalyzer Category = "analyzer"
	CategorySentinel Category = "sentinel"
	CategoryStore    Category = "store"
	CategoryServer   Category = "server"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Initialize builds the process-wide logger. When verbose is true the level
// drops to debug, otherwise warn. Safe to call once at startup.
func Initialize(verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

// Get returns the logger for a category.
func Get(c Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Sugar().Named(string(c))
}

// Sync flushes buffered log entries. Called once on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
