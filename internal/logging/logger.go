// Package logging provides the process-wide zap logger with per-component
// named sub-loggers. Components fetch their logger once at construction.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aide/internal/config"
)

// Component names used across the core. Named loggers keep log lines
// attributable without a custom category system.
const (
	ComponentBoot      = "boot"
	ComponentRouter    = "router"
	ComponentBroker    = "broker"
	ComponentCosts     = "costs"
	ComponentStore     = "store"
	ComponentMemory    = "memory"
	ComponentScheduler = "scheduler"
	ComponentQueue     = "queue"
	ComponentSkills    = "skills"
	ComponentTrust     = "trust"
	ComponentRPC       = "skillrpc"
	ComponentTransport = "transport"
	ComponentOrch      = "orchestrator"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Initialize builds the root logger from config. Call once at startup;
// before initialization all loggers are no-ops, which keeps tests quiet.
func Initialize(cfg config.LoggingConfig) error {
	var zc zap.Config
	if cfg.Development || cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

// Named returns a component-scoped logger.
func Named(component string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(component)
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// SetLogger replaces the root logger. Tests use this to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}
