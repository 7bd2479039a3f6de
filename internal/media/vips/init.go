package vips

import (
	"fmt"
	"sync"

	"gallery-pipeline/internal/logging"

	govips "github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// Init starts libvips once per process. govips cannot restart libvips after
// Shutdown, so calls after a Shutdown return an error.
func Init(concurrency int) (err error) {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsAvailable {
		return nil
	}
	if vipsInitialized {
		return fmt.Errorf("libvips was shut down and cannot be restarted")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libvips startup failed: %v", r)
		}
	}()

	// Logging must be configured before Startup to take effect.
	govips.LoggingSettings(logHandler(logging.GetLevel()))

	govips.Startup(&govips.Config{
		ConcurrencyLevel: max(concurrency, 1),
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", govips.Version)
	return nil
}

// logHandler maps the application log level onto libvips' own verbosity and
// routes its messages through the logging package.
func logHandler(level logging.LogLevel) (func(string, govips.LogLevel, string), govips.LogLevel) {
	switch level {
	case logging.LevelDebug:
		return func(domain string, l govips.LogLevel, msg string) {
			switch l {
			case govips.LogLevelError, govips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case govips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}, govips.LogLevelInfo
	case logging.LevelInfo:
		return func(domain string, l govips.LogLevel, msg string) {
			switch l {
			case govips.LogLevelError, govips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case govips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}, govips.LogLevelWarning
	default:
		return func(domain string, l govips.LogLevel, msg string) {
			switch l {
			case govips.LogLevelError, govips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			}
		}, govips.LogLevelCritical
	}
}

// Shutdown releases libvips. Safe to call when Init was never called.
func Shutdown() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsAvailable {
		govips.Shutdown()
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// Available reports whether libvips is initialized and usable.
func Available() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}
