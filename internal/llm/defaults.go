package llm

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults applied by New.
const (
	DefaultModel           = "gpt-4o-mini"
	DefaultBaseURL         = "https://api.openai.com"
	DefaultTemperature     = 0.7
	DefaultTopP            = 1.0
	DefaultContextMessages = 5
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = time.Second
)

var (
	defaultsMu        sync.RWMutex
	defaultCredential string
	diagnosticLogger  = zap.NewNop()
)

// SetDefaultCredential sets the credential used by New when none is given.
// Set it once during startup.
func SetDefaultCredential(credential string) error {
	if credential == "" {
		return newError(InvalidArgument, "credential is required")
	}
	defaultsMu.Lock()
	defaultCredential = credential
	defaultsMu.Unlock()
	return nil
}

// DefaultCredential returns the process-wide credential, or "" if unset.
func DefaultCredential() string {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	return defaultCredential
}

// SetLogger sets the diagnostic logger. nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultsMu.Lock()
	diagnosticLogger = l
	defaultsMu.Unlock()
}

func Logger() *zap.Logger {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	return diagnosticLogger
}
