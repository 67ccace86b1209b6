package main

import (
	"os"

	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/errs"
)

// ExitHandler provides a testable way to handle program termination
type ExitHandler interface {
	Exit(code int)
	LogFatalError(err error, msg string, keyvals ...any)
}

// DefaultExitHandler implements ExitHandler for production use
type DefaultExitHandler struct {
	logger *common.Logger
	exit   func(int)
}

// NewDefaultExitHandler creates a new default exit handler
func NewDefaultExitHandler() *DefaultExitHandler {
	return &DefaultExitHandler{exit: os.Exit}
}

// Exit terminates the program with the given exit code
func (h *DefaultExitHandler) Exit(code int) {
	h.exit(code)
}

// LogFatalError logs a fatal error with its kind and exits with status 1
func (h *DefaultExitHandler) LogFatalError(err error, msg string, keyvals ...any) {
	logger := h.logger
	if logger == nil {
		// resolved late so the logger configured from flags is used
		logger = common.GetLogger().WithComponent("main")
	}
	allKeyvals := append([]any{"error", err, "kind", errs.KindOf(err).String(), "retryable", errs.Retryable(err)}, keyvals...)
	logger.Error(msg, allKeyvals...)
	h.Exit(1)
}

// Global exit handler (can be replaced for testing)
var exitHandler ExitHandler = NewDefaultExitHandler()
