package proxy

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/viant/mcp-proxy/engine"
)

// New builds the engine selected by options. A config URL in options is
// loaded before the engine is constructed.
func New(ctx context.Context, options *Options) (engine.Engine, error) {
	if options == nil {
		return nil, fmt.Errorf("options were nil")
	}
	resolved, err := options.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return engine.New(resolved.EngineConfig(NewLogger(resolved.Debug)))
}

// NewLogger returns the proxy logger. All output goes to stderr so that
// stdout stays clean for the stdio transport.
func NewLogger(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
