// Package engine implements the three bridging modes: a stdio child exposed
// over SSE, a remote SSE server exposed over stdio, and an SSE to SSE relay.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// ModeStdio spawns a stdio child process and serves it to SSE sessions.
	ModeStdio = "stdio"
	// ModeSSEClient connects to a remote SSE server and serves it on stdio.
	ModeSSEClient = "sse-client"
	// ModeSSERelay connects to a remote SSE server and re-serves it to SSE sessions.
	ModeSSERelay = "sse-relay"
)

// Engine runs one bridging mode. Run blocks until a fatal condition or until
// ctx is cancelled; an orderly shutdown returns nil.
type Engine interface {
	Run(ctx context.Context) error
}

// Config is the resolved engine configuration.
type Config struct {
	Mode           string
	Command        string
	Arguments      []string
	UpstreamURL    string
	Port           int
	BaseURL        string
	SSEPath        string
	MessagePath    string
	EnableCORS     bool
	Cors           *Cors
	HealthPaths    []string
	ConnectTimeout time.Duration
	MaxAttempts    int
	KeepAlive      time.Duration
	Logger         *logrus.Logger
}

// Init applies defaults.
func (c *Config) Init() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.SSEPath == "" {
		c.SSEPath = "/sse"
	}
	if c.MessagePath == "" {
		c.MessagePath = "/message"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.EnableCORS && c.Cors == nil {
		c.Cors = defaultCors()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Validate enforces per mode requirements.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStdio:
		if c.Command == "" {
			return fmt.Errorf("%v mode requires a command", ModeStdio)
		}
	case ModeSSEClient, ModeSSERelay:
		if c.UpstreamURL == "" {
			return fmt.Errorf("%v mode requires an upstream url", c.Mode)
		}
	case "":
		return fmt.Errorf("mode was empty")
	default:
		return fmt.Errorf("unsupported mode: %v", c.Mode)
	}
	return nil
}

// New constructs the engine selected by config.Mode.
func New(config *Config) (Engine, error) {
	config.Init()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Mode {
	case ModeStdio:
		return NewStdio(config), nil
	case ModeSSEClient:
		return NewSSEClient(config), nil
	case ModeSSERelay:
		return NewRelay(config), nil
	}
	return nil, fmt.Errorf("unsupported mode: %v", config.Mode)
}
