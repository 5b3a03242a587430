package proxy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/mcp-proxy/engine"
	"gopkg.in/yaml.v3"
)

// Options configures the proxy. Every field maps both to a command line
// flag and to the optional YAML config document.
type Options struct {
	ConfigURL string `yaml:"-" json:"-" short:"f" long:"config" description:"config file URL; when set it replaces the remaining flags"`

	Mode      string   `yaml:"mode" json:"mode" short:"m" long:"mode" description:"bridging mode" choice:"stdio" choice:"sse-client" choice:"sse-relay"`
	Command   string   `yaml:"command" json:"command" short:"c" long:"command" description:"child command, stdio mode"`
	Arguments []string `yaml:"arguments" json:"arguments" short:"a" long:"arg" description:"child command argument, repeatable"`
	URL       string   `yaml:"url" json:"url" short:"u" long:"url" description:"upstream SSE URL, sse-client and sse-relay modes"`

	Port        int          `yaml:"port" json:"port" short:"p" long:"port" description:"http port, stdio and sse-relay modes"`
	BaseURL     string       `yaml:"baseURL" json:"baseURL" long:"base-url" description:"public base URL advertised to SSE clients"`
	SSEPath     string       `yaml:"ssePath" json:"ssePath" long:"sse-path" description:"SSE subscribe path"`
	MessagePath string       `yaml:"messagePath" json:"messagePath" long:"message-path" description:"message post path"`
	EnableCORS  bool         `yaml:"enableCORS" json:"enableCORS" long:"cors" description:"enable permissive CORS headers"`
	Cors        *engine.Cors `yaml:"corsOptions" json:"corsOptions"`
	HealthPaths []string     `yaml:"healthPaths" json:"healthPaths" long:"health-path" description:"health endpoint path, repeatable"`

	ConnectTimeoutMs int  `yaml:"connectTimeoutMs" json:"connectTimeoutMs" long:"connect-timeout-ms" description:"upstream connect timeout in milliseconds"`
	MaxAttempts      int  `yaml:"maxAttempts" json:"maxAttempts" long:"max-attempts" description:"reconnect attempt ceiling"`
	Debug            bool `yaml:"debug" json:"debug" long:"debug" description:"verbose logging"`
}

// Init applies defaults.
func (o *Options) Init() {
	if o.Port == 0 {
		o.Port = 8000
	}
	if o.SSEPath == "" {
		o.SSEPath = "/sse"
	}
	if o.MessagePath == "" {
		o.MessagePath = "/message"
	}
	if o.ConnectTimeoutMs <= 0 {
		o.ConnectTimeoutMs = 10000
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
}

// Resolve loads the config document when ConfigURL is set and applies
// defaults. The loaded document replaces the flag values, with the debug
// flag surviving either way.
func (o *Options) Resolve(ctx context.Context) (*Options, error) {
	resolved := o
	if o.ConfigURL != "" {
		fs := afs.New()
		data, err := fs.DownloadWithURL(ctx, o.ConfigURL)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %v: %w", o.ConfigURL, err)
		}
		loaded := &Options{}
		if err := yaml.Unmarshal(data, loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config %v: %w", o.ConfigURL, err)
		}
		loaded.Debug = loaded.Debug || o.Debug
		resolved = loaded
	}
	resolved.Init()
	return resolved, nil
}

// EngineConfig maps the options to the engine configuration.
func (o *Options) EngineConfig(logger *logrus.Logger) *engine.Config {
	return &engine.Config{
		Mode:           o.Mode,
		Command:        o.Command,
		Arguments:      o.Arguments,
		UpstreamURL:    o.URL,
		Port:           o.Port,
		BaseURL:        strings.TrimSuffix(o.BaseURL, "/"),
		SSEPath:        o.SSEPath,
		MessagePath:    o.MessagePath,
		EnableCORS:     o.EnableCORS,
		Cors:           o.Cors,
		HealthPaths:    o.HealthPaths,
		ConnectTimeout: time.Duration(o.ConnectTimeoutMs) * time.Millisecond,
		MaxAttempts:    o.MaxAttempts,
		Logger:         logger,
	}
}
