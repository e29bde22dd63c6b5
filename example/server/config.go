package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the server configuration. Every field can be set from the environment.
type Config struct {
	Server  ServerConfig
	Trace   TraceConfig
	Sentry  SentryConfig
	Logging LogConfig
}

type ServerConfig struct {
	Addr    string `envconfig:"HUB_ADDR" default:":8080"`
	HubName string `envconfig:"HUB_NAME" default:"Hub"`
	// IsolateTraces starts a new trace for every hub invocation instead of continuing the upgrade request's
	IsolateTraces bool  `envconfig:"HUB_ISOLATE_TRACES" default:"false"`
	ReadLimit     int64 `envconfig:"HUB_READ_LIMIT" default:"32768"`
}

type TraceConfig struct {
	// Exporter is one of stdout, datadog or none
	Exporter    string `envconfig:"TRACE_EXPORTER" default:"stdout"`
	Service     string `envconfig:"TRACE_SERVICE" default:"hub-example"`
	Env         string `envconfig:"TRACE_ENV" default:"development"`
	AgentAddr   string `envconfig:"DD_AGENT_ADDR" default:"localhost:8126"`
	PrettyPrint bool   `envconfig:"TRACE_PRETTY" default:"false"`
}

type SentryConfig struct {
	DSN string `envconfig:"SENTRY_DSN"`
}

type LogConfig struct {
	Level   string `envconfig:"LOG_LEVEL" default:"info"`
	Console bool   `envconfig:"LOG_CONSOLE" default:"true"`
}

// LoadConfig reads the configuration from environment variables
func LoadConfig() (*Config, error) {
	var conf Config
	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &conf, nil
}
