package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"promptshelf/internal/aggregate"
	"promptshelf/internal/scrapers/prompts"
	"promptshelf/internal/store"
	"promptshelf/lib/configutil"
)

// DefaultName is the configuration file looked up from the working directory upwards.
const DefaultName = "promptshelf.json5"

// TokenEnv overrides Config.Token so the credential does not have to live in a file.
const TokenEnv = "PROMPTSHELF_TOKEN"

type ServerConfig struct {
	Port int `json:"port"`
	// AccessToken is required from every caller of the streaming service, empty
	// disables the check.
	AccessToken string `json:"access_token"`
}

type Config struct {
	Token           string `json:"token"`
	Host            string `json:"host"`
	GraphqlEndpoint string `json:"graphql_endpoint"`
	// Concurrency caps the enrichment tasks running at once.
	Concurrency int `json:"concurrency"`
	// RequestTimeoutSeconds bounds a single http request.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
	// TaskTimeoutSeconds bounds a single enrichment.
	TaskTimeoutSeconds int     `json:"task_timeout_seconds"`
	RequestsPerSecond  float64 `json:"requests_per_second"`
	// Extractor is "scan" or "dom".
	Extractor string       `json:"extractor"`
	Database  store.Config `json:"database"`
	Server    ServerConfig `json:"server"`
}

func Defaults() Config {
	return Config{
		Host:                  prompts.DefaultHost,
		GraphqlEndpoint:       prompts.DefaultGraphqlEndpoint,
		Concurrency:           aggregate.DefaultConcurrency,
		RequestTimeoutSeconds: 30,
		TaskTimeoutSeconds:    int(aggregate.DefaultTaskTimeout / time.Second),
		RequestsPerSecond:     5,
		Extractor:             "scan",
		Server: ServerConfig{
			Port: 8111,
		},
	}
}

// Load reads the configuration at path, or searches for DefaultName if path is
// empty. A missing file is not an error, the defaults are used instead.
func Load(path string) (Config, error) {
	var (
		cfg Config
		err error
	)
	if path == "" {
		cfg, err = configutil.ReadRecursively[Config](DefaultName)
	} else {
		cfg, err = configutil.ReadConfig[Config](path)
	}
	if errors.Is(err, fs.ErrNotExist) && path == "" {
		err = nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if token := os.Getenv(TokenEnv); token != "" {
		cfg.Token = token
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	defaults := Defaults()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.GraphqlEndpoint == "" {
		c.GraphqlEndpoint = defaults.GraphqlEndpoint
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}
	if c.TaskTimeoutSeconds <= 0 {
		c.TaskTimeoutSeconds = defaults.TaskTimeoutSeconds
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if c.Extractor == "" {
		c.Extractor = defaults.Extractor
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	return c
}

func (c Config) ClientOptions() prompts.ClientOptions {
	return prompts.ClientOptions{
		Host:              c.Host,
		GraphqlEndpoint:   c.GraphqlEndpoint,
		Token:             c.Token,
		Timeout:           time.Duration(c.RequestTimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

func (c Config) OrchestratorOptions() aggregate.Options {
	return aggregate.Options{
		Concurrency: c.Concurrency,
		TaskTimeout: time.Duration(c.TaskTimeoutSeconds) * time.Second,
	}
}

func (c Config) StateExtractor() prompts.StateExtractor {
	return prompts.ExtractorByName(c.Extractor)
}
