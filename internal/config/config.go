package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/david/radar-licitacoes/internal/apperr"
	"github.com/david/radar-licitacoes/internal/upstream"
)

//go:embed endpoints.yaml
var endpointsYAML []byte

// Config holds the endpoints and tuning of every upstream the server talks to.
type Config struct {
	Server ServerConfig `yaml:"server"`
	PNCP   PNCPConfig   `yaml:"pncp"`
	Comex  ComexConfig  `yaml:"comex"`
	Scan   ScanConfig   `yaml:"scan"`
}

type ServerConfig struct {
	AllowOrigins []string `yaml:"allow_origins,omitempty"`
}

// FetchConfig defines HTTP fetching configuration for an upstream.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"` // 0 disables the limiter
	UserAgent      string  `yaml:"user_agent,omitempty"`
}

// Upstream converts f into the fetcher config for service.
func (f FetchConfig) Upstream(service string) upstream.Config {
	return upstream.Config{
		Service:        service,
		TimeoutSeconds: f.TimeoutSeconds,
		MaxRetries:     f.MaxRetries,
		RateLimitRPS:   f.RateLimitRPS,
		UserAgent:      f.UserAgent,
	}
}

type PNCPConfig struct {
	BaseURL string `yaml:"base_url"` // https://pncp.gov.br/api/consulta
	// DefaultModalidade is sent when a listing request leaves codigoModalidadeContratacao empty.
	DefaultModalidade string      `yaml:"default_modalidade,omitempty"`
	Fetch             FetchConfig `yaml:"fetch,omitempty"`
}

type ComexConfig struct {
	// BaseURLs are tried in order until one answers.
	BaseURLs []string    `yaml:"base_urls"`
	Fetch    FetchConfig `yaml:"fetch,omitempty"`
}

type ScanConfig struct {
	MaxSpanDays int `yaml:"max_span_days,omitempty"`
	PageDelayMS int `yaml:"page_delay_ms,omitempty"`
	// JobTimeoutMinutes bounds background scans.
	JobTimeoutMinutes int `yaml:"job_timeout_minutes,omitempty"`
}

// Load reads the embedded endpoints.yaml, or path when it is not empty, and
// expands ${VAR} references from the environment before parsing.
func Load(path string) (*Config, error) {
	data := endpointsYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PNCP.DefaultModalidade == "" {
		c.PNCP.DefaultModalidade = "8"
	}
	if c.Scan.MaxSpanDays <= 0 {
		c.Scan.MaxSpanDays = 365
	}
	if c.Scan.JobTimeoutMinutes <= 0 {
		c.Scan.JobTimeoutMinutes = 30
	}
	c.PNCP.BaseURL = strings.TrimRight(strings.TrimSpace(c.PNCP.BaseURL), "/")

	urls := c.Comex.BaseURLs[:0]
	for _, u := range c.Comex.BaseURLs {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			urls = append(urls, u)
		}
	}
	c.Comex.BaseURLs = urls
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.PNCP.BaseURL == "" {
		return &apperr.ConfigurationError{Field: "pncp.base_url", Message: "PNCP base URL is not set (PNCP_BASE_URL)"}
	}
	if !strings.HasPrefix(c.PNCP.BaseURL, "http://") && !strings.HasPrefix(c.PNCP.BaseURL, "https://") {
		return &apperr.ConfigurationError{Field: "pncp.base_url", Message: fmt.Sprintf("invalid URL %q", c.PNCP.BaseURL)}
	}
	if len(c.Comex.BaseURLs) == 0 {
		return &apperr.ConfigurationError{Field: "comex.base_urls", Message: "no ComexStat base URL configured"}
	}
	return nil
}
