package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const DefaultPNCPBaseURL = "https://pncp.gov.br/api/consulta"

// Env holds the process settings read from flags and environment variables.
type Env struct {
	Port        string
	DatabaseURL string // optional; enables the scan run log
	ConfigPath  string // optional; embedded endpoints.yaml when empty
	PNCPBaseURL string
	LogLevel    string
	LogFormat   string // json or console
}

// NewViper returns a viper that reads PORT, DATABASE_URL, CONFIG_PATH,
// PNCP_BASE_URL, LOG_LEVEL and LOG_FORMAT from the environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", "8081")
	v.SetDefault("pncp_base_url", DefaultPNCPBaseURL)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func EnvFrom(v *viper.Viper) Env {
	return Env{
		Port:        v.GetString("port"),
		DatabaseURL: strings.TrimSpace(v.GetString("database_url")),
		ConfigPath:  strings.TrimSpace(v.GetString("config_path")),
		PNCPBaseURL: strings.TrimSpace(v.GetString("pncp_base_url")),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
	}
}

// Resolve loads the endpoints config named by env, fills an empty PNCP base
// URL from env and validates the result.
func Resolve(env Env) (*Config, error) {
	cfg, err := Load(env.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.PNCP.BaseURL == "" {
		cfg.PNCP.BaseURL = strings.TrimRight(env.PNCPBaseURL, "/")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the root logger. Unknown levels fall back to info.
func (e Env) NewLogger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if e.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(e.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func (e Env) String() string {
	db := "disabled"
	if e.DatabaseURL != "" {
		db = "enabled"
	}
	return fmt.Sprintf("port=%s config=%q pncp=%s runlog=%s", e.Port, e.ConfigPath, e.PNCPBaseURL, db)
}
