// Package config loads pagepilot settings from defaults, an optional YAML
// file and PAGEPILOT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, so log.level is
// read from PAGEPILOT_LOG_LEVEL.
const EnvPrefix = "PAGEPILOT"

// Config is the full application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Record  RecordConfig  `mapstructure:"record" yaml:"record"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // console or json
	File       string `mapstructure:"file" yaml:"file"`     // optional rotating log file
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chromium session each run gets.
type BrowserConfig struct {
	StartURL          string        `mapstructure:"start_url" yaml:"start_url"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Width             int           `mapstructure:"width" yaml:"width"`
	Height            int           `mapstructure:"height" yaml:"height"`
	SlowMotion        time.Duration `mapstructure:"slow_motion" yaml:"slow_motion"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Bin               string        `mapstructure:"bin" yaml:"bin"`
	ProfileDir        string        `mapstructure:"profile_dir" yaml:"profile_dir"`
}

// LLMConfig selects the plan model. APIKey is only the fallback used when a
// request does not bring its own key.
type LLMConfig struct {
	Provider  string        `mapstructure:"provider" yaml:"provider"`
	Model     string        `mapstructure:"model" yaml:"model"`
	APIKey    string        `mapstructure:"api_key" yaml:"-"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AgentConfig tunes the loop and the executor.
type AgentConfig struct {
	MaxRounds    int           `mapstructure:"max_rounds" yaml:"max_rounds"` // 0 = unbounded
	ClickTimeout time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	FillTimeout  time.Duration `mapstructure:"fill_timeout" yaml:"fill_timeout"`
	Settle       time.Duration `mapstructure:"settle" yaml:"settle"`
	MarkupLimit  int           `mapstructure:"markup_limit" yaml:"markup_limit"`
}

// ServerConfig controls the HTTP front end.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// RecordConfig enables GIF recordings of runs when Dir is set.
type RecordConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	FPS      int    `mapstructure:"fps" yaml:"fps"`
	MaxWidth uint   `mapstructure:"max_width" yaml:"max_width"`
}

// Enabled reports whether runs should be recorded.
func (r RecordConfig) Enabled() bool { return r.Dir != "" }

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 14)
	v.SetDefault("log.compress", true)

	// Browser
	v.SetDefault("browser.start_url", "https://practicetestautomation.com/practice-test-login/")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.slow_motion", "500ms")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.profile_dir", "")

	// LLM
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "60s")

	// Agent
	v.SetDefault("agent.max_rounds", 20)
	v.SetDefault("agent.click_timeout", "3s")
	v.SetDefault("agent.fill_timeout", "30s")
	v.SetDefault("agent.settle", "1s")
	v.SetDefault("agent.markup_limit", 5000)

	// Server
	v.SetDefault("server.addr", "127.0.0.1:9900")
	v.SetDefault("server.max_concurrent_runs", 2)
	v.SetDefault("server.shutdown_timeout", "30s")

	// Recording
	v.SetDefault("record.dir", "")
	v.SetDefault("record.fps", 1)
	v.SetDefault("record.max_width", 800)
}

// BindEnv wires PAGEPILOT_ overrides. The model key can also come from the
// provider's usual variable.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GEMINI_API_KEY")
}

// New returns a viper instance with defaults and env bindings in place.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// ReadFile loads path into v. An empty path looks for pagepilot.yaml in the
// working directory and silently continues when there is none.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("pagepilot")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Load unmarshals v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}

	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		errs = append(errs, fmt.Errorf("browser.width and browser.height must be positive"))
	}
	if c.Browser.StartURL == "" {
		errs = append(errs, fmt.Errorf("browser.start_url is required"))
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "", "gemini", "google", "claude", "anthropic", "openai", "gpt":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must not be negative"))
	}

	if c.Agent.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("agent.max_rounds must not be negative (0 means unbounded)"))
	}
	if c.Agent.Settle < 0 {
		errs = append(errs, fmt.Errorf("agent.settle must not be negative"))
	}

	if c.Server.MaxConcurrentRuns <= 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent_runs must be a positive integer"))
	}

	if c.Record.Enabled() && c.Record.FPS <= 0 {
		errs = append(errs, fmt.Errorf("record.fps must be positive when recording"))
	}

	return errors.Join(errs...)
}
