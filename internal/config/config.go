// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	LLM() LLMConfig
	Generator() GeneratorConfig
	Pipeline() PipelineConfig
	Runtime() RuntimeConfig
	Monitor() MonitorConfig

	SetVerbose(bool)
	SetQuiet(bool)
	Verbose() bool
	Quiet() bool
}

// Config holds the entire application configuration. Access goes through the
// Interface getters so callers never depend on the concrete struct.
type Config struct {
	logger    LoggerConfig
	llm       LLMConfig
	generator GeneratorConfig
	pipeline  PipelineConfig
	runtime   RuntimeConfig
	monitor   MonitorConfig

	// verbose/quiet get their marching orders from CLI flags, not the file.
	verbose bool
	quiet   bool
}

func (c *Config) Logger() LoggerConfig       { return c.logger }
func (c *Config) LLM() LLMConfig             { return c.llm }
func (c *Config) Generator() GeneratorConfig { return c.generator }
func (c *Config) Pipeline() PipelineConfig   { return c.pipeline }
func (c *Config) Runtime() RuntimeConfig     { return c.runtime }
func (c *Config) Monitor() MonitorConfig     { return c.monitor }

func (c *Config) SetVerbose(v bool) { c.verbose = v }
func (c *Config) SetQuiet(q bool)   { c.quiet = q }
func (c *Config) Verbose() bool     { return c.verbose }
func (c *Config) Quiet() bool       { return c.quiet }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMConfig configures the text-generation backend.
type LLMConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens  int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute throttles outbound calls; zero disables the limiter.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// GeneratorConfig bounds the generate/validate/correct loop.
type GeneratorConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// OfflineFallback forces the deterministic generator even when an LLM is
	// configured. The fallback is always used as a last resort regardless.
	OfflineFallback bool `mapstructure:"offline_fallback" yaml:"offline_fallback"`
}

// PipelineConfig tunes stage execution.
type PipelineConfig struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	// ContainerTool is the binary used by the runtime stage ("docker",
	// "podman"). The stage passes with a warning when the tool is absent.
	ContainerTool string `mapstructure:"container_tool" yaml:"container_tool"`
}

// RuntimeConfig describes how the generated service is run.
type RuntimeConfig struct {
	OutputDir      string        `mapstructure:"output_dir" yaml:"output_dir"`
	Port           int           `mapstructure:"port" yaml:"port"`
	InstallCommand string        `mapstructure:"install_command" yaml:"install_command"`
	StartCommand   string        `mapstructure:"start_command" yaml:"start_command"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
	LogBufferSize  int           `mapstructure:"log_buffer_size" yaml:"log_buffer_size"`
	// ServiceLogFile, when set, is an external log file written by the
	// generated service itself; its lines are merged into the log stream.
	ServiceLogFile string `mapstructure:"service_log_file" yaml:"service_log_file"`
}

// MonitorConfig tunes the supervision loops.
type MonitorConfig struct {
	HealthInterval     time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
	LogInterval        time.Duration `mapstructure:"log_interval" yaml:"log_interval"`
	LogScanLines       int           `mapstructure:"log_scan_lines" yaml:"log_scan_lines"`
	RecentErrorWindow  time.Duration `mapstructure:"recent_error_window" yaml:"recent_error_window"`
	MaxEvolutionCycles int           `mapstructure:"max_evolution_cycles" yaml:"max_evolution_cycles"`
	AutoRestart        bool          `mapstructure:"auto_restart" yaml:"auto_restart"`
	HistoryFile        string        `mapstructure:"history_file" yaml:"history_file"`
	AuditFile          string        `mapstructure:"audit_file" yaml:"audit_file"`
}

// Defaults applied before unmarshalling the config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "foundry-cli")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_timeout", 90*time.Second)
	v.SetDefault("llm.max_tokens", 16384)
	v.SetDefault("llm.requests_per_minute", 30)

	v.SetDefault("generator.max_attempts", 5)

	v.SetDefault("pipeline.stage_timeout", 60*time.Second)
	v.SetDefault("pipeline.container_tool", "docker")

	v.SetDefault("runtime.output_dir", "./generated")
	v.SetDefault("runtime.port", 3000)
	v.SetDefault("runtime.install_command", "npm install")
	v.SetDefault("runtime.start_command", "npm start")
	v.SetDefault("runtime.health_timeout", 30*time.Second)
	v.SetDefault("runtime.health_interval", 1*time.Second)
	v.SetDefault("runtime.log_buffer_size", 2000)

	v.SetDefault("monitor.health_interval", 5*time.Second)
	v.SetDefault("monitor.log_interval", 10*time.Second)
	v.SetDefault("monitor.log_scan_lines", 50)
	v.SetDefault("monitor.recent_error_window", 5*time.Minute)
	v.SetDefault("monitor.max_evolution_cycles", 5)
	v.SetDefault("monitor.auto_restart", true)
}

// Load reads the configuration file and environment into a Config. A missing
// config file is not an error; defaults and FOUNDRY_* env vars still apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("invalid config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FOUNDRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var raw struct {
		Logger    LoggerConfig    `mapstructure:"logger"`
		LLM       LLMConfig       `mapstructure:"llm"`
		Generator GeneratorConfig `mapstructure:"generator"`
		Pipeline  PipelineConfig  `mapstructure:"pipeline"`
		Runtime   RuntimeConfig   `mapstructure:"runtime"`
		Monitor   MonitorConfig   `mapstructure:"monitor"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if raw.Runtime.OutputDir != "" {
		expanded, err := homedir.Expand(raw.Runtime.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("invalid output dir %q: %w", raw.Runtime.OutputDir, err)
		}
		raw.Runtime.OutputDir = expanded
	}

	return &Config{
		logger:    raw.Logger,
		llm:       raw.LLM,
		generator: raw.Generator,
		pipeline:  raw.Pipeline,
		runtime:   raw.Runtime,
		monitor:   raw.Monitor,
	}, nil
}

// Default returns a Config populated purely from defaults, used by tests and
// by components constructed without a file on disk.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults alone cannot fail to unmarshal.
		panic(err)
	}
	return cfg
}
