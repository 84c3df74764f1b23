// Package config defines the application configuration and its viper
// loading, defaulting, and validation logic.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge" yaml:"knowledge"`
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	OCR        OCRConfig        `mapstructure:"ocr" yaml:"ocr"`
	Execution  ExecutionConfig  `mapstructure:"execution" yaml:"execution"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
}

// LoggerConfig configures the zap observability stack.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider identifies a completion backend implementation.
type LLMProvider string

const (
	ProviderOllama LLMProvider = "ollama"
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig configures the completion service. OperationModel writes and
// abstracts code, EvaluationModel judges outcomes, EmbeddingModel feeds the
// knowledge store. EmbeddingEndpoint falls back to Endpoint when unset.
type LLMConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	EmbeddingEndpoint string        `mapstructure:"embedding_endpoint" yaml:"embedding_endpoint"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	OperationModel    string        `mapstructure:"operation_model" yaml:"operation_model"`
	EvaluationModel   string        `mapstructure:"evaluation_model" yaml:"evaluation_model"`
	EmbeddingModel    string        `mapstructure:"embedding_model" yaml:"embedding_model"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// KnowledgeStoreType selects the knowledge store backend.
type KnowledgeStoreType string

const (
	StoreFile     KnowledgeStoreType = "file"
	StorePostgres KnowledgeStoreType = "postgres"
)

// KnowledgeConfig configures the confirmed-episode store.
type KnowledgeConfig struct {
	Type     KnowledgeStoreType `mapstructure:"type" yaml:"type"`
	Path     string             `mapstructure:"path" yaml:"path"`
	Postgres PostgresConfig     `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds connection settings for the Postgres-backed store.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// CaptureConfig configures screen captures. When CDPURL is set, captures go
// through the attached browser; otherwise an OS capture command is used.
type CaptureConfig struct {
	Dir          string        `mapstructure:"dir" yaml:"dir"`
	CDPURL       string        `mapstructure:"cdp_url" yaml:"cdp_url"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ScreenWidth  int           `mapstructure:"screen_width" yaml:"screen_width"`
	ScreenHeight int           `mapstructure:"screen_height" yaml:"screen_height"`
}

// OCRConfig configures the text-detection service client.
type OCRConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ExecutionConfig configures the detached script executor.
type ExecutionConfig struct {
	Interpreter string `mapstructure:"interpreter" yaml:"interpreter"`
	WorkDir     string `mapstructure:"work_dir" yaml:"work_dir"`
	StreamLogs  bool   `mapstructure:"stream_logs" yaml:"stream_logs"`
}

// AutomationConfig holds the orchestration loop parameters.
type AutomationConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	TopK           int           `mapstructure:"top_k" yaml:"top_k"`
	SettleInterval time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`
	RetryWait      time.Duration `mapstructure:"retry_wait" yaml:"retry_wait"`
	TypingKeywords []string      `mapstructure:"typing_keywords" yaml:"typing_keywords"`
}

// SetDefaults registers default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "deskpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- LLM --
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.endpoint", "http://localhost:11434")
	v.SetDefault("llm.operation_model", "llama3.2-vision")
	v.SetDefault("llm.evaluation_model", "llama3.2-vision")
	v.SetDefault("llm.embedding_model", "nomic-embed-text")
	v.SetDefault("llm.api_timeout", "120s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.requests_per_minute", 30.0)

	// -- Knowledge --
	v.SetDefault("knowledge.type", "file")
	v.SetDefault("knowledge.path", "knowledge.jsonl")
	v.SetDefault("knowledge.postgres.host", "localhost")
	v.SetDefault("knowledge.postgres.port", 5432)
	v.SetDefault("knowledge.postgres.user", "postgres")
	v.SetDefault("knowledge.postgres.password", "")
	v.SetDefault("knowledge.postgres.dbname", "deskpilot")
	v.SetDefault("knowledge.postgres.sslmode", "disable")

	// -- Capture --
	v.SetDefault("capture.dir", "screenshots")
	v.SetDefault("capture.timeout", "15s")
	v.SetDefault("capture.screen_width", 1920)
	v.SetDefault("capture.screen_height", 1080)

	// -- OCR --
	v.SetDefault("ocr.endpoint", "http://localhost:8884/detect")
	v.SetDefault("ocr.timeout", "60s")

	// -- Execution --
	v.SetDefault("execution.interpreter", "python3")
	v.SetDefault("execution.work_dir", ".")
	v.SetDefault("execution.stream_logs", true)

	// -- Automation --
	v.SetDefault("automation.max_retries", 3)
	v.SetDefault("automation.top_k", 2)
	v.SetDefault("automation.settle_interval", "3s")
	v.SetDefault("automation.retry_wait", "2s")
	v.SetDefault("automation.typing_keywords", []string{"type", "enter", "input", "入力"})
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper unmarshals, expands, and validates a configuration
// from the given viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	_ = v.BindEnv("llm.api_key", "DESKPILOT_LLM_API_KEY")
	_ = v.BindEnv("knowledge.postgres.password", "DESKPILOT_PG_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in every user-supplied path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Knowledge.Path, &c.Capture.Dir, &c.Execution.WorkDir, &c.Logger.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Automation.MaxRetries < 1 {
		return fmt.Errorf("automation.max_retries must be at least 1")
	}
	if c.Automation.TopK < 0 {
		return fmt.Errorf("automation.top_k must not be negative")
	}
	if c.Automation.SettleInterval <= 0 {
		return fmt.Errorf("automation.settle_interval must be a positive duration")
	}
	switch c.LLM.Provider {
	case ProviderOllama:
		if c.LLM.Endpoint == "" {
			return fmt.Errorf("llm.endpoint is required for the ollama provider")
		}
	case ProviderGemini:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for the gemini provider (set DESKPILOT_LLM_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown llm.provider: %q", c.LLM.Provider)
	}
	switch c.Knowledge.Type {
	case StoreFile:
		if c.Knowledge.Path == "" {
			return fmt.Errorf("knowledge.path is required for the file store")
		}
	case StorePostgres:
		if c.Knowledge.Postgres.DBName == "" {
			return fmt.Errorf("knowledge.postgres.dbname is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown knowledge.type: %q", c.Knowledge.Type)
	}
	return nil
}
