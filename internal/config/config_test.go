package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "deskpilot", cfg.Logger.ServiceName)

	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.Endpoint)
	assert.Equal(t, "llama3.2-vision", cfg.LLM.OperationModel)
	assert.Equal(t, "nomic-embed-text", cfg.LLM.EmbeddingModel)

	assert.Equal(t, StoreFile, cfg.Knowledge.Type)
	assert.Equal(t, "knowledge.jsonl", cfg.Knowledge.Path)

	assert.Equal(t, 3, cfg.Automation.MaxRetries)
	assert.Equal(t, 2, cfg.Automation.TopK)
	assert.Equal(t, 3*time.Second, cfg.Automation.SettleInterval)
	assert.Contains(t, cfg.Automation.TypingKeywords, "type")
	assert.Contains(t, cfg.Automation.TypingKeywords, "入力")

	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper_Overrides(t *testing.T) {
	t.Parallel()

	v := viper.New()
	SetDefaults(v)
	v.Set("automation.max_retries", 5)
	v.Set("knowledge.type", "postgres")
	v.Set("knowledge.postgres.dbname", "deskpilot_test")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Automation.MaxRetries)
	assert.Equal(t, StorePostgres, cfg.Knowledge.Type)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.Automation.MaxRetries = 0 },
			wantErr: "max_retries",
		},
		{
			name:    "negative top_k",
			mutate:  func(c *Config) { c.Automation.TopK = -1 },
			wantErr: "top_k",
		},
		{
			name:    "zero settle interval",
			mutate:  func(c *Config) { c.Automation.SettleInterval = 0 },
			wantErr: "settle_interval",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLM.Provider = "openai" },
			wantErr: "llm.provider",
		},
		{
			name: "gemini requires api key",
			mutate: func(c *Config) {
				c.LLM.Provider = ProviderGemini
				c.LLM.APIKey = ""
			},
			wantErr: "api_key",
		},
		{
			name: "ollama requires endpoint",
			mutate: func(c *Config) {
				c.LLM.Provider = ProviderOllama
				c.LLM.Endpoint = ""
			},
			wantErr: "llm.endpoint",
		},
		{
			name:    "file store requires path",
			mutate:  func(c *Config) { c.Knowledge.Path = "" },
			wantErr: "knowledge.path",
		},
		{
			name: "postgres store requires dbname",
			mutate: func(c *Config) {
				c.Knowledge.Type = StorePostgres
				c.Knowledge.Postgres.DBName = ""
			},
			wantErr: "dbname",
		},
		{
			name:    "unknown store type",
			mutate:  func(c *Config) { c.Knowledge.Type = "redis" },
			wantErr: "knowledge.type",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewDefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	dsn := PostgresConfig{
		Host: "db.local", Port: 5433, User: "deskpilot",
		Password: "secret", DBName: "episodes", SSLMode: "require",
	}.DSN()
	assert.Equal(t, "host=db.local port=5433 user=deskpilot password=secret dbname=episodes sslmode=require", dsn)
}

func TestExpandPaths(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	cfg.Knowledge.Path = "~/knowledge.jsonl"
	require.NoError(t, cfg.expandPaths())
	assert.NotContains(t, cfg.Knowledge.Path, "~")
}
