package core

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a pipeline.
//
// It covers the LLM, embedding, and transcription providers, the remote
// vector store, the local mirror, and the reminder/calendar planner
// backend.
type Config struct {
	// LLM contains chat-completion provider configuration.
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Transcriber contains speech-to-text provider configuration.
	Transcriber TranscriberConfig `json:"transcriber"`

	// VectorStore contains remote vector store configuration.
	VectorStore VectorStoreConfig `json:"vector_store"`

	// Mirror contains local mirror configuration.
	Mirror MirrorConfig `json:"mirror"`

	// Planner contains reminder/calendar store configuration.
	Planner PlannerConfig `json:"planner"`
}

// LLMConfig contains configuration for the chat-completion provider.
type LLMConfig struct {
	// APIKey is the provider API key.
	APIKey string `json:"api_key"`

	// Model is the chat model name (e.g. "gpt-4o-mini").
	Model string `json:"model"`

	// BaseURL overrides the API base URL (optional).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
type EmbedderConfig struct {
	// APIKey is the provider API key.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g. "text-embedding-3-large").
	Model string `json:"model"`

	// BaseURL overrides the API base URL (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding vector dimension (e.g. 3072).
	Dimensions int `json:"dimensions,omitempty"`
}

// TranscriberConfig contains configuration for speech-to-text.
type TranscriberConfig struct {
	// APIKey is the provider API key.
	APIKey string `json:"api_key"`

	// Model is the transcription model name (e.g. "whisper-1").
	Model string `json:"model"`

	// BaseURL overrides the API base URL (optional).
	BaseURL string `json:"base_url,omitempty"`
}

// VectorStoreConfig contains configuration for the remote vector store.
type VectorStoreConfig struct {
	// BaseURL is the index endpoint base URL.
	BaseURL string `json:"base_url"`

	// APIKey is the provider API key.
	APIKey string `json:"api_key"`

	// Namespace scopes all operations. Generated and persisted on first
	// run when empty.
	Namespace string `json:"namespace,omitempty"`

	// NamespaceFile is where a generated namespace is persisted
	// (default: "./recallkit.namespace").
	NamespaceFile string `json:"namespace_file,omitempty"`
}

// MirrorConfig contains configuration for the local mirror.
type MirrorConfig struct {
	// DBPath is the SQLite file backing the mirror
	// (default: "./recallkit-mirror.db"; empty string after defaulting
	// disables the mirror).
	DBPath string `json:"db_path"`
}

// PlannerConfig contains configuration for the reminder/calendar store.
//
// Supported providers: sqlite, postgres, mysql.
type PlannerConfig struct {
	// Provider is the backend name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// DBPath is the SQLite file path (sqlite provider).
	DBPath string `json:"db_path,omitempty"`

	// Host, Port, User, Password, DBName configure the server-backed
	// providers (postgres, mysql).
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"db_name,omitempty"`

	// SSLMode is the libpq sslmode setting (postgres provider).
	SSLMode string `json:"ssl_mode,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function searches for a .env file (up to 5 directory levels up),
// loads it if found, and parses the environment into a Config.
//
// Supported environment variables:
//   - OPENAI_API_KEY (shared default for LLM, embedding, transcription)
//   - LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - TRANSCRIPTION_API_KEY, TRANSCRIPTION_MODEL, TRANSCRIPTION_BASE_URL
//   - VECTORSTORE_BASE_URL, VECTORSTORE_API_KEY, VECTORSTORE_NAMESPACE, VECTORSTORE_NAMESPACE_FILE
//   - MIRROR_PATH
//   - PLANNER_PROVIDER (sqlite, postgres, mysql) plus PLANNER_SQLITE_PATH,
//     PLANNER_HOST, PLANNER_PORT, PLANNER_USER, PLANNER_PASSWORD,
//     PLANNER_DATABASE, PLANNER_SSLMODE
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	openaiKey := os.Getenv("OPENAI_API_KEY")
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "3072"))
	plannerPort, _ := strconv.Atoi(getEnvOrDefault("PLANNER_PORT", "0"))

	config := &Config{
		LLM: LLMConfig{
			APIKey:  getEnvOrDefault("LLM_API_KEY", openaiKey),
			Model:   getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
		},
		Embedder: EmbedderConfig{
			APIKey:     getEnvOrDefault("EMBEDDING_API_KEY", openaiKey),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-large"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		Transcriber: TranscriberConfig{
			APIKey:  getEnvOrDefault("TRANSCRIPTION_API_KEY", openaiKey),
			Model:   getEnvOrDefault("TRANSCRIPTION_MODEL", "whisper-1"),
			BaseURL: os.Getenv("TRANSCRIPTION_BASE_URL"),
		},
		VectorStore: VectorStoreConfig{
			BaseURL:       os.Getenv("VECTORSTORE_BASE_URL"),
			APIKey:        os.Getenv("VECTORSTORE_API_KEY"),
			Namespace:     os.Getenv("VECTORSTORE_NAMESPACE"),
			NamespaceFile: getEnvOrDefault("VECTORSTORE_NAMESPACE_FILE", "./recallkit.namespace"),
		},
		Mirror: MirrorConfig{
			DBPath: getEnvOrDefault("MIRROR_PATH", "./recallkit-mirror.db"),
		},
		Planner: PlannerConfig{
			Provider: getEnvOrDefault("PLANNER_PROVIDER", "sqlite"),
			DBPath:   getEnvOrDefault("PLANNER_SQLITE_PATH", "./recallkit-planner.db"),
			Host:     os.Getenv("PLANNER_HOST"),
			Port:     plannerPort,
			User:     os.Getenv("PLANNER_USER"),
			Password: os.Getenv("PLANNER_PASSWORD"),
			DBName:   os.Getenv("PLANNER_DATABASE"),
			SSLMode:  getEnvOrDefault("PLANNER_SSLMODE", "disable"),
		},
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewFlowError("LoadConfigFromEnvFile", err)
	}
	return LoadConfigFromEnv()
}

// Validate validates the configuration.
//
// A missing API key is a hard precondition failure (ErrAPIKeyNotFound) and
// is never retried; a missing or malformed vector store URL is
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" || c.Embedder.APIKey == "" || c.Transcriber.APIKey == "" || c.VectorStore.APIKey == "" {
		return NewFlowError("Validate", ErrAPIKeyNotFound)
	}
	if c.VectorStore.BaseURL == "" {
		return NewFlowError("Validate", ErrInvalidConfig)
	}
	if _, err := url.Parse(c.VectorStore.BaseURL); err != nil {
		return NewFlowError("Validate", ErrInvalidConfig)
	}
	if c.Planner.Provider == "" {
		return NewFlowError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches the current directory and up to 5 parent directories
// for a .env or .env.example file.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
