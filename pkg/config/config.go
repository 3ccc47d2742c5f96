package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// ベクトルストアのバックエンド選択（"postgres" or "qdrant"）
	VectorBackend string

	// Qdrant設定（VectorBackend = "qdrant" の場合のみ使用）
	Qdrant QdrantConfig

	// Embeddingプロバイダ設定
	Embedding EmbeddingConfig

	// チャンク分割設定
	Chunking ChunkingConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// QdrantConfig はQdrant接続設定
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
}

// EmbeddingConfig はEmbeddingプロバイダ設定
type EmbeddingConfig struct {
	// Provider は優先プロバイダ名（"auto" / "googleai" / "ollama" / "openai"）
	Provider string

	GoogleAPIKey string

	OllamaServerURL string
	OllamaModel     string

	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIDimension int
}

// ChunkingConfig はチャンク分割設定
type ChunkingConfig struct {
	ChunkSize int
	Overlap   int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "docrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "docrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		VectorBackend: getEnv("VECTOR_BACKEND", "postgres"),
		Qdrant: QdrantConfig{
			Host:       getEnv("QDRANT_HOST", "localhost"),
			Port:       getEnvAsInt("QDRANT_PORT", 6334),
			Collection: getEnv("QDRANT_COLLECTION", "document_chunks"),
		},
		Embedding: EmbeddingConfig{
			Provider:        getEnv("EMBEDDING_PROVIDER", "auto"),
			GoogleAPIKey:    getEnv("GOOGLE_API_KEY", ""),
			OllamaServerURL: getEnv("OLLAMA_SERVER_URL", "http://localhost:11434"),
			OllamaModel:     getEnv("OLLAMA_EMBEDDING_MODEL", "all-minilm"),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			OpenAIDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
		},
		Chunking: ChunkingConfig{
			ChunkSize: getEnvAsInt("CHUNK_SIZE", 1000),
			Overlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
		},
	}

	if cfg.Chunking.Overlap >= cfg.Chunking.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)",
			cfg.Chunking.Overlap, cfg.Chunking.ChunkSize)
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
