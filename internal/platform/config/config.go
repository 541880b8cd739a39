package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// API認証（空の場合は認証なし）
	APIToken string

	// OpenAI互換API設定（Chat + Embeddings）
	OpenAI OpenAIConfig

	// 外部呼び出しの並列度・リトライ設定
	Executor ExecutorConfig

	// Git設定
	Git GitConfig

	// インデックス化設定
	Indexing IndexingConfig

	// 検索設定
	Retrieval RetrievalConfig

	// コミット取り込み設定
	Commits CommitsConfig

	// 回答生成設定
	Answer AnswerConfig

	// HTTPサーバー設定
	Server ServerConfig

	// ログ設定
	Log LogConfig
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

// OpenAIConfig はOpenAI互換API設定
type OpenAIConfig struct {
	APIKey string
	// BaseURL は OpenAI 互換エンドポイント（例: https://api.groq.com/openai/v1）。空なら公式API
	BaseURL            string
	EmbeddingAPIKey    string
	EmbeddingBaseURL   string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
}

// ExecutorConfig は外部サービス呼び出しの実行ポリシー
type ExecutorConfig struct {
	Concurrency int
	MaxAttempts int
	BaseBackoff time.Duration
	RetryBuffer time.Duration
	MaxJitter   time.Duration
	MinInterval time.Duration
}

// GitConfig はGit操作設定
type GitConfig struct {
	CloneDir    string
	Token       string
	SSHKeyPath  string
	SSHPassword string // SSH秘密鍵のパスワード（パスフレーズ）
	AllowLocal  bool   // ローカルパスのリポジトリ参照を許可するか
}

// IndexingConfig はインデックス化の閾値
type IndexingConfig struct {
	MaxSummaryInputChars int
	MinSummaryLength     int
	MinPrintableRatio    float64
	MaxFileBytes         int64
}

// RetrievalConfig は段階的検索の設定
type RetrievalConfig struct {
	Limit      int
	MinResults int
	Thresholds []float64
	// RecommendLimit は推薦ファイルの最大件数
	RecommendLimit int
}

// CommitsConfig はコミット取り込みの設定
type CommitsConfig struct {
	PollLimit    int
	MaxDiffChars int
}

// AnswerConfig は回答生成の設定
type AnswerConfig struct {
	Timeout         time.Duration
	MaxContextToken int
}

// ServerConfig はHTTPサーバー設定
type ServerConfig struct {
	Port int
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	apiKey := getEnv("OPENAI_API_KEY", "")
	baseURL := getEnv("OPENAI_BASE_URL", "")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "repoqa"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "repoqa"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		APIToken: getEnv("REPOQA_API_TOKEN", ""),
		OpenAI: OpenAIConfig{
			APIKey:             apiKey,
			BaseURL:            baseURL,
			EmbeddingAPIKey:    getEnv("OPENAI_EMBEDDING_API_KEY", apiKey),
			EmbeddingBaseURL:   getEnv("OPENAI_EMBEDDING_BASE_URL", baseURL),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		Executor: ExecutorConfig{
			Concurrency: getEnvAsInt("EXECUTOR_CONCURRENCY", 3),
			MaxAttempts: getEnvAsInt("EXECUTOR_MAX_ATTEMPTS", 3),
			BaseBackoff: getEnvAsDuration("EXECUTOR_BASE_BACKOFF", time.Second),
			RetryBuffer: getEnvAsDuration("EXECUTOR_RETRY_BUFFER", 500*time.Millisecond),
			MaxJitter:   getEnvAsDuration("EXECUTOR_MAX_JITTER", 250*time.Millisecond),
			MinInterval: getEnvAsDuration("EXECUTOR_MIN_INTERVAL", 0),
		},
		Git: GitConfig{
			CloneDir:    getEnv("GIT_CLONE_DIR", "/var/lib/repo-qa/repos"),
			Token:       getEnv("GIT_TOKEN", ""),
			SSHKeyPath:  getEnv("GIT_SSH_KEY_PATH", ""),
			SSHPassword: getEnv("GIT_SSH_PASSWORD", ""),
			AllowLocal:  getEnvAsBool("GIT_ALLOW_LOCAL", false),
		},
		Indexing: IndexingConfig{
			MaxSummaryInputChars: getEnvAsInt("INDEX_MAX_SUMMARY_INPUT_CHARS", 10000),
			MinSummaryLength:     getEnvAsInt("INDEX_MIN_SUMMARY_LENGTH", 20),
			MinPrintableRatio:    getEnvAsFloat("INDEX_MIN_PRINTABLE_RATIO", 0.85),
			MaxFileBytes:         int64(getEnvAsInt("INDEX_MAX_FILE_BYTES", 512*1024)),
		},
		Retrieval: RetrievalConfig{
			Limit:          getEnvAsInt("RETRIEVAL_LIMIT", 5),
			MinResults:     getEnvAsInt("RETRIEVAL_MIN_RESULTS", 3),
			RecommendLimit: getEnvAsInt("RECOMMEND_LIMIT", 20),
			Thresholds:     []float64{
				getEnvAsFloat("RETRIEVAL_PRIMARY_THRESHOLD", 0.5),
				getEnvAsFloat("RETRIEVAL_SECONDARY_THRESHOLD", 0.3),
			},
		},
		Commits: CommitsConfig{
			PollLimit:    getEnvAsInt("COMMITS_POLL_LIMIT", 15),
			MaxDiffChars: getEnvAsInt("COMMITS_MAX_DIFF_CHARS", 1000),
		},
		Answer: AnswerConfig{
			Timeout:         getEnvAsDuration("ANSWER_TIMEOUT", 30*time.Second),
			MaxContextToken: getEnvAsInt("ANSWER_MAX_CONTEXT_TOKENS", 1500),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMENSION must be positive: %d", c.OpenAI.EmbeddingDimension)
	}
	if c.Retrieval.Limit <= 0 || c.Retrieval.MinResults <= 0 {
		return fmt.Errorf("retrieval limit and min results must be positive")
	}
	if c.Retrieval.MinResults > c.Retrieval.Limit {
		return fmt.Errorf("RETRIEVAL_MIN_RESULTS (%d) must not exceed RETRIEVAL_LIMIT (%d)", c.Retrieval.MinResults, c.Retrieval.Limit)
	}
	if c.Executor.Concurrency <= 0 || c.Executor.MaxAttempts <= 0 {
		return fmt.Errorf("executor concurrency and max attempts must be positive")
	}
	return nil
}

// DSN はpgx向けの接続文字列を返します
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.DBName,
		d.SSLMode,
	)
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

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: "1s", "500ms"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
