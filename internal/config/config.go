// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 公開URL設定
	PublicBaseURL string // ステータス確認URLを組み立てる際のベースURL

	// ジョブ/キュー設定
	RedisURL         string // ジョブストア・残高台帳用Redis接続URL
	QueueRedisURL    string // Asynq用Redis接続URL（空の場合はRedisURLを使用）
	DispatchBackend  string // ジョブ投入方式 (asynq, direct)
	DispatchMaxRetry int    // キュー投入時の最大リトライ回数
	JobExpireHours   int    // ジョブレコードの有効期限（時間）

	// 外部変換プロバイダ設定
	KlapAPIURL  string  // Klap APIのベースURL
	KlapAPIKey  string  // Klap APIのBearerトークン
	KlapRateRPS float64 // Klap API呼び出しのレート上限（毎秒リクエスト数）

	// ポーリング設定
	TaskPollAttempts     int // 解析タスクのポーリング最大試行回数
	TaskPollIntervalMS   int // 解析タスクのポーリング間隔（ミリ秒）
	ExportPollAttempts   int // エクスポートのポーリング最大試行回数
	ExportPollIntervalMS int // エクスポートのポーリング間隔（ミリ秒）

	// 通知設定
	TelegramBotToken string // 完了通知用のTelegram Botトークン（空の場合は通知無効）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// 公開URL設定
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		// ジョブ/キュー設定
		RedisURL:         getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		QueueRedisURL:    getEnv("QUEUE_REDIS_URL", ""),
		DispatchBackend:  getEnv("DISPATCH_BACKEND", "asynq"),
		DispatchMaxRetry: getEnvAsInt("DISPATCH_MAX_RETRY", 2),
		JobExpireHours:   getEnvAsInt("JOB_EXPIRE_HOURS", 24),

		// 外部変換プロバイダ設定
		KlapAPIURL:  getEnv("KLAP_API_URL", "https://api.klap.app/v2"),
		KlapAPIKey:  getEnv("KLAP_API_KEY", ""),
		KlapRateRPS: getEnvAsFloat("KLAP_RATE_RPS", 2.0),

		// ポーリング設定
		TaskPollAttempts:     getEnvAsInt("TASK_POLL_ATTEMPTS", 90),
		TaskPollIntervalMS:   getEnvAsInt("TASK_POLL_INTERVAL_MS", 10000),
		ExportPollAttempts:   getEnvAsInt("EXPORT_POLL_ATTEMPTS", 30),
		ExportPollIntervalMS: getEnvAsInt("EXPORT_POLL_INTERVAL_MS", 5000),

		// 通知設定
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// QueueURL はAsynqが使用するRedis接続URLを返します。
func (c *Config) QueueURL() string {
	if c.QueueRedisURL != "" {
		return c.QueueRedisURL
	}
	return c.RedisURL
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発ではプロバイダ認証情報は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.KlapAPIKey == "" {
			return fmt.Errorf("KLAP_API_KEY is required in release mode")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
	}

	switch c.DispatchBackend {
	case "asynq", "direct":
	default:
		return fmt.Errorf("DISPATCH_BACKEND must be asynq or direct (received: %s)", c.DispatchBackend)
	}

	if c.TaskPollAttempts <= 0 || c.ExportPollAttempts <= 0 {
		return fmt.Errorf("poll attempts must be positive")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
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

// getEnvAsFloat は環境変数を浮動小数点数として取得します。
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
