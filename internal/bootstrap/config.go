package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 存储驱动
const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	AppEnv        string // development / production
	LogLevel      string
	ServerPort    string
	StorageDriver string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string // Redis Key 前缀

	JWTSecret         string // 为空时不校验 token，身份完全由 join-room 声明
	CORSAllowedOrigin string
	RateLimitMax      int
	RateLimitWindow   time.Duration

	ChatHistoryLimit          int
	PersistDelay              time.Duration
	PresenceReconcileSchedule string
}

// LoadConfig 从 .env (可选) 和环境变量加载配置
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		AppEnv:                    envOr("APP_ENV", "development"),
		LogLevel:                  envOr("LOG_LEVEL", "info"),
		ServerPort:                envOr("SERVER_PORT", "8080"),
		StorageDriver:             strings.ToLower(envOr("STORAGE_DRIVER", StorageMySQL)),
		DBUser:                    os.Getenv("DB_USER"),
		DBPassword:                os.Getenv("DB_PASSWORD"),
		DBHost:                    os.Getenv("DB_HOST"),
		DBPort:                    os.Getenv("DB_PORT"),
		DBName:                    os.Getenv("DB_NAME"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:                 envOr("REDIS_KEY_PREFIX", "wb:"),
		JWTSecret:                 os.Getenv("JWT_SECRET"),
		CORSAllowedOrigin:         envOr("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		PresenceReconcileSchedule: envOr("PRESENCE_RECONCILE_SCHEDULE", "@every 1m"),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Second); err != nil {
		return nil, err
	}
	if cfg.ChatHistoryLimit, err = envInt("CHAT_HISTORY_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.PersistDelay, err = envDuration("PERSIST_DELAY", 2*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageMySQL:
		if c.DBUser == "" {
			return fmt.Errorf("environment variable DB_USER must be set when STORAGE_DRIVER=%s", StorageMySQL)
		}
		if c.RedisAddr == "" {
			return fmt.Errorf("environment variable REDIS_ADDR must be set when STORAGE_DRIVER=%s", StorageMySQL)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q (want %s or %s)", c.StorageDriver, StorageMySQL, StorageMemory)
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	if c.ChatHistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be positive")
	}
	if c.PersistDelay <= 0 {
		return fmt.Errorf("PERSIST_DELAY must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", c.LogLevel)
		c.LogLevel = "info"
	}
	return nil
}

// ReconcileInterval 返回 "@every <duration>" 形式的调度间隔，供没有 asynq 调度器的内存模式使用
func (c *Config) ReconcileInterval() time.Duration {
	if d, ok := strings.CutPrefix(c.PresenceReconcileSchedule, "@every "); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(d)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return time.Minute
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return v, nil
}
