package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr  string
	CORSOrigins []string

	DBDriver   string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBPath     string

	RedisAddr     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret      string
	JWTExpireHours int
	APIKeyHeader   string

	// Log configuration
	LogLevel      string
	LogFilename   string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool

	// Task tracking
	TaskStatusTTL        time.Duration
	TaskResultTTL        time.Duration
	TaskProgressInterval time.Duration
	TaskSyncInterval     time.Duration
	ModelCacheTTL        time.Duration

	// Worker
	WorkerConcurrency     int
	WorkerMonitorInterval time.Duration
	ActiveUserWindow      time.Duration
	NotifyWebhookURL      string

	// Artifact storage
	StorageType        string
	StorageDir         string
	OSSEndpoint        string
	OSSRegion          string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	OSSBucketName      string
	OSSRoleArn         string

	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisFullAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisAddr, c.RedisPort)
}

// OSSEnabled reports whether enough OSS settings are present to talk to a bucket.
func (c *Config) OSSEnabled() bool {
	return c.OSSEndpoint != "" && c.OSSBucketName != "" && c.OSSAccessKeyID != ""
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		// Ignore error if .env file is not found
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return &Config{
		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBPath:     getEnv("DB_PATH", "data/modelhub.db"),

		RedisAddr:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTExpireHours: getEnvAsInt("JWT_EXPIRE_HOURS", 72),
		APIKeyHeader:   getEnv("API_KEY_HEADER", "X-API-Key"),

		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogFilename:   getEnv("LOG_FILENAME", "logs/app.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvAsBool("LOG_COMPRESS", true),

		TaskStatusTTL:        getEnvAsDuration("TASK_STATUS_TTL", 72*time.Hour),
		TaskResultTTL:        getEnvAsDuration("TASK_RESULT_TTL", 7*24*time.Hour),
		TaskProgressInterval: getEnvAsDuration("TASK_PROGRESS_INTERVAL", 5*time.Second),
		TaskSyncInterval:     getEnvAsDuration("TASK_SYNC_INTERVAL", 30*time.Second),
		ModelCacheTTL:        getEnvAsDuration("MODEL_CACHE_TTL", time.Minute),

		WorkerConcurrency:     getEnvAsInt("WORKER_CONCURRENCY", 10),
		WorkerMonitorInterval: getEnvAsDuration("WORKER_MONITOR_INTERVAL", 30*time.Second),
		ActiveUserWindow:      getEnvAsDuration("ACTIVE_USER_WINDOW", 30*time.Minute),
		NotifyWebhookURL:      os.Getenv("NOTIFY_WEBHOOK_URL"),

		StorageType:        getEnv("STORAGE_TYPE", "local"),
		StorageDir:         getEnv("STORAGE_DIR", "data/artifacts"),
		OSSEndpoint:        os.Getenv("OSS_ENDPOINT"),
		OSSRegion:          os.Getenv("OSS_REGION"),
		OSSAccessKeyID:     os.Getenv("OSS_ACCESS_KEY_ID"),
		OSSAccessKeySecret: os.Getenv("OSS_ACCESS_KEY_SECRET"),
		OSSBucketName:      os.Getenv("OSS_BUCKET_NAME"),
		OSSRoleArn:         os.Getenv("OSS_ROLE_ARN"),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("90s", "72h") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
