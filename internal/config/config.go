package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Forecast ForecastConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	LogLevel string
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver            string // postgres (lib/pq) or pgx
	Host              string
	Port              string
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MaxOpenConns      int
	MaxConcurrentOps  int64
	ExcludedDatabases []string
}

// DSN returns the connection string for a database on the configured server.
func (c DatabaseConfig) DSN(dbName string) string {
	if dbName == "" {
		dbName = c.DBName
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, dbName, c.SSLMode)
}

type ForecastConfig struct {
	LeadTimeDays    int
	MinDays         int
	MinWeeks        int
	TopN            int
	WindowMonths    int
	ZThresholds     string
	ZMax            float64
	ZDefault        float64
	MinSigma        float64
	IntervalDivisor float64
	TailDays        int
	Granularity     string
	Workers         int
	ParallelSources int
	Timezone        string

	ForecasterURL            string
	ForecasterTimeoutSeconds int

	OutputDir       string
	UpsertLevels    bool
	Cron            string
	ScheduleEnabled bool
	ScheduleTarget  string // Database argument used by scheduled runs
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	ForecastTTLSeconds int
	LevelsTTLSeconds   int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

type DriveConfig struct {
	CredentialsJSON string
	SalesFolderID   string
	DownloadDir     string
}

var (
	once     sync.Once
	instance *Config
)

// Load reads .env (when present) and the environment once per process.
func Load() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		instance = build(viper.GetViper())
		ensureDir(instance.Forecast.OutputDir)
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 300)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("LOG_LEVEL", "")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pos")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_CONCURRENT_OPS", 10)
	v.SetDefault("DB_EXCLUDED_DATABASES", []string{"postgres", "template0", "template1"})

	v.SetDefault("FORECAST_LEAD_TIME_DAYS", 7)
	v.SetDefault("FORECAST_MIN_DAYS", 20)
	v.SetDefault("FORECAST_MIN_WEEKS", 4)
	v.SetDefault("FORECAST_TOP_N", 0)
	v.SetDefault("FORECAST_WINDOW_MONTHS", 12)
	v.SetDefault("FORECAST_Z_THRESHOLDS", "0.5:1.65,1.0:2.0")
	v.SetDefault("FORECAST_Z_MAX", 2.33)
	v.SetDefault("FORECAST_Z_DEFAULT", 1.65)
	v.SetDefault("FORECAST_MIN_SIGMA", 1.0)
	v.SetDefault("FORECAST_INTERVAL_DIVISOR", 3.29)
	v.SetDefault("FORECAST_TAIL_DAYS", 7)
	v.SetDefault("FORECAST_GRANULARITY", "location_item_variation")
	v.SetDefault("FORECAST_WORKERS", runtime.NumCPU())
	v.SetDefault("FORECAST_PARALLEL_SOURCES", 1)
	v.SetDefault("FORECAST_TIMEZONE", "UTC")
	v.SetDefault("FORECASTER_URL", "")
	v.SetDefault("FORECASTER_TIMEOUT_SECONDS", 60)
	v.SetDefault("FORECAST_OUTPUT_DIR", "./data/forecasts")
	v.SetDefault("FORECAST_UPSERT_LEVELS", true)
	v.SetDefault("FORECAST_CRON", "0 3 * * *")
	v.SetDefault("FORECAST_SCHEDULE_ENABLED", false)
	v.SetDefault("FORECAST_SCHEDULE_TARGET", "-1")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_FORECAST_TTL_SECONDS", 86400)
	v.SetDefault("CACHE_LEVELS_TTL_SECONDS", 60)

	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "forecasts")
	v.SetDefault("STORAGE_REGION", "")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("STORAGE_PREFIX", "replenishment")

	v.SetDefault("GOOGLE_DRIVE_CREDENTIALS_JSON", "")
	v.SetDefault("SALES_DRIVE_FOLDER_ID", "")
	v.SetDefault("DRIVE_DOWNLOAD_DIR", "./data/drive")
}

func build(v *viper.Viper) *Config {
	setDefaults(v)
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: list(v, "SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:            strings.ToLower(v.GetString("DB_DRIVER")),
			Host:              v.GetString("DB_HOST"),
			Port:              v.GetString("DB_PORT"),
			User:              v.GetString("DB_USER"),
			Password:          v.GetString("DB_PASSWORD"),
			DBName:            v.GetString("DB_NAME"),
			SSLMode:           v.GetString("DB_SSLMODE"),
			MaxOpenConns:      v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxConcurrentOps:  v.GetInt64("DB_MAX_CONCURRENT_OPS"),
			ExcludedDatabases: list(v, "DB_EXCLUDED_DATABASES"),
		},
		Forecast: ForecastConfig{
			LeadTimeDays:             v.GetInt("FORECAST_LEAD_TIME_DAYS"),
			MinDays:                  v.GetInt("FORECAST_MIN_DAYS"),
			MinWeeks:                 v.GetInt("FORECAST_MIN_WEEKS"),
			TopN:                     v.GetInt("FORECAST_TOP_N"),
			WindowMonths:             v.GetInt("FORECAST_WINDOW_MONTHS"),
			ZThresholds:              v.GetString("FORECAST_Z_THRESHOLDS"),
			ZMax:                     v.GetFloat64("FORECAST_Z_MAX"),
			ZDefault:                 v.GetFloat64("FORECAST_Z_DEFAULT"),
			MinSigma:                 v.GetFloat64("FORECAST_MIN_SIGMA"),
			IntervalDivisor:          v.GetFloat64("FORECAST_INTERVAL_DIVISOR"),
			TailDays:                 v.GetInt("FORECAST_TAIL_DAYS"),
			Granularity:              v.GetString("FORECAST_GRANULARITY"),
			Workers:                  v.GetInt("FORECAST_WORKERS"),
			ParallelSources:          v.GetInt("FORECAST_PARALLEL_SOURCES"),
			Timezone:                 v.GetString("FORECAST_TIMEZONE"),
			ForecasterURL:            v.GetString("FORECASTER_URL"),
			ForecasterTimeoutSeconds: v.GetInt("FORECASTER_TIMEOUT_SECONDS"),
			OutputDir:                v.GetString("FORECAST_OUTPUT_DIR"),
			UpsertLevels:             v.GetBool("FORECAST_UPSERT_LEVELS"),
			Cron:                     v.GetString("FORECAST_CRON"),
			ScheduleEnabled:          v.GetBool("FORECAST_SCHEDULE_ENABLED"),
			ScheduleTarget:           v.GetString("FORECAST_SCHEDULE_TARGET"),
		},
		Cache: CacheConfig{
			Enabled:            v.GetBool("CACHE_ENABLED"),
			RedisURL:           v.GetString("REDIS_URL"),
			RedisHost:          v.GetString("REDIS_HOST"),
			RedisPort:          v.GetString("REDIS_PORT"),
			RedisPassword:      v.GetString("REDIS_PASSWORD"),
			RedisDB:            v.GetInt("REDIS_DB"),
			ForecastTTLSeconds: v.GetInt("CACHE_FORECAST_TTL_SECONDS"),
			LevelsTTLSeconds:   v.GetInt("CACHE_LEVELS_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("STORAGE_ENABLED"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
		},
		Drive: DriveConfig{
			CredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
			SalesFolderID:   v.GetString("SALES_DRIVE_FOLDER_ID"),
			DownloadDir:     v.GetString("DRIVE_DOWNLOAD_DIR"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}
}

// list reads a slice setting that may arrive from the environment as
// "a,b,c"; viper only splits on whitespace.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Location returns the reporting timezone for CSV timestamps.
func (c ForecastConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Warn().Str("timezone", c.Timezone).Msg("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

// ForecasterTimeout is the per-call deadline for the forecasting service.
func (c ForecastConfig) ForecasterTimeout() time.Duration {
	return time.Duration(c.ForecasterTimeoutSeconds) * time.Second
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}
}
