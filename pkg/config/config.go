package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Announcements AnnouncementsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AnnouncementsConfig tunes announcement listing, publishing and statistics.
type AnnouncementsConfig struct {
	// Publishers maps a caller role to the roles it may target. The raw form is
	// "admin:all;doctor:doctor,nurse".
	Publishers        map[string][]string
	DefaultPageSize   int
	MaxPageSize       int
	StatsCacheTTL     time.Duration
	StatsRefreshCron  string
	StatsRefreshOn    bool
	RoleCacheSize     int
	RoleCacheTTL      time.Duration
	RefreshWorkers    int
	RefreshMaxRetries int
	RefreshRetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Announcements = AnnouncementsConfig{
		Publishers:        parsePublishers(v.GetString("ANNOUNCEMENT_PUBLISHERS")),
		DefaultPageSize:   v.GetInt("ANNOUNCEMENT_DEFAULT_PAGE_SIZE"),
		MaxPageSize:       v.GetInt("ANNOUNCEMENT_MAX_PAGE_SIZE"),
		StatsCacheTTL:     parseDuration(v.GetString("ANNOUNCEMENT_STATS_CACHE_TTL"), 5*time.Minute),
		StatsRefreshCron:  v.GetString("ANNOUNCEMENT_STATS_REFRESH_CRON"),
		StatsRefreshOn:    v.GetBool("ENABLE_STATS_REFRESH"),
		RoleCacheSize:     v.GetInt("ANNOUNCEMENT_ROLE_CACHE_SIZE"),
		RoleCacheTTL:      parseDuration(v.GetString("ANNOUNCEMENT_ROLE_CACHE_TTL"), 10*time.Minute),
		RefreshWorkers:    v.GetInt("STATS_REFRESH_WORKERS"),
		RefreshMaxRetries: v.GetInt("STATS_REFRESH_RETRIES"),
		RefreshRetryDelay: parseDuration(v.GetString("STATS_REFRESH_RETRY_DELAY"), 5*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "clinic_records")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ANNOUNCEMENT_PUBLISHERS", "admin:all")
	v.SetDefault("ANNOUNCEMENT_DEFAULT_PAGE_SIZE", 20)
	v.SetDefault("ANNOUNCEMENT_MAX_PAGE_SIZE", 100)
	v.SetDefault("ANNOUNCEMENT_STATS_CACHE_TTL", "5m")
	v.SetDefault("ANNOUNCEMENT_STATS_REFRESH_CRON", "*/5 * * * *")
	v.SetDefault("ENABLE_STATS_REFRESH", false)
	v.SetDefault("ANNOUNCEMENT_ROLE_CACHE_SIZE", 1024)
	v.SetDefault("ANNOUNCEMENT_ROLE_CACHE_TTL", "10m")
	v.SetDefault("STATS_REFRESH_WORKERS", 1)
	v.SetDefault("STATS_REFRESH_RETRIES", 3)
	v.SetDefault("STATS_REFRESH_RETRY_DELAY", "5s")
}

// parsePublishers reads "role:target,target;role:target" into a role -> targets map.
// Entries without targets are dropped.
func parsePublishers(raw string) map[string][]string {
	result := make(map[string][]string)
	for _, entry := range strings.Split(raw, ";") {
		role, targets, found := strings.Cut(strings.TrimSpace(entry), ":")
		role = strings.ToLower(strings.TrimSpace(role))
		if !found || role == "" {
			continue
		}
		parsed := splitAndTrim(strings.ToLower(targets))
		if len(parsed) == 0 {
			continue
		}
		result[role] = parsed
	}
	return result
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
