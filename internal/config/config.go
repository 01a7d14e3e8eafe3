package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port      string `yaml:"port"`
	BaseURL   string `yaml:"base_url"`
	StaticDir string `yaml:"static_dir"`

	// Database
	DBDriver string `yaml:"db_driver"` // "sqlite" or "postgres"
	DBPath   string `yaml:"db_path"`   // SQLite file path
	DBURL    string `yaml:"db_url"`    // PostgreSQL connection string

	// Auth
	JWTSecret    string   `yaml:"jwt_secret"`
	AuthDisabled bool     `yaml:"auth_disabled"`
	DevUserKey   string   `yaml:"dev_user_key"`  // owner used when auth is disabled
	OperatorKeys []string `yaml:"operator_keys"` // users allowed to run inbox imports

	// Preferences store
	PrefsBackend  string `yaml:"prefs_backend"` // "db" or "redis"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Inbox import
	InboxDir        string `yaml:"inbox_dir"`
	InboxOwner      string `yaml:"inbox_owner"`     // owner key for rows without one
	ImportSchedule  string `yaml:"import_schedule"` // cron expression
	ImportOnStartup bool   `yaml:"import_on_startup"`
	ProgressEvery   int    `yaml:"progress_every"`

	// Backend-as-a-service export source
	BaaSBaseURL   string  `yaml:"baas_base_url"`
	BaaSAppID     string  `yaml:"baas_app_id"`
	BaaSAPIKey    string  `yaml:"baas_api_key"`
	BaaSRateLimit float64 `yaml:"baas_rate_limit"` // requests per second

	LogLevel string `yaml:"log_level"`
}

// Load reads the optional YAML file at CONFIG_PATH and then applies
// environment overrides. Env always wins over the file.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		BaseURL:        "http://localhost:8080",
		StaticDir:      "./frontend/dist",
		DBDriver:       "sqlite",
		DBPath:         "./data/logbook.db",
		DevUserKey:     "local",
		PrefsBackend:   "db",
		RedisAddr:      "localhost:6379",
		InboxDir:       "./data/inbox",
		ImportSchedule: "*/15 * * * *",
		ProgressEvery:  100,
		BaaSRateLimit:  2,
		LogLevel:       "info",
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.DBURL = getEnv("DATABASE_URL", c.DBURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.AuthDisabled = getEnvBool("AUTH_DISABLED", c.AuthDisabled)
	c.DevUserKey = getEnv("DEV_USER_KEY", c.DevUserKey)
	c.OperatorKeys = getEnvList("OPERATOR_KEYS", c.OperatorKeys)
	c.PrefsBackend = getEnv("PREFS_BACKEND", c.PrefsBackend)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.InboxDir = getEnv("INBOX_DIR", c.InboxDir)
	c.InboxOwner = getEnv("INBOX_OWNER", c.InboxOwner)
	c.ImportSchedule = getEnv("IMPORT_SCHEDULE", c.ImportSchedule)
	c.ImportOnStartup = getEnvBool("IMPORT_ON_STARTUP", c.ImportOnStartup)
	c.ProgressEvery = getEnvInt("IMPORT_PROGRESS_EVERY", c.ProgressEvery)
	c.BaaSBaseURL = getEnv("BAAS_BASE_URL", c.BaaSBaseURL)
	c.BaaSAppID = getEnv("BAAS_APP_ID", c.BaaSAppID)
	c.BaaSAPIKey = getEnv("BAAS_API_KEY", c.BaaSAPIKey)
	c.BaaSRateLimit = getEnvFloat("BAAS_RATE_LIMIT", c.BaaSRateLimit)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	val = strings.ToLower(val)
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsOperator reports whether the user key may run operator tasks. With auth
// disabled the dev user is the only user and always counts.
func (c *Config) IsOperator(key string) bool {
	if c.AuthDisabled && key == c.DevUserKey {
		return true
	}
	for _, k := range c.OperatorKeys {
		if k == key {
			return true
		}
	}
	return false
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}
