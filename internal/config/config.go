package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL      MySQLConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Log        LogConfig
	Migrate    bool
	HTTPAddr   string
	ACME       ACMEConfig
	ACMEWorker ACMEWorkerConfig
	DNS        DNSConfig
	Bot        BotConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // text or json
}

// ACMEConfig holds the certificate tool settings
type ACMEConfig struct {
	Path             string
	Server           string
	ExportPath       string
	DownloadBaseURL  string
	ToolTimeoutSec   int
	RetryCeiling     int
	FailedTTLMinutes int // 0 disables expiry of failed orders
	RaceCooldownSec  int
	Inline           bool
}

// ACMEWorkerConfig holds background processor configuration
type ACMEWorkerConfig struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
}

// DNSConfig holds the TXT lookup settings
type DNSConfig struct {
	Nameservers []string
	TimeoutSec  int
}

// BotConfig holds the chat front-end settings
type BotConfig struct {
	OwnerIDs      []int64
	AdminIDs      []int64
	DefaultQuota  int
	SessionTTLSec int
}

type (
	stringGetter func(envKey, iniSection, iniKey, defaultValue string) string
	intGetter    func(envKey, iniSection, iniKey string, defaultValue int) int
	boolGetter   func(envKey, iniSection, iniKey string, defaultValue bool) bool
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	getValue := func(envKey, _, _, defaultValue string) string {
		return getEnv(envKey, defaultValue)
	}
	getValueInt := func(envKey, _, _ string, defaultValue int) int {
		return getEnvInt(envKey, defaultValue)
	}
	getValueBool := func(envKey, _, _ string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return parseBool(value)
		}
		return defaultValue
	}

	return build(getValue, getValueInt, getValueBool)
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return parseBool(value)
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	return build(getValue, getValueInt, getValueBool)
}

func build(getValue stringGetter, getValueInt intGetter, getValueBool boolGetter) (*Config, error) {
	ownerIDs, err := parseIDs(getValue("BOT_OWNER_IDS", "bot", "owner_ids", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid bot owner ids: %w", err)
	}
	adminIDs, err := parseIDs(getValue("BOT_ADMIN_IDS", "bot", "admin_ids", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid bot admin ids: %w", err)
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Enabled:  getValueBool("REDIS_ENABLED", "redis", "enabled", true),
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_SECONDS", "jwt", "expire_seconds", 86400) / 60,
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "go_certbot"),
		},
		Log: LogConfig{
			Level:  getValue("LOG_LEVEL", "log", "level", "info"),
			Format: getValue("LOG_FORMAT", "log", "format", "text"),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		ACME: ACMEConfig{
			Path:             getValue("ACME_PATH", "acme", "path", "/root/.acme.sh/acme.sh"),
			Server:           getValue("ACME_SERVER", "acme", "server", "letsencrypt"),
			ExportPath:       getValue("CERT_EXPORT_PATH", "acme", "export_path", "/www/wwwroot/cert.com/ssl/"),
			DownloadBaseURL:  getValue("CERT_DOWNLOAD_BASE_URL", "acme", "download_base_url", ""),
			ToolTimeoutSec:   getValueInt("ACME_TOOL_TIMEOUT_SEC", "acme", "tool_timeout_sec", 180),
			RetryCeiling:     getValueInt("ACME_RETRY_CEILING", "acme", "retry_ceiling", 3),
			FailedTTLMinutes: getValueInt("ACME_FAILED_TTL_MINUTES", "acme", "failed_ttl_minutes", 0),
			RaceCooldownSec:  getValueInt("ACME_RACE_COOLDOWN_SEC", "acme", "race_cooldown_sec", 600),
			Inline:           getValueBool("ACME_INLINE", "acme", "inline", true),
		},
		ACMEWorker: ACMEWorkerConfig{
			Enabled:     getValueBool("ACME_WORKER_ENABLED", "acme", "worker_enabled", true),
			IntervalSec: getValueInt("ACME_WORKER_INTERVAL_SEC", "acme", "interval_sec", 40),
			BatchSize:   getValueInt("ACME_WORKER_BATCH_SIZE", "acme", "batch_size", 10),
		},
		DNS: DNSConfig{
			Nameservers: splitList(getValue("DNS_NAMESERVERS", "dns", "nameservers", "1.1.1.1:53,8.8.8.8:53")),
			TimeoutSec:  getValueInt("DNS_TIMEOUT_SEC", "dns", "timeout_sec", 5),
		},
		Bot: BotConfig{
			OwnerIDs:      ownerIDs,
			AdminIDs:      adminIDs,
			DefaultQuota:  getValueInt("BOT_DEFAULT_QUOTA", "bot", "default_quota", 1),
			SessionTTLSec: getValueInt("BOT_SESSION_TTL_SEC", "bot", "session_ttl_sec", 1800),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.Log.Format)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBool(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseIDs parses a comma separated list of chat user ids
func parseIDs(value string) ([]int64, error) {
	var ids []int64
	for _, item := range splitList(value) {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
