package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func setRequired(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN == "" {
		t.Error("MySQL DSN should not be empty")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.ACME.RetryCeiling != 3 {
		t.Errorf("Expected retry ceiling 3, got %d", cfg.ACME.RetryCeiling)
	}
	if cfg.ACME.RaceCooldownSec != 600 {
		t.Errorf("Expected race cooldown 600, got %d", cfg.ACME.RaceCooldownSec)
	}
	if cfg.ACMEWorker.IntervalSec != 40 || cfg.ACMEWorker.BatchSize != 10 {
		t.Errorf("Unexpected worker defaults: %+v", cfg.ACMEWorker)
	}
	if cfg.JWT.ExpireMinutes != 1440 {
		t.Errorf("Expected JWT expiry 1440 minutes, got %d", cfg.JWT.ExpireMinutes)
	}
	if len(cfg.DNS.Nameservers) != 2 {
		t.Errorf("Expected 2 default nameservers, got %v", cfg.DNS.Nameservers)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"missing dsn", "MYSQL_DSN"},
		{"missing jwt secret", "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")

			if _, err := Load(); err == nil {
				t.Errorf("Expected error when %s is missing", tt.unset)
			}
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_DB", "5")
	t.Setenv("REDIS_ENABLED", "0")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("BOT_OWNER_IDS", "1, 2")
	t.Setenv("BOT_ADMIN_IDS", "3")
	t.Setenv("ACME_INLINE", "false")
	t.Setenv("DNS_NAMESERVERS", "9.9.9.9:53")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Redis.Addr != "redis.example.com:6379" || cfg.Redis.DB != 5 || cfg.Redis.Enabled {
		t.Errorf("Unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("Expected HTTPAddr :9090, got %s", cfg.HTTPAddr)
	}
	if !reflect.DeepEqual(cfg.Bot.OwnerIDs, []int64{1, 2}) {
		t.Errorf("Expected owner ids [1 2], got %v", cfg.Bot.OwnerIDs)
	}
	if !reflect.DeepEqual(cfg.Bot.AdminIDs, []int64{3}) {
		t.Errorf("Expected admin ids [3], got %v", cfg.Bot.AdminIDs)
	}
	if cfg.ACME.Inline {
		t.Error("Expected inline processing to be disabled")
	}
	if !reflect.DeepEqual(cfg.DNS.Nameservers, []string{"9.9.9.9:53"}) {
		t.Errorf("Unexpected nameservers: %v", cfg.DNS.Nameservers)
	}
}

func TestLoad_InvalidIDs(t *testing.T) {
	setRequired(t)
	t.Setenv("BOT_OWNER_IDS", "1,abc")

	if _, err := Load(); err == nil {
		t.Error("Expected error for non-numeric owner id")
	}
}

func TestLoadFromINI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certbot.ini")
	content := `[mysql]
dsn = root:pw@tcp(db:3306)/certbot

[jwt]
secret = ini-secret
expire_seconds = 3600

[acme]
retry_ceiling = 5
failed_ttl_minutes = 60
inline = false
interval_sec = 15

[bot]
owner_ids = 42
default_quota = 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write ini: %v", err)
	}
	t.Setenv("ACME_RETRY_CEILING", "7")

	cfg, err := LoadFromINI(path)
	if err != nil {
		t.Fatalf("LoadFromINI() failed: %v", err)
	}

	if cfg.MySQL.DSN != "root:pw@tcp(db:3306)/certbot" {
		t.Errorf("Unexpected DSN: %s", cfg.MySQL.DSN)
	}
	if cfg.JWT.ExpireMinutes != 60 {
		t.Errorf("Expected JWT expiry 60 minutes, got %d", cfg.JWT.ExpireMinutes)
	}
	// env wins over the file
	if cfg.ACME.RetryCeiling != 7 {
		t.Errorf("Expected retry ceiling 7, got %d", cfg.ACME.RetryCeiling)
	}
	if cfg.ACME.FailedTTLMinutes != 60 || cfg.ACME.Inline {
		t.Errorf("Unexpected acme config: %+v", cfg.ACME)
	}
	if cfg.ACMEWorker.IntervalSec != 15 {
		t.Errorf("Expected interval 15, got %d", cfg.ACMEWorker.IntervalSec)
	}
	if !reflect.DeepEqual(cfg.Bot.OwnerIDs, []int64{42}) || cfg.Bot.DefaultQuota != 3 {
		t.Errorf("Unexpected bot config: %+v", cfg.Bot)
	}
}

func TestLoadFromINI_MissingFile(t *testing.T) {
	if _, err := LoadFromINI(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Error("Expected error for missing INI file")
	}
}
