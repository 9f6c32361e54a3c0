package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "go_certbot/api/v1"
	"go_certbot/internal/acme"
	"go_certbot/internal/auditlog"
	"go_certbot/internal/auth"
	"go_certbot/internal/bot"
	"go_certbot/internal/cache"
	"go_certbot/internal/config"
	"go_certbot/internal/db"
	"go_certbot/internal/dnscheck"
	"go_certbot/internal/order"
	"go_certbot/internal/processor"
	"go_certbot/internal/query"
	"go_certbot/internal/quota"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to an INI config file (environment only when empty)")
	issueToken := flag.String("issue-token", "", "print a bot-scope token for the named front end and exit")
	flag.Parse()

	// 1. Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Log)
	auth.InitJWT(cfg.JWT.Secret)

	if *issueToken != "" {
		expireAt := time.Now().Add(time.Duration(cfg.JWT.ExpireMinutes) * time.Minute)
		token, err := auth.GenerateToken(*issueToken, auth.ScopeBot, expireAt, cfg.JWT.Issuer)
		if err != nil {
			logger.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}
	logger.Info("✓ Configuration loaded")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN, logger.IsLevelEnabled(logrus.DebugLevel)); err != nil {
		logger.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.DB); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Info("✓ Database migrated")
	}

	// 3. Initialize Redis sessions
	var sessions bot.SessionStore
	if cfg.Redis.Enabled {
		if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			logger.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer cache.Close()
		sessions = cache.NewSessionStore(cache.Client, time.Duration(cfg.Bot.SessionTTLSec)*time.Second)
	} else {
		logger.Warn("Redis disabled, conversation state is kept in memory")
		sessions = bot.NewMemorySessionStore()
	}

	// 4. Build services
	root := logrus.NewEntry(logger)
	tool := acme.NewShell(acme.ShellConfig{
		Path:    cfg.ACME.Path,
		Server:  cfg.ACME.Server,
		Timeout: time.Duration(cfg.ACME.ToolTimeoutSec) * time.Second,
	}, acme.ExecRunner{}, root)
	resolver := dnscheck.NewTXTResolver(cfg.DNS.Nameservers, time.Duration(cfg.DNS.TimeoutSec)*time.Second, root)
	audit := auditlog.New(db.DB, root)

	machine := order.NewMachine(db.DB, tool, resolver, audit, order.Options{
		RetryCeiling:     cfg.ACME.RetryCeiling,
		FailedTTLMinutes: cfg.ACME.FailedTTLMinutes,
		RaceCooldown:     time.Duration(cfg.ACME.RaceCooldownSec) * time.Second,
		Inline:           cfg.ACME.Inline,
		ExportDir:        cfg.ACME.ExportPath,
	}, root)

	users := auth.NewService(db.DB, auth.UsersConfig{
		OwnerIDs:     cfg.Bot.OwnerIDs,
		AdminIDs:     cfg.Bot.AdminIDs,
		DefaultQuota: cfg.Bot.DefaultQuota,
	})
	queries := query.NewService(machine.Store(), audit, query.Config{
		ExportDir:       cfg.ACME.ExportPath,
		DownloadBaseURL: cfg.ACME.DownloadBaseURL,
	})
	dispatcher := bot.NewDispatcher(bot.Deps{
		Users:    users,
		Machine:  machine,
		Query:    queries,
		Ledger:   quota.NewLedger(db.DB),
		Audit:    audit,
		Sessions: sessions,
	}, root)

	// 5. Start the background processor
	worker := processor.NewWorker(machine, processor.Config{
		Enabled:     cfg.ACMEWorker.Enabled,
		IntervalSec: cfg.ACMEWorker.IntervalSec,
		BatchSize:   cfg.ACMEWorker.BatchSize,
	}, root)
	worker.Start()
	defer worker.Stop()

	// 6. Serve HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	v1.SetupRouter(r, v1.Deps{
		Dispatcher: dispatcher,
		Users:      users,
		Query:      queries,
		Logger:     root,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("✓ Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromINI(path)
	}
	return config.Load()
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.StandardLogger()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("Unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
