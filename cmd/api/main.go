package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"clausebook/api/internal/app"
	"clausebook/api/internal/config"
	"clausebook/api/internal/gitrepo"
	"clausebook/api/internal/icons"
	"clausebook/api/internal/search"
	"clausebook/api/internal/session"
	"clausebook/api/internal/store"
	"clausebook/api/internal/tokens"
	"clausebook/api/internal/util"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		util.Log.Fatalf("invalid configuration: %v", err)
	}
	if err := util.SetLogLevel(cfg.LogLevel); err != nil {
		util.Log.Fatalf("invalid configuration: %v", err)
	}
	ctx := context.Background()

	db, dataStore, err := openStore(ctx, cfg)
	if err != nil {
		util.Log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, dataStore.Dialect()); err != nil {
		util.Log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		util.Log.Fatalf("failed to create repos dir: %v", err)
	}
	gitService := gitrepo.New(cfg.ReposDir)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewFallback(dataStore))

	registry := tokens.Default()
	if cfg.TokensFile != "" {
		registry, err = tokens.LoadFile(cfg.TokensFile)
		if err != nil {
			util.Log.Fatalf("token catalogue: %v", err)
		}
	}

	catalogue, err := iconCatalogue(cfg)
	if err != nil {
		util.Log.Fatalf("icon catalogue: %v", err)
	}

	var leases *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		leases, err = session.NewRedisStore(cfg.RedisURL, cfg.LeaseTTL)
		if err != nil {
			util.Log.Fatalf("redis connection failed: %v", err)
		}
		defer leases.Close()
		util.Log.WithField("ttl", cfg.LeaseTTL).Info("edit leases stored in redis")
	} else {
		util.Log.Warn("REDIS_URL is empty, edit sessions are disabled")
	}

	service, err := app.New(cfg, app.Dependencies{
		Store:  dataStore,
		Git:    gitService,
		Search: searchService,
		Leases: leases,
		Tokens: registry,
		Icons:  catalogue,
	})
	if err != nil {
		util.Log.Fatalf("service setup failed: %v", err)
	}
	go service.Reindex(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		util.Log.WithField("addr", cfg.Addr).WithField("driver", cfg.DatabaseDriver).Info("Clausebook API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Log.WithError(err).Error("shutdown error")
	}
}

func openStore(ctx context.Context, cfg config.Config) (*sql.DB, *store.SQLStore, error) {
	if cfg.DatabaseDriver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, err
		}
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, store.NewSQLiteStore(db), nil
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return db, store.NewPostgresStore(db), nil
}

func iconCatalogue(cfg config.Config) (icons.Catalogue, error) {
	switch cfg.IconSource {
	case "minio":
		return icons.NewMinio(icons.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Prefix:    cfg.MinioPrefix,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "http":
		return icons.NewRemote(cfg.IconCatalogueURL), nil
	default:
		return icons.NewStatic(), nil
	}
}
