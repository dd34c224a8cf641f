package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/GreenHouse007/world-builder-sub000/internal/app"
	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
	"github.com/GreenHouse007/world-builder-sub000/internal/config"
	"github.com/GreenHouse007/world-builder-sub000/internal/email"
	"github.com/GreenHouse007/world-builder-sub000/internal/export"
	"github.com/GreenHouse007/world-builder-sub000/internal/history"
	"github.com/GreenHouse007/world-builder-sub000/internal/lock"
	"github.com/GreenHouse007/world-builder-sub000/internal/logging"
	"github.com/GreenHouse007/world-builder-sub000/internal/search"
	"github.com/GreenHouse007/world-builder-sub000/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.LogLevel)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, store.Migrations()); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.HistoryDir).Msg("failed to create history dir")
	}

	dataStore := store.NewPostgresStore(db)

	var locker lock.Locker = lock.NewLocal(cfg.LockWait)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisLock, err := lock.NewRedis(cfg.RedisURL, cfg.LockTTL, cfg.LockWait, log)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisLock.Close()
		locker = redisLock
		log.Info().Msg("using redis for world locks")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db), log)
	defer searchService.Close()
	go searchService.ReindexAllFromPG(ctx)

	var archive export.Archiver
	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		minioArchive, err := export.NewMinIOArchive(ctx, export.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("export archive disabled")
		} else {
			archive = minioArchive
		}
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Info().Msg("smtp not configured, invitation emails disabled")
	}

	service := app.New(cfg, dataStore, app.Deps{
		Locker:   locker,
		Search:   searchService,
		History:  history.New(cfg.HistoryDir),
		Mailer:   mailer,
		Exporter: export.NewService(archive, log),
		Log:      log,
	})

	httpServer := app.NewHTTPServer(service, auth.NewHMACResolver(cfg.TokenSecret), cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("world builder api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
