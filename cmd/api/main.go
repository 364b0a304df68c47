package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"logiflow/api/internal/app"
	"logiflow/api/internal/blob"
	"logiflow/api/internal/cache"
	"logiflow/api/internal/config"
	"logiflow/api/internal/docgen"
	"logiflow/api/internal/export"
	"logiflow/api/internal/search"
	"logiflow/api/internal/store"
	"logiflow/api/internal/workflow"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	if len(applied) > 0 {
		log.Printf("applied migrations: %s", strings.Join(applied, ", "))
	}

	definition, err := workflow.Load(cfg.WorkflowFile, cfg.Workflow)
	if err != nil {
		log.Fatalf("workflow: %v", err)
	}
	log.Printf("Using approval workflow %q (%d steps)", definition.Name, definition.Len())

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{
		Workflow: definition,
		Exporter: export.NewService(dataStore, cfg.ExportTimeout),
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, search.NewDBFallback(dataStore))

	if strings.TrimSpace(cfg.RedisURL) != "" {
		templateCache, err := cache.NewRedisTemplateCache(cfg.RedisURL, cfg.TemplateCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer templateCache.Close()
		log.Printf("Using Redis for checklist template cache")
		deps.Cache = templateCache
	}

	if strings.TrimSpace(cfg.BlobEndpoint) != "" {
		blobStore, err := blob.New(blob.Config{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			UseSSL:    cfg.BlobUseSSL,
			Region:    cfg.BlobRegion,
		})
		if err != nil {
			log.Fatalf("blob storage: %v", err)
		}
		deps.Blob = blobStore
	} else {
		log.Printf("WARNING: BLOB_ENDPOINT not set, uploads and downloads are disabled")
	}

	if strings.TrimSpace(cfg.DocGenURL) != "" {
		deps.DocGen = docgen.New(docgen.Config{
			BaseURL:          cfg.DocGenURL,
			Timeout:          cfg.DocGenTimeout,
			SelfLearnURL:     cfg.SelfLearnURL,
			SelfLearnTimeout: cfg.SelfLearnTimeout,
		})
	}

	service := app.New(cfg, dataStore, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.DocGenTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("LogiFlow API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := service.Close(shutdownCtx); err != nil {
		log.Printf("background work still running at shutdown: %v", err)
	}
}
