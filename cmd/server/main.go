// Command server runs the resumable chunked-upload ingest service's HTTP
// API. It does nothing but load config, wire the upload core's
// collaborators, and hand the result to net/http; the binding itself
// lives in internal/httpapi.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ro11032005/mediaingest/internal/config"
	"github.com/ro11032005/mediaingest/internal/httpapi"
	"github.com/ro11032005/mediaingest/internal/logging"
	"github.com/ro11032005/mediaingest/internal/upload"
	"github.com/ro11032005/mediaingest/internal/upload/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogPath, os.Getenv("INGEST_DEBUG") != "")
	defer logger.Sync()

	sessionStore, err := store.Open(cfg.SessionDB)
	if err != nil {
		logger.Fatal("open session store", zap.Error(err))
	}
	defer sessionStore.Close()

	staging, err := upload.NewChunkStaging(cfg.StagingRoot)
	if err != nil {
		logger.Fatal("init chunk staging", zap.Error(err))
	}

	objects, err := upload.NewObjectStore(cfg.StorageRoot)
	if err != nil {
		logger.Fatal("init object store", zap.Error(err))
	}

	dedup := upload.NewDedupIndex(cfg.StorageRoot, objects)
	metadata := upload.NewMetadataValidator(cfg.MaxFileSize, cfg.AllowedTypes)

	manager := upload.NewManager(sessionStore, staging, objects, dedup, metadata, cfg.ChunkSize, logger)
	api := httpapi.NewServer(manager, objects, dedup, cfg, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.Handler(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
