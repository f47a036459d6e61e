// Command sweeper runs the ingest service's two lifecycle-reclamation
// tasks: purging expired chunk staging directories and purging stored
// objects past their retention horizon. It is a thin CLI wrapper around
// the sweeper package, parsing flags and running the sweeps once or on
// a schedule.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ro11032005/mediaingest/internal/config"
	"github.com/ro11032005/mediaingest/internal/logging"
	"github.com/ro11032005/mediaingest/internal/sweeper"
	"github.com/ro11032005/mediaingest/internal/upload"
)

func main() {
	once := flag.Bool("once", false, "run each sweep task once and exit, instead of looping on a schedule")
	mode := flag.String("mode", "all", "which sweep to run: staging, objects, or all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogPath, os.Getenv("INGEST_DEBUG") != "")
	defer logger.Sync()

	staging, err := upload.NewChunkStaging(cfg.StagingRoot)
	if err != nil {
		logger.Fatal("init chunk staging", zap.Error(err))
	}
	objects, err := upload.NewObjectStore(cfg.StorageRoot)
	if err != nil {
		logger.Fatal("init object store", zap.Error(err))
	}

	sw := sweeper.New(staging, objects,
		time.Duration(cfg.ChunkTimeoutSecs)*time.Second,
		time.Duration(cfg.RetentionDays)*24*time.Hour,
		logger)

	runStaging := *mode == "all" || *mode == "staging"
	runObjects := *mode == "all" || *mode == "objects"

	if *once {
		now := time.Now().UTC()
		if runStaging {
			if _, err := sw.PurgeExpiredStaging(now); err != nil {
				logger.Error("staging sweep returned errors", zap.Error(err))
			}
		}
		if runObjects {
			if _, err := sw.PurgeExpiredObjects(now); err != nil {
				logger.Error("object sweep returned errors", zap.Error(err))
			}
		}
		return
	}

	stop := make(chan struct{})
	if runStaging {
		go sw.RunStagingLoop(time.Hour, stop)
	}
	if runObjects {
		go sw.RunObjectLoop(24*time.Hour, stop)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	close(stop)
}
