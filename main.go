package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/portasync/portasync/config"
	"github.com/portasync/portasync/jsonsql"
	"github.com/portasync/portasync/schema"
	"github.com/portasync/portasync/store"
	"github.com/portasync/portasync/syncer"
)

func init() {
	godotenv.Load()
}

func main() {
	configPath := flag.String("config", "", "path to a config file (optional)")
	force := flag.Bool("force", false, "sync even when the cache is still fresh")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.CachePath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open cache database")
	}
	defer st.Close()

	registry := schema.NewRegistry()
	if cfg.SchemaPath != "" {
		if err := schema.LoadDocumentFile(cfg.SchemaPath, registry); err != nil {
			log.WithError(err).Fatal("Failed to load schema document")
		}
		log.WithField("tables", len(registry.ListTables())).Info("Schemas loaded")
	}

	client := jsonsql.NewHTTPClient(cfg.RemoteURL, cfg.RequestTimeout)
	manager := syncer.New(client, st, registry,
		schema.CacheStrategy(cfg.DefaultStrategy), log)

	results := manager.SyncAll(ctx, cfg.MaxConcurrentSyncs, syncer.Options{
		Force:       *force,
		TriggeredBy: "cli",
	})

	failed := 0
	for table, res := range results {
		if res.Status == syncer.StatusFailed {
			failed++
			log.WithFields(logrus.Fields{
				"table": table,
				"error": res.Error,
			}).Error("Table sync failed")
		}
	}

	if _, err := st.PruneHistory(ctx, cfg.HistoryRetention); err != nil {
		log.WithError(err).Warn("Failed to prune sync history")
	}

	if stats, err := st.Stats(ctx); err == nil {
		log.WithFields(logrus.Fields{
			"tables":     stats.TotalTables,
			"rows":       stats.TotalRows,
			"size_bytes": stats.DatabaseSizeBytes,
		}).Info("Cache state")
	}

	if failed > 0 {
		os.Exit(1)
	}
}
