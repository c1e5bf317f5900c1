package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/blacklist-hub/blacklist/api"
	"github.com/blacklist-hub/blacklist/api/admin"
	"github.com/blacklist-hub/blacklist/collection"
	"github.com/blacklist-hub/blacklist/collection/authlog"
	"github.com/blacklist-hub/blacklist/collection/configstore"
	"github.com/blacklist-hub/blacklist/collection/protection"
	"github.com/blacklist-hub/blacklist/collection/status"
	"github.com/blacklist-hub/blacklist/collector"
	"github.com/blacklist-hub/blacklist/database/dbcore"
	logutil "github.com/blacklist-hub/blacklist/utils/log"
)

var (
	listenAddr  string
	dataDir     string
	dbDriver    string
	dbDSN       string
	logFile     string
	collectCron string
	cleanupDays int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the collection server",
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8542", "listen address")
	serverCmd.Flags().StringVarP(&dataDir, "data", "d", "./data", "data directory")
	serverCmd.Flags().StringVar(&dbDriver, "db-driver", envOr("DB_DRIVER", "sqlite"), "database driver (sqlite, mysql)")
	serverCmd.Flags().StringVar(&dbDSN, "db-dsn", os.Getenv("DB_DSN"), "database DSN; defaults to <data>/blacklist.db for sqlite")
	serverCmd.Flags().StringVar(&logFile, "log-file", "", "optional rotated log file")
	serverCmd.Flags().StringVar(&collectCron, "collect-cron", "0 0 * * * *", "cron spec (with seconds) for periodic collection")
	serverCmd.Flags().IntVar(&cleanupDays, "auth-retention-days", 7, "auth attempt retention in days")
	rootCmd.AddCommand(serverCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runServer(cmd *cobra.Command, args []string) error {
	if logFile != "" {
		logutil.EnableFileLogging(logFile, 10, 3)
		logutil.SetupGlobalLogger(slog.LevelInfo)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	if dbDSN == "" {
		dbDSN = filepath.Join(dataDir, "blacklist.db")
	}
	if err := dbcore.Initialize(dbDriver, dbDSN); err != nil {
		return err
	}
	db := dbcore.GetDBInstance()

	store := configstore.New(filepath.Join(dataDir, "collection_config.json"), db)
	tracker := authlog.New(db, store)
	guard := protection.New(dataDir, store)
	aggregator := status.New(store, guard, tracker, db)

	registry := collector.NewRegistry()
	if err := registry.Register(collector.NewRegtech()); err != nil {
		return err
	}
	if err := registry.Register(collector.NewSecudium()); err != nil {
		return err
	}

	coordinator := collection.New(store, tracker, guard, aggregator, registry, dataDir)

	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(collectCron, func() {
		runScheduledCollection(coordinator)
	}); err != nil {
		return err
	}
	// Daily retention sweep at 03:10.
	if _, err := scheduler.AddFunc("0 10 3 * * *", func() {
		if cleaned, err := coordinator.CleanupAuthAttempts(cleanupDays); err == nil && cleaned > 0 {
			slog.Info("auth attempt retention sweep", "records_cleaned", cleaned)
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := gin.Default()
	r.GET("/api/health", api.Health(db))
	admin.NewCollectionAPI(coordinator).RegisterRoutes(r.Group("/api/admin"))

	slog.Info("collection server listening", "addr", listenAddr, "data_dir", dataDir)
	return r.Run(listenAddr)
}

// runScheduledCollection triggers every source that currently passes the
// authoritative gate. The coordinator re-checks the gates itself; this loop
// only avoids pointless dispatches.
func runScheduledCollection(coordinator *collection.Coordinator) {
	for _, source := range coordinator.KnownSources() {
		if !coordinator.IsCollectionEnabled(source) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		result := coordinator.TriggerCollection(ctx, source)
		cancel()
		if result.Success {
			slog.Info("scheduled collection finished",
				"source", source, "collected", result.CollectedCount)
		} else {
			slog.Warn("scheduled collection failed",
				"source", source, "error", result.Error, "message", result.Message)
		}
	}
}
