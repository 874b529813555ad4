package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopmonkeyus/go-common/logger"
	csys "github.com/shopmonkeyus/go-common/sys"
	"github.com/shopmonkeyus/procure/internal/api"
	"github.com/shopmonkeyus/procure/internal/auditor"
	"github.com/shopmonkeyus/procure/internal/config"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/shopmonkeyus/procure/internal/notification"
	"github.com/shopmonkeyus/procure/internal/reconciler"
	"github.com/shopmonkeyus/procure/internal/schema"
	"github.com/shopmonkeyus/procure/internal/server"
	"github.com/shopmonkeyus/procure/internal/storage"
	"github.com/shopmonkeyus/procure/internal/tracker"
	"github.com/shopmonkeyus/procure/internal/util"
	"github.com/spf13/cobra"
)

// reconcileAndRecord runs the reconciler and stores the outcome in the tracker and the event sink.
func reconcileAndRecord(ctx context.Context, log logger.Logger, db *database.DB, catalog *schema.Catalog, t *tracker.Tracker, events *notification.Publisher) (*reconciler.Result, error) {
	var previous *tracker.ReconcileRecord
	if t != nil {
		var rec tracker.ReconcileRecord
		if found, err := t.GetRecord(tracker.ReconcileKey, &rec); err != nil {
			log.Warn("error reading last reconcile: %s", err)
		} else if found {
			previous = &rec
		}
	}
	if previous.Changed(catalog.Fingerprint()) {
		log.Info("schema catalog %s differs from the last reconciled catalog", catalog.Fingerprint())
	} else {
		log.Debug("schema catalog %s unchanged since %s", catalog.Fingerprint(), previous.Completed)
	}
	result, err := reconciler.New(log, db).Reconcile(ctx, catalog)
	if err != nil {
		return nil, err
	}
	record := tracker.ReconcileRecord{
		Fingerprint: result.Fingerprint,
		Completed:   result.Started.Add(result.Duration),
		Applied:     len(result.Applied),
		Skipped:     len(result.Skipped),
		Duration:    result.Duration,
	}
	for _, a := range result.Advisories {
		record.Advisories = append(record.Advisories, a.String())
		events.Notify(notification.ReconcileAdvisory, map[string]string{
			"kind":   a.Kind.String(),
			"object": a.Object,
			"cause":  a.Cause(),
			"error":  a.Err.Error(),
		})
	}
	if t != nil {
		if err := t.SetRecord(tracker.ReconcileKey, record); err != nil {
			log.Warn("error recording reconcile: %s", err)
		}
	}
	events.Notify(notification.ReconcileCompleted, record)
	return result, nil
}

// auditAndRecord runs the integrity audit and stores the report in the tracker and the event sink.
func auditAndRecord(ctx context.Context, log logger.Logger, db *database.DB, t *tracker.Tracker, events *notification.Publisher) (*auditor.Report, error) {
	report, err := auditor.New(log, db).AuditAndRepair(ctx, auditor.Suppliers, auditor.SupplierDependents)
	if err != nil {
		events.Notify(notification.AuditFailed, map[string]string{"error": err.Error()})
		return nil, err
	}
	if t != nil {
		if err := t.SetRecord(tracker.AuditKey, report); err != nil {
			log.Warn("error recording audit: %s", err)
		}
	}
	if report.Changed() {
		events.Notify(notification.AuditCompleted, report)
	} else {
		log.Debug("audit found no orphaned suppliers")
	}
	return report, nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the server",
	Long: "Run the server.\n\n" +
		util.GenerateHelpSection("Startup", "The database schema is reconciled before the server accepts requests and the integrity audit\nruns once in the background shortly after.\n"),
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd).WithPrefix("[server]")
		defer util.RecoverPanic(log)

		cfg := loadConfig(cmd, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		db := openDatabase(ctx, log, cfg)
		t := openTracker(ctx, log, cfg)
		events := openEvents(log, cfg)

		catalog := catalogFor(cfg)
		result, err := reconcileAndRecord(ctx, log, db, catalog, t, events)
		if err != nil {
			log.Fatal("error reconciling schema: %s", err)
		}
		if len(result.Advisories) > 0 {
			log.Warn("schema reconciled with %d advisory failures", len(result.Advisories))
		}

		uploads, err := storage.New(ctx, log, cfg.Uploads)
		if err != nil {
			log.Fatal("error creating upload storage: %s", err)
		}
		if err := uploads.Setup(ctx); err != nil {
			log.Fatal("error setting up upload storage: %s", err)
		}

		handler, err := api.New(api.Config{
			Logger:  log,
			DB:      db,
			Storage: uploads,
			Tracker: t,
			Version: Version,
		})
		if err != nil {
			log.Fatal("error creating api: %s", err)
		}

		audit := auditor.Schedule(ctx, log, cfg.AuditDelay, func(ctx context.Context) error {
			_, err := auditAndRecord(ctx, log, db, t, events)
			return err
		})

		srv := server.New(server.Config{
			Logger:          log,
			Addr:            fmt.Sprintf(":%d", cfg.Port),
			Handler:         handler.Handler(),
			ShutdownTimeout: cfg.ShutdownTimeout,
		})
		srv.OnShutdown("requests", handler.Drain)
		srv.OnShutdown("audit", func(ctx context.Context) error {
			if !audit.Fired() {
				log.Debug("cancelling pending audit")
			}
			go audit.Stop()
			select {
			case <-audit.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		srv.RegisterCloser("database", db)
		srv.RegisterCloser("tracker", t)
		srv.RegisterCloser("events", server.CloserFunc(events.Close))

		go func() {
			<-csys.CreateShutdownChannel()
			log.Info("shutting down")
			cancel()
		}()

		started := time.Now()
		if err := srv.Run(ctx); err != nil {
			log.Error("server stopped with error after %v: %s", time.Since(started), err)
			return
		}
		log.Info("👋 Bye")
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().Int(config.KeyPort, config.DefaultPort, "the port to listen on")
	serverCmd.Flags().String(config.KeyUploads, config.DefaultUploads, "the upload location, a directory or s3://bucket/prefix")
	serverCmd.Flags().Duration(config.KeyAuditDelay, auditor.DefaultDelay, "how long after startup the integrity audit runs")
	serverCmd.Flags().Duration(config.KeyShutdownTimeout, config.DefaultShutdownTimeout, "the maximum time to wait for a graceful shutdown")
	serverCmd.Flags().Int(config.KeyMaxOpenConns, database.DefaultMaxOpenConns, "the maximum number of open database connections")
	serverCmd.Flags().Int(config.KeyMaxIdleConns, database.DefaultMaxIdleConns, "the maximum number of idle database connections")
}
