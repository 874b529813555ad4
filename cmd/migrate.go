package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopmonkeyus/procure/internal/reconciler"
	"github.com/shopmonkeyus/procure/internal/util"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Reconcile the database with the latest schema",
	Long: "Reconcile the database with the latest schema.\n\n" +
		util.GenerateHelpSection("Dry run", "Use --dry-run to print the differences and the statements that would be executed\nwithout changing the database.\n"),
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd).WithPrefix("[migrate]")
		cfg := loadConfig(cmd, log)
		dryRun := mustFlagBool(cmd, "dry-run", false)
		silent := mustFlagBool(cmd, "silent", false)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		db := openDatabase(ctx, log, cfg)
		defer db.Close()
		catalog := catalogFor(cfg)

		if dryRun {
			diff, stmts, err := reconciler.New(log, db).Plan(ctx, catalog)
			if err != nil {
				log.Error("error planning migration: %s", err)
				os.Exit(1)
			}
			if diff.Empty() {
				fmt.Println(util.Applied("schema is up-to-date, only idempotent statements would run"))
			} else {
				diff.Format(os.Stdout)
			}
			for _, stmt := range stmts {
				fmt.Printf("%s;\n", stmt.SQL)
			}
			return
		}

		t := openTracker(ctx, log, cfg)
		defer t.Close()
		events := openEvents(log, cfg)
		defer events.Close()

		started := time.Now()
		var result *reconciler.Result
		err := util.RunWithSpinner(ctx, "Reconciling schema...", silent, func(ctx context.Context) error {
			var err error
			result, err = reconcileAndRecord(ctx, log, db, catalog, t, events)
			return err
		})
		if err != nil {
			fmt.Println(util.Failed(err.Error()))
			os.Exit(1)
		}
		for _, stmt := range result.Applied {
			fmt.Println(util.Applied(stmt.String()))
		}
		for _, advisory := range result.Advisories {
			fmt.Println(util.Advisory(advisory.String()))
		}
		if len(result.Advisories) > 0 {
			log.Warn("database schema reconciled with %d advisory failures, took %v", len(result.Advisories), time.Since(started))
			return
		}
		log.Info("database schema is up-to-date, took %v", time.Since(started))
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("dry-run", false, "print the plan without changing the database")
}
