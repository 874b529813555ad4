package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/shopmonkeyus/procure/internal/auditor"
	"github.com/shopmonkeyus/procure/internal/util"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Create missing suppliers referenced by invoices and purchase orders",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd).WithPrefix("[audit]")
		cfg := loadConfig(cmd, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		db := openDatabase(ctx, log, cfg)
		defer db.Close()
		t := openTracker(ctx, log, cfg)
		defer t.Close()
		events := openEvents(log, cfg)
		defer events.Close()

		var report *auditor.Report
		err := util.RunWithSpinner(ctx, "Auditing suppliers...", mustFlagBool(cmd, "silent", false), func(ctx context.Context) error {
			var err error
			report, err = auditAndRecord(ctx, log, db, t, events)
			return err
		})
		if err != nil {
			fmt.Println(util.Failed(err.Error()))
			os.Exit(1)
		}
		for _, name := range report.Inserted {
			fmt.Println(util.Applied("created supplier " + name))
		}
		fmt.Println(report.String())
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
