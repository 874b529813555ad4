package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/shopmonkeyus/procure/internal/api"
	"github.com/shopmonkeyus/procure/internal/tracker"
	"github.com/shopmonkeyus/procure/internal/util"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the last recorded outcome of each maintenance task",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd).WithPrefix("[status]")

		cfg := loadSettings(cmd, log)

		t := openTracker(context.Background(), log, cfg)
		defer t.Close()

		if mustFlagBool(cmd, "reset", false) {
			if err := t.DeleteKey(tracker.ReconcileKey, tracker.AuditKey, tracker.RepairKey); err != nil {
				log.Error("error resetting maintenance status: %s", err)
				os.Exit(1)
			}
			log.Info("maintenance status cleared")
			return
		}

		status, err := api.LoadMaintenanceStatus(t)
		if err != nil {
			log.Error("error reading maintenance status: %s", err)
			os.Exit(1)
		}
		status.Version = Version

		if mustFlagBool(cmd, "json", false) {
			buf, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				log.Error("error encoding status: %s", err)
				os.Exit(1)
			}
			fmt.Println(string(buf))
			return
		}

		blue := color.New(color.FgBlue, color.Bold).SprintFunc()
		black := color.New(color.FgBlack).SprintFunc()

		fmt.Printf("%s\n", blue("procure maintenance status"))
		fmt.Printf("%s\n\n", black("version: "+Version))

		if rec := status.Reconcile; rec != nil {
			fmt.Println(util.Applied(fmt.Sprintf("reconcile %s: applied=%d skipped=%d took %v", rec.Completed.Format("2006-01-02 15:04:05"), rec.Applied, rec.Skipped, rec.Duration)))
			if rec.Changed(catalogFor(cfg).Fingerprint()) {
				fmt.Println(util.Advisory("the schema catalog changed since the last reconcile, run migrate"))
			}
			for _, advisory := range rec.Advisories {
				fmt.Println(util.Advisory(advisory))
			}
		} else {
			fmt.Println(util.Advisory("reconcile has not run"))
		}
		if audit := status.Audit; audit != nil {
			fmt.Println(util.Applied("audit " + audit.Started.Format("2006-01-02 15:04:05") + ": " + audit.String()))
		} else {
			fmt.Println(util.Advisory("audit has not run"))
		}
		if rep := status.Repair; rep != nil {
			fmt.Println(util.Applied("repair: " + rep.String()))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "print the status as json")
	statusCmd.Flags().Bool("reset", false, "clear the recorded maintenance status")
}
