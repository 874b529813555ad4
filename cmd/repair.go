package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/shopmonkeyus/procure/internal/notification"
	"github.com/shopmonkeyus/procure/internal/repair"
	"github.com/shopmonkeyus/procure/internal/tracker"
	"github.com/shopmonkeyus/procure/internal/util"
	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Emergency removal of triggers that block writes",
	Long: "Emergency removal of triggers that block writes.\n\n" +
		util.GenerateHelpSection("Policy", "Every trigger on the ERP tables that is not in the allow-list is dropped and the safe updated_at\ntriggers are recreated. Pass --policy with a TOML file to extend the allow-list.\n"),
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd).WithPrefix("[repair]")
		cfg := loadConfig(cmd, log)
		dryRun := mustFlagBool(cmd, "dry-run", false)
		confirmed := mustFlagBool(cmd, "confirm", false)

		policy := repair.DefaultPolicy()
		if fn := mustFlagString(cmd, "policy", false); fn != "" {
			p, err := repair.LoadPolicy(fn)
			if err != nil {
				log.Error("%s", err)
				os.Exit(1)
			}
			policy = p
		}
		if mustFlagBool(cmd, "bind-invoice-date", false) {
			policy.BindInvoiceDateValidation = true
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		db := openDatabase(ctx, log, cfg)
		defer db.Close()
		repairer := repair.New(log, db)

		if dryRun {
			report, err := repairer.Plan(ctx, policy)
			if err != nil {
				log.Error("error planning repair: %s", err)
				os.Exit(1)
			}
			report.Format(os.Stdout)
			for _, stmt := range report.Statements {
				fmt.Printf("%s;\n", stmt)
			}
			return
		}

		if !confirmed {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewNote().
						Title("\n🚨 WARNING 🚨"),
					huh.NewConfirm().
						Title("YOU ARE ABOUT TO DROP EVERY TRIGGER OUTSIDE THE ALLOW-LIST").
						Affirmative("Confirm").
						Negative("Cancel").
						Value(&confirmed),
				),
			)
			form.WithTheme(huh.ThemeBase())
			if err := form.Run(); err != nil {
				if !errors.Is(err, huh.ErrUserAborted) {
					log.Error("error running form: %s", err)
					log.Info("You may use --confirm to skip this prompt")
					os.Exit(1)
				}
			}
			if !confirmed {
				os.Exit(0)
			}
		}

		t := openTracker(ctx, log, cfg)
		defer t.Close()
		events := openEvents(log, cfg)
		defer events.Close()

		report, err := repairer.Repair(ctx, policy)
		if err != nil {
			fmt.Println(util.Failed(err.Error()))
			if database.IsPermissionDenied(err) {
				log.Info("repair must run as the owner of the ERP tables")
			}
			os.Exit(1)
		}
		report.Format(os.Stdout)
		if err := t.SetRecord(tracker.RepairKey, report); err != nil {
			log.Warn("error recording repair: %s", err)
		}
		events.Notify(notification.RepairCompleted, report)
		log.Info("repair completed: %s, took %v", report, report.Duration)
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().String("policy", "", "a TOML file extending the default repair policy")
	repairCmd.Flags().Bool("dry-run", false, "print what would be dropped without changing the database")
	repairCmd.Flags().Bool("confirm", false, "skip the confirmation prompt")
	repairCmd.Flags().Bool("bind-invoice-date", false, "recreate the invoice date validation trigger after the repair")
}
