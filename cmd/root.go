package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal/config"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/shopmonkeyus/procure/internal/notification"
	"github.com/shopmonkeyus/procure/internal/schema"
	"github.com/shopmonkeyus/procure/internal/tracker"
	"github.com/shopmonkeyus/procure/internal/util"
	"github.com/spf13/cobra"
)

var Version string // set in main

func mustFlagBool(cmd *cobra.Command, name string, required bool) bool {
	val, err := cmd.Flags().GetBool(name)
	if required && err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
	return val
}

func mustFlagString(cmd *cobra.Command, name string, required bool) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
	if required && val == "" {
		fmt.Printf("error: required flag --%s missing\n", name)
		os.Exit(1)
	}
	return val
}

func newLogger(cmd *cobra.Command) logger.Logger {
	level := logger.LevelInfo
	if mustFlagBool(cmd, "verbose", false) {
		level = logger.LevelTrace
	} else if mustFlagBool(cmd, "silent", false) {
		level = logger.LevelError
	}
	return logger.NewConsoleLogger(level)
}

// loadSettings resolves flags, PROCURE_* environment variables and the optional config file
// for commands that do not connect to the database.
func loadSettings(cmd *cobra.Command, log logger.Logger) *config.Config {
	v := config.New()
	if err := config.Bind(v, cmd.Flags()); err != nil {
		log.Fatal("%s", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		log.Fatal("%s", err)
	}
	return cfg
}

// loadConfig is loadSettings plus validation of everything a database command needs.
func loadConfig(cmd *cobra.Command, log logger.Logger) *config.Config {
	cfg := loadSettings(cmd, log)
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration: %s", err)
	}
	return cfg
}

func openDatabase(ctx context.Context, log logger.Logger, cfg *config.Config) *database.DB {
	db, err := database.Open(ctx, log, cfg.Database)
	if err != nil {
		log.Fatal("error connecting to database: %s", err)
	}
	return db
}

func openTracker(ctx context.Context, log logger.Logger, cfg *config.Config) *tracker.Tracker {
	t, err := tracker.NewTracker(tracker.TrackerConfig{
		Context: ctx,
		Logger:  log,
		Dir:     cfg.DataDir,
	})
	if err != nil {
		log.Fatal("error opening tracker in %s: %s", cfg.DataDir, err)
	}
	return t
}

func openEvents(log logger.Logger, cfg *config.Config) *notification.Publisher {
	events, err := notification.New(log, cfg.EventsURL, cfg.EventsCreds)
	if err != nil {
		log.Fatal("%s", err)
	}
	return events
}

func catalogFor(cfg *config.Config) *schema.Catalog {
	catalog := schema.ERPCatalog()
	if cfg.ValidateInvoiceDate {
		catalog.WithInvoiceDateValidation()
	}
	return catalog
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "procure",
	Short: "Invoicing and purchasing service with a self-healing schema",
	Long: "Invoicing and purchasing service with a self-healing schema.\n\n" +
		util.GenerateHelpSection("Configuration", "Every flag can be set with a PROCURE_ environment variable, for example PROCURE_DATABASE_URL,\nor in a TOML file passed with --config.\n"),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String(config.KeyConfig, "", "an optional TOML config file")
	rootCmd.PersistentFlags().String(config.KeyDatabaseURL, "", "the postgres connection url")
	rootCmd.PersistentFlags().String(config.KeyDatabaseDriver, database.DriverPQ, "the database driver: postgres or pgx")
	rootCmd.PersistentFlags().Bool(config.KeyDatabaseSSL, false, "require ssl for the database connection")
	rootCmd.PersistentFlags().String(config.KeyDataDir, config.DefaultDataDir, "the directory for local maintenance state")
	rootCmd.PersistentFlags().String(config.KeyEventsURL, "", "an optional nats url to publish maintenance events to")
	rootCmd.PersistentFlags().String(config.KeyEventsCreds, "", "the nats credentials file for --events-url")
	rootCmd.PersistentFlags().Bool(config.KeyValidateInvoiceDate, false, "bind the invoice date validation trigger to invoices")
	rootCmd.PersistentFlags().Bool("verbose", false, "turn on verbose logging")
	rootCmd.PersistentFlags().Bool("silent", false, "turn off all logging except errors")
}
