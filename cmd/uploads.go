package cmd

import (
	"context"
	"os"

	"github.com/shopmonkeyus/procure/internal/config"
	"github.com/shopmonkeyus/procure/internal/storage"
	"github.com/spf13/cobra"
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Manage attachment upload storage",
}

var uploadsSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the upload location and verify it is writable",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd).WithPrefix("[uploads]")
		location := mustFlagString(cmd, config.KeyUploads, true)
		ctx := context.Background()
		s, err := storage.New(ctx, log, location)
		if err != nil {
			log.Error("error creating upload storage: %s", err)
			os.Exit(1)
		}
		if err := s.Setup(ctx); err != nil {
			log.Error("error setting up upload storage: %s", err)
			os.Exit(1)
		}
		log.Info("upload storage ready at %s", location)
	},
}

func init() {
	rootCmd.AddCommand(uploadsCmd)
	uploadsCmd.AddCommand(uploadsSetupCmd)
	uploadsSetupCmd.Flags().String(config.KeyUploads, config.DefaultUploads, "the upload location, a directory or s3://bucket/prefix")
}
