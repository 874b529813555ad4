package cmd

import (
	"context"
	"fmt"

	csys "github.com/shopmonkeyus/go-common/sys"
	"github.com/shopmonkeyus/procure/internal/notification"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print maintenance events published by other procure processes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd).WithPrefix("[events]")
		cfg := loadSettings(cmd, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-csys.CreateShutdownChannel()
			cancel()
		}()

		if err := notification.Watch(ctx, log, cfg.EventsURL, cfg.EventsCreds, func(event *notification.Event) {
			fmt.Println(event.String())
		}); err != nil {
			log.Fatal("%s", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
