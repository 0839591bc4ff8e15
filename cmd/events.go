/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/internal/mq"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events",
}

// eventsTailCmd prints every domain event as one JSON line until interrupted.
var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print domain events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("no message queue configured; set MQ_BACKEND")
		}
		defer queue.Close()

		enc := json.NewEncoder(os.Stdout)
		err = events.Tail(ctx, queue, cfg.MQ.EventsChannel, logger, func(evt events.Event) {
			if err := enc.Encode(evt); err != nil {
				logger.Error("write event", "err", err)
			}
		})
		if err != nil && !errors.Is(err, ctx.Err()) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
