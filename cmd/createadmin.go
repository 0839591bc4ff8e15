/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tasktracker/apiserver/internal/db"
	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/internal/mq"
	"github.com/tasktracker/apiserver/internal/services"
	"github.com/tasktracker/apiserver/internal/store"
	"github.com/tasktracker/apiserver/types"
)

var adminFlags struct {
	username  string
	firstName string
	lastName  string
	password  string
}

// createAdminCmd represents the createadmin command
var createAdminCmd = &cobra.Command{
	Use:   "createadmin",
	Short: "Create an administrator account",
	Long: `Creates an administrator account directly in the database. The same
username and password rules apply as for self-registration.

The password may be given with --password or through ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		password := adminFlags.password
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}

		ctx := cmd.Context()
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("failed to connect to message queue: %w", err)
		}
		if queue != nil {
			defer queue.Close()
		}

		tokens := services.NewTokenIssuer(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
		credentials := services.NewCredentialService(
			store.NewAccountRepository(conn),
			tokens,
			events.NewPublisher(queue, cfg.MQ.EventsChannel, logger),
		)

		account, err := credentials.CreateAccount(ctx, services.RegisterInput{
			Username:  adminFlags.username,
			FirstName: adminFlags.firstName,
			LastName:  adminFlags.lastName,
			Password:  password,
		}, types.RoleAdmin)
		if err != nil {
			return fmt.Errorf("create administrator: %w", err)
		}

		logger.Info("administrator created", "id", account.ID, "username", account.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)
	createAdminCmd.Flags().StringVar(&adminFlags.username, "username", "", "username of the new administrator")
	createAdminCmd.Flags().StringVar(&adminFlags.firstName, "first-name", "", "first name")
	createAdminCmd.Flags().StringVar(&adminFlags.lastName, "last-name", "", "last name")
	createAdminCmd.Flags().StringVar(&adminFlags.password, "password", "", "password (defaults to $ADMIN_PASSWORD)")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("first-name")
}
