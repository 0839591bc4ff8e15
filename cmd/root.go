/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/tasktracker/apiserver/config"
	"github.com/tasktracker/apiserver/internal/logging"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tasktracker",
	Short: "Multi-user task tracking API server",
	Long: `tasktracker serves a REST API where users register, authenticate
and manage their own to-do items.

Configuration comes from an optional TOML file (--config or CONFIG_FILE)
overridden by environment variables.`,
	SilenceUsage: true,
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
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a TOML config file")
}

// loadConfig reads configuration and builds the logger every command uses.
func loadConfig() (config.Config, *log.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(cfg.Log, os.Stderr), nil
}
