package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"p9e.in/qareports/config"
)

var (
	Version   = "dev"
	BuildTime = ""
)

var settings config.Settings

var rootCmd = &cobra.Command{
	Use:   "qareports",
	Short: "Quality assurance inspections for childcare schools",
	Long: `qareports runs the inspection API (serve), maintains its database
(migrate, seed) and drives the offline field client (field).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		settings = config.Load()
		config.SetLogLevel(settings.LogLevel)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version:   %s\n", Version)
		fmt.Printf("BuildTime: %s\n", BuildTime)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := config.Connect(settings)
		if err != nil {
			return err
		}
		if err := config.Migrations(db); err != nil {
			return fmt.Errorf("could not run migrations: %w", err)
		}
		config.GetLogger().Info("✅ migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create demo schools in an empty database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := config.Connect(settings)
		if err != nil {
			return err
		}
		if err := config.Migrations(db); err != nil {
			return fmt.Errorf("could not run migrations: %w", err)
		}
		return config.SeedSchools(db)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, migrateCmd, seedCmd, serveCmd, fieldCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		config.GetLogger().WithError(err).Error("❌ command failed")
		os.Exit(1)
	}
}
