package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "fleetdeck-api",
	Short: "Fleetdeck job dispatch service",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
}
