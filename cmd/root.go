package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "payroll",
	Short: "Fleet payroll settlement service",
	Long:  `Maintains per-load pay ledgers and runs driver settlements through approval, payment and accounting export`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
