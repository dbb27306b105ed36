// Package main provides the CLI entry point for procurevoice.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	version = "dev"

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "procurevoice",
		Short: "Voice assistant for a B2B procurement portal",
		Long: titleStyle.Render("procurevoice") + `

A bilingual (English and Hindi) voice assistant for buyers and suppliers:
material prices, suppliers, order status, delivery and reply drafting.

` + dimStyle.Render("Use 'procurevoice [command] --help' for more information."),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default ./procurevoice.yaml or ~/.procurevoice/procurevoice.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newChatCmd(flags),
		newVoicesCmd(flags),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("procurevoice %s\n", version)
		},
	}
}
