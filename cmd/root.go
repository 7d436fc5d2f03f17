package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxpilot application
var rootCmd = &cobra.Command{
	Use:   "inboxpilot",
	Short: "Multi-tenant inbox assistant",
	Long: `inboxpilot is a multi-tenant inbox assistant. It classifies emails,
extracts sponsorship deal terms and compiles natural-language sort
commands into structured rules.

It can run as:
  - An MCP (Model Context Protocol) server for AI assistants (default)
  - A one-shot triage CLI for a single tenant`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxpilot version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTriageCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
