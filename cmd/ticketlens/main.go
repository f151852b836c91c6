package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

var noColor = !term.IsTerminal(int(os.Stderr.Fd()))

var rootCmd = &cobra.Command{
	Use:   "ticketlens",
	Short: "Analyze tickets into clarifying questions, test cases, and risks",
	Long: `ticketlens reads a ticket (flat JSON, a Jira REST issue, or flags), works out
which kind of feature it describes, and produces clarifying questions, test
cases, risk areas, and technical considerations. Results are stored locally
and can be searched, exported, and backed up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if off, _ := cmd.Flags().GetBool("no-color"); off {
			noColor = true
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ticketlens version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(
		analyzeCmd,
		showCmd,
		listCmd,
		recentCmd,
		searchCmd,
		statsCmd,
		timelineCmd,
		exportCmd,
		backupCmd,
		feedbackCmd,
		deleteCmd,
		purgeCmd,
		reindexCmd,
		serveCmd,
		stopCmd,
		statusCmd,
		submitCmd,
		jobCmd,
		configCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
