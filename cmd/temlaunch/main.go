package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "temlaunch",
	Short: "TRON Evolution launcher: profiles, mods and GridEngine.ini",
	Long: `temlaunch applies launch profiles to GridEngine.ini, keeps the TEM and
XDead mods in sync with the game directory, and starts the game.

Run "temlaunch serve" to expose the launcher to a UI shell over HTTP and MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(modsCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the launcher version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "temlaunch %s\n", version)
	},
}
