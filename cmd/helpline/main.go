// Command helpline runs the human-in-the-loop phone helpline: an agent
// answers caller questions from a learned knowledge base and escalates
// the rest to human supervisors, whose answers flow back into the
// knowledge base.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "helpline",
	Short:   "AI phone agent with human supervisor escalation",
	Version: version,
	Long: `helpline answers caller questions from its knowledge base. Questions it
cannot answer become help requests for a human supervisor; supervisor
answers are texted back to the caller and learned for next time.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	// Local overrides from .env, if present.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
