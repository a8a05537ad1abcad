// Package main provides the entry point for the snapsolver agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "solver_agent",
	Short: "Automated screenshot problem-solver agent",
	Long:  "solver_agent batches captured screenshots into problem groups, solves them through LLM collaborators, and writes descriptive Markdown results.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
