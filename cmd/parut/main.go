package main

import (
	"fmt"
	"os"

	"github.com/Reuben-Percival/parut/internal/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parut",
	Short: "Queued paru operations that never block the interface",
}

func main() {
	// Optional; env vars work without a .env file
	_ = godotenv.Load()

	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
