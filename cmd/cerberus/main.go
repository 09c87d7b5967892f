// Cerberus - secure property store for cloud applications.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fieldju/cerberus/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cerberus",
	Short: "Cerberus - secure property store for applications and IAM principals.",
	Long: `Cerberus stores application secrets encrypted at rest, bound to their
logical path. Secrets live inside safe deposit boxes, every update and delete
is archived to an immutable version history, and box metadata can be exported
and restored across environments for disaster recovery.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	rootCmd.AddCommand(secretCmd, metadataCmd, statsCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
