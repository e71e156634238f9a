// Command ragctl runs ingestion, transcription and single questions against
// the same configuration as the API server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/docchat/backend/internal/app"
	"github.com/zhouzirui/docchat/backend/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Operate the document chat backend from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("[WARN] 无法加载 %s，改用系统环境变量: %v", envFile, err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading configuration")
	rootCmd.AddCommand(newIngestCmd(), newTranscribeCmd(), newAskCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openApp loads configuration and the document store. The caller must Close it.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("配置加载失败: %w", err)
	}
	return app.New(ctx, cfg)
}
