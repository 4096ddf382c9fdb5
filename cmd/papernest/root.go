package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/papernest/internal/config"
)

var (
	configPath string
	envName    string
)

var rootCmd = &cobra.Command{
	Use:   "papernest",
	Short: "Research paper library with retrieval-grounded chat",
	Long: `papernest stores research papers, extracts their text and answers
questions from the most relevant passages of each paper.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// .env is optional; real environment variables win over it.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (overrides --env)")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "config environment: local, prod (default $ENV or local)")
}

// loadConfig resolves --config, then --env, then $ENV.
func loadConfig() (config.Config, string, error) {
	env := envName
	if env == "" {
		env = config.GetEnv()
	}
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		return cfg, env, err
	}
	cfg, err := config.Load(env)
	return cfg, env, err
}
