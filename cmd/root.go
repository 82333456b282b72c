package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/revwatch/revwatch/internal/output"
	"github.com/revwatch/revwatch/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "revwatch",
	Short: "Change-triggered AI code review",
	Long: `revwatch watches a source directory and runs an AI review pipeline
whenever a file settles after editing. Each run appends a review to a
shared log and writes an auto-corrected copy of the file. It also
exposes the reviewer over HTTP and MCP for one-off snippets.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/revwatch/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "revwatch")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVWATCH")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "revwatch")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "revwatch.db"))
	viper.SetDefault("history.enabled", true)
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("watch.dir", ".")
	viper.SetDefault("watch.extensions", []string{".py"})
	viper.SetDefault("watch.debounce", time.Second)
	viper.SetDefault("watch.output_dir", "")
	viper.SetDefault("inference.provider", "ollama")
	viper.SetDefault("inference.model", "")
	viper.SetDefault("inference.base_url", "")
	viper.SetDefault("inference.api_key", "")
	viper.SetDefault("inference.timeout", 120*time.Second)
	viper.SetDefault("inference.max_tokens", 1024)
	viper.SetDefault("inference.max_retries", 0)
	viper.SetDefault("rules.path", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is initialized lazily, only when commands actually
	// need it. This lets config/version/analyze run without a db.
}

// getStore returns the shared store, initializing it on first call.
// Returns (nil, nil) when run history is disabled.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}
	if !viper.GetBool("history.enabled") {
		return nil, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
