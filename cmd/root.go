package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/output"
	"github.com/joescharf/issuetracker/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	logger    *slog.Logger

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "issuetracker",
	Short: "Issue tracker - project-scoped issue records over HTTP",
	Long: `issuetracker stores issues grouped by project name and serves them
through a JSON API at /api/issues/{project}. The same operations are
available from the command line and as MCP tools.`,
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
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints a command failure, through the UI once it exists.
func reportError(err error) {
	if ui == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	ui.Error("%v", err)
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/issuetracker/config.yaml)")
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// A .env file in the working directory may supply ISSUETRACKER_* values.
	// Variables already set in the environment take precedence.
	_ = godotenv.Load()

	viper.SetEnvPrefix("ISSUETRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional.
	_ = viper.ReadInConfig()
}

// setDefaults registers default values for every config key.
func setDefaults() {
	dir, _ := configDirFunc()

	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "issuetracker.db"))
	viper.SetDefault("store", storeSQLite)
	viper.SetDefault("port", 3000)
	viper.SetDefault("log.level", "info")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	logger = newLogger()
	slog.SetDefault(logger)

	// The store is opened lazily so config/version run without a database.
}

// newLogger builds the process logger from log.level; --verbose forces debug.
func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

const (
	storeSQLite = "sqlite"
	storeMemory = "memory"
)

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	var s store.Store
	switch kind := viper.GetString("store"); kind {
	case storeMemory:
		ui.VerboseLog("Using in-memory store (data is lost on exit)")
		s = store.NewMemoryStore()
	case storeSQLite, "":
		ui.VerboseLog("Using SQLite store at %s", viper.GetString("db_path"))
		sq, err := store.NewSQLiteStore(viper.GetString("db_path"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s = sq
	default:
		return nil, fmt.Errorf("unknown store %q (want %s or %s)", kind, storeSQLite, storeMemory)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getService returns an issues.Service over the shared store.
func getService() (*issues.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return issues.NewService(s, issues.WithLogger(getLogger())), nil
}

func getLogger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
