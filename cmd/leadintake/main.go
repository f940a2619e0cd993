package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brconnect/leadintake/internal/api"
	"github.com/brconnect/leadintake/internal/notify"
	"github.com/brconnect/leadintake/internal/store"
	"github.com/brconnect/leadintake/internal/util"
	"github.com/brconnect/leadintake/internal/verify"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for leadintake state data
	DefaultStateDir = "/var/lib/leadintake"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadintake.db"
	// DefaultTypingDelay is the synthetic pause before the next prompt
	DefaultTypingDelay = 800 * time.Millisecond
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	storeOpts := buildStoreOptions(flags)
	verifyOpts := buildVerifyOptions(flags)
	notifier := buildNotifier()
	apiOpts := buildAPIOptions(flags, config)

	slog.Info("Bootstrapping leadintake with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, verifyOpts, notifier, apiOpts); err != nil {
		slog.Error("leadintake failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("leadintake exited successfully")
}

// Config holds environment configuration
type Config struct {
	DbDriver         string
	DatabaseURL      string
	StateDir         string
	APIAddr          string
	LookupURL        string
	TypingDelay      time.Duration
	NotifyRetryDelay time.Duration
	Debug            bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDriver  *string
	dbDSN     *string
	apiAddr   *string
	lookupURL *string
}

// initializeLogger sets up structured logging; LEADINTAKE_DEBUG switches to
// debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("LEADINTAKE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DbDriver:         os.Getenv("DB_DRIVER"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("LEADINTAKE_STATE_DIR"),
		APIAddr:          os.Getenv("API_ADDR"),
		LookupURL:        os.Getenv("CNPJ_LOOKUP_URL"),
		TypingDelay:      util.ParseDurationEnv("TYPING_DELAY", DefaultTypingDelay),
		NotifyRetryDelay: util.ParseDurationEnv("NOTIFY_RETRY_DELAY", 0),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEADINTAKE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LEADINTAKE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"CNPJ_LOOKUP_URL_SET", config.LookupURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "Directory for state data"),
		dbDriver:  flag.String("db-driver", config.DbDriver, "Database driver: sqlite3 or postgres"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "Database DSN (file path for sqlite3)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API listen address"),
		lookupURL: flag.String("lookup-url", config.LookupURL, "CNPJ registry lookup base URL"),
	}
	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates the state directory when the SQLite backend
// is in use.
func ensureDirectoriesExist(flags Flags) error {
	if *flags.dbDriver == "postgres" {
		return nil
	}
	return os.MkdirAll(*flags.stateDir, 0755)
}

func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDriver == "postgres" {
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

func buildVerifyOptions(flags Flags) []verify.Option {
	var verifyOpts []verify.Option
	if *flags.lookupURL != "" {
		verifyOpts = append(verifyOpts, verify.WithBaseURL(*flags.lookupURL))
	}
	return verifyOpts
}

// buildNotifier wires the Twilio notifier when credentials are configured and
// falls back to the log-only notifier otherwise.
func buildNotifier() notify.Notifier {
	notifier, err := notify.NewTwilioNotifier()
	if err != nil {
		slog.Warn("Twilio notifier not configured, completion notices will only be logged", "error", err)
		return notify.NewLogNotifier()
	}
	return notifier
}

func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.dbDriver != "" {
		apiOpts = append(apiOpts, api.WithDBDriver(*flags.dbDriver))
	}
	apiOpts = append(apiOpts, api.WithTypingDelay(config.TypingDelay))
	if config.NotifyRetryDelay > 0 {
		apiOpts = append(apiOpts, api.WithNotifyRetryDelay(config.NotifyRetryDelay))
	}
	return apiOpts
}
