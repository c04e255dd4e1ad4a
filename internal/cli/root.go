package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// flagFields copies the field behind each persistent flag. Flags set on
// the command line win over the config file and environment.
var flagFields = map[string]func(dst, src *Config){
	"remote":             func(d, s *Config) { d.RemoteURL = s.RemoteURL },
	"request-timeout":    func(d, s *Config) { d.RequestTimeout = s.RequestTimeout },
	"token-file":         func(d, s *Config) { d.TokenFile = s.TokenFile },
	"storage":            func(d, s *Config) { d.Storage.Type = s.Storage.Type },
	"sqlite-path":        func(d, s *Config) { d.Storage.SQLitePath = s.Storage.SQLitePath },
	"redis-url":          func(d, s *Config) { d.Storage.RedisURL = s.Storage.RedisURL },
	"server":             func(d, s *Config) { d.ServerURL = s.ServerURL },
	"api-key":            func(d, s *Config) { d.APIKey = s.APIKey },
	"output":             func(d, s *Config) { d.Output = s.Output },
	"verbose":            func(d, s *Config) { d.Verbose = s.Verbose },
	"host":               func(d, s *Config) { d.Listen.Host = s.Listen.Host },
	"port":               func(d, s *Config) { d.Listen.Port = s.Listen.Port },
	"reconcile-interval": func(d, s *Config) { d.ReconcileInterval = s.ReconcileInterval },
	"fetch-concurrency":  func(d, s *Config) { d.FetchConcurrency = s.FetchConcurrency },
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "relsync",
		Short: "Relationship state synchronization engine",
		Long: `relsync keeps a local, cached view of an account's relationships
(friends, outgoing and incoming requests) in sync with a remote service.

Run the daemon with "relsync run". It applies pushed events, reconciles
against the authoritative snapshot and serves the state over a local
JSON and SSE API that the client commands talk to.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(cmd, configPath); err != nil {
				return err
			}
			client = NewClient(cfg.ServerURL, cfg.APIKey)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", os.Getenv("RELSYNC_CONFIG"), "YAML config file (env: RELSYNC_CONFIG)")
	flags.StringVar(&cfg.RemoteURL, "remote", cfg.RemoteURL, "Remote service URL (env: RELSYNC_REMOTE_URL)")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Remote request timeout (env: RELSYNC_REQUEST_TIMEOUT)")
	flags.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: RELSYNC_TOKEN_FILE)")
	flags.StringVar(&cfg.Storage.Type, "storage", cfg.Storage.Type, "Profile cache: memory, redis, sqlite (env: RELSYNC_STORAGE)")
	flags.StringVar(&cfg.Storage.SQLitePath, "sqlite-path", cfg.Storage.SQLitePath, "SQLite cache file (env: RELSYNC_SQLITE_PATH)")
	flags.StringVar(&cfg.Storage.RedisURL, "redis-url", cfg.Storage.RedisURL, "Redis URL (env: RELSYNC_REDIS_URL)")
	flags.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Daemon URL for client commands (env: RELSYNC_SERVER)")
	flags.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Daemon API key (env: RELSYNC_API_KEY)")
	flags.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging")

	// Local commands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newTokenCmd())

	// Daemon client commands
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newEventsCmd())

	return rootCmd
}

// resolveConfig layers defaults, the config file, the environment and
// finally any flags set on the command line into cfg
func resolveConfig(cmd *cobra.Command, configPath string) error {
	layered := DefaultConfig()
	if configPath != "" {
		if err := layered.LoadFile(configPath, true); err != nil {
			return err
		}
	}
	if err := layered.ApplyEnv(); err != nil {
		return err
	}

	for name, copyField := range flagFields {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			copyField(layered, cfg)
		}
	}
	*cfg = *layered
	return nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
