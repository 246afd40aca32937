// Package cli implements cachectl, the operator tool for cache keys, entries
// and policy files.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/internal/logging"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "cachectl",
		Short: "Inspect and manage policy driven caches",
		Long: `cachectl builds cache keys the way the cache mediators do, reads and
removes entries from the configured backend, and validates policy files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.root.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "Path to a YAML cache configuration file")
	flags.StringVar(&app.logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newKeyCmd(),
		app.newGetCmd(),
		app.newInvalidateCmd(),
		app.newPoliciesCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) logger() *bolt.Logger {
	return logging.New(logging.Config{
		Level:  a.logLevel,
		Format: "console",
		Output: a.stderr,
	})
}

func (a *App) loadConfig() (cache.Config, error) {
	if a.configPath == "" {
		return cache.DefaultConfig(), nil
	}
	return cache.LoadConfig(a.configPath)
}

// openClient connects to the configured backend. The returned func closes it.
func (a *App) openClient() (cache.Client, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log := a.logger()
	log.Debug().Str("backend", string(cfg.Backend)).Msg("opening cache backend")

	client, err := cache.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache backend: %w", err)
	}

	closeFn := func() {
		if closer, ok := client.(cache.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Warn().Err(err).Msg("closing cache backend")
			}
		}
	}
	return client, closeFn, nil
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "cachectl version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
		},
	}
}
