// Package main implements the teester CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teester/teester/internal/assert"
	"github.com/teester/teester/internal/config"
	"github.com/teester/teester/internal/logging"
	"github.com/teester/teester/internal/runner"
	"github.com/teester/teester/internal/token"
)

var (
	logger     *zap.Logger
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "teester",
	Short: "Run API and database test collections",
	Long: `teester stores projects of API and database tests and runs their
collections in order, feeding values captured with @{name} in one
assertion into ${name} placeholders of the tests that follow.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		cfg, err = config.Load(configPath, cmd.Flags())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./teester.yaml or $HOME/.teester/teester.yaml)")
	rootCmd.PersistentFlags().String(config.KeyAPIURL, "", "API server URL (env: TEESTER_API_URL)")
	rootCmd.PersistentFlags().String(config.KeyAPIKey, "", "API key for authentication (env: TEESTER_API_KEY)")
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// addRunFlags registers the flags that shape how collections are run.
func addRunFlags(cmd *cobra.Command) {
	def := config.Default()
	cmd.Flags().Bool(config.KeyStrictVars, false, "fail tests that reference unset ${variables} instead of sending \"undefined\"")
	cmd.Flags().Bool(config.KeyStrictJSON, false, "fail tests whose header or body is not valid JSON instead of sending {}")
	cmd.Flags().Bool(config.KeySymmetric, false, "require response bodies to have exactly the asserted keys")
	cmd.Flags().Float64(config.KeyRPS, 0, "maximum tests per second (0 = unlimited)")
	cmd.Flags().Duration(config.KeyTimeout, def.Timeout, "HTTP request timeout")
	cmd.Flags().String(config.KeyReportDir, "", "write a YAML report of every run to this directory")
}

// runOptions maps configuration onto runner options.
func runOptions(c *config.Config) runner.Options {
	var opts runner.Options
	if c.StrictVars {
		opts.Missing = token.MissingError
	}
	if c.StrictJSON {
		opts.Policy = runner.FailOnError
	}
	if c.Symmetric {
		opts.Mode = assert.Symmetric
	}
	if c.RPS > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(c.RPS), 1)
	}
	return opts
}
