package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teester/teester/internal/auth"
	"github.com/teester/teester/internal/config"
	"github.com/teester/teester/internal/db"
	"github.com/teester/teester/internal/logging"
	"github.com/teester/teester/internal/report"
	"github.com/teester/teester/internal/runner"
	"github.com/teester/teester/internal/server"
	"github.com/teester/teester/internal/transport"
)

const shutdownTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the teester API server.

The server stores the project list in SQLite, runs collections on a
bounded worker pool and executes database queries for the browser UI.

Run requests block until the whole collection has run and are not cut
off by the server write timeout. A client that gives up early can fetch
the report later from GET /v1/runs/{id}.

With --require-auth every route except /health needs a bearer API key.
If the database holds no key yet, one is created and printed once.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	def := config.Default()
	serverCmd.Flags().String(config.KeyAddr, def.Addr, "address to listen on (env: TEESTER_ADDR)")
	serverCmd.Flags().String(config.KeyDB, def.DBPath, "database path (env: TEESTER_DB)")
	serverCmd.Flags().Int(config.KeyHistory, def.History, "number of project snapshots to keep")
	serverCmd.Flags().Int(config.KeyMaxRuns, def.MaxRuns, "number of collection runs executed at once")
	serverCmd.Flags().Bool(config.KeyRequireAuth, false, "require a bearer API key")
	serverCmd.Flags().StringSlice(config.KeyAllowedOrigins, def.AllowedOrigins, "CORS allowed origins")
	addRunFlags(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if cfg.RequireAuth {
		if err := ensureAPIKey(cmd, database); err != nil {
			return err
		}
	}

	query, err := transport.NewExecutor(0, logger.Named("query"))
	if err != nil {
		return err
	}
	defer query.Close()

	hooks := []runner.Hook{&runner.LoggingHook{Logger: logger.Named("runs")}}
	if cfg.ReportDir != "" {
		hooks = append(hooks, &report.Writer{Dir: cfg.ReportDir, Format: report.FormatYAML, Logger: logger.Named("reports")})
	}

	httpLogger := logger.Named("http")
	runs, err := server.NewRunManager(server.RunManagerConfig{
		MaxRuns: cfg.MaxRuns,
		NewHTTP: func() (runner.HTTPTransport, error) {
			return transport.NewHTTPClient(cfg.Timeout, httpLogger)
		},
		Query:  query,
		Hooks:  hooks,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer runs.Release()

	api := &server.APIServer{
		DB:             database,
		Logger:         logger.Named("api"),
		Runs:           runs,
		Query:          query,
		RunDefaults:    runOptions(cfg),
		History:        cfg.History,
		RequireAuth:    cfg.RequireAuth,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	srv := server.NewManagedServer("api", server.DefaultServerConfig(cfg.Addr, api.Handler(), logger.Named("api")))
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", logging.Addr(srv.Addr()))
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}

// ensureAPIKey creates and prints a key when the database has none.
func ensureAPIKey(cmd *cobra.Command, database *sql.DB) error {
	count, err := db.CountAPIKeys(database)
	if err != nil {
		return fmt.Errorf("count API keys: %w", err)
	}
	if count > 0 {
		return nil
	}

	key, err := auth.Generate()
	if err != nil {
		return fmt.Errorf("generate API key: %w", err)
	}
	if _, err := db.CreateAPIKey(database, key.Prefix, key.Hash, nil); err != nil {
		return fmt.Errorf("create API key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=============================================================")
	fmt.Fprintln(out, "API KEY CREATED (save this, it will not be shown again):")
	fmt.Fprintln(out, key.Display)
	fmt.Fprintln(out, "=============================================================")
	return nil
}
