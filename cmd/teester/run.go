package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teester/teester/internal/assert"
	"github.com/teester/teester/internal/logging"
	"github.com/teester/teester/internal/models"
	"github.com/teester/teester/internal/report"
	"github.com/teester/teester/internal/runner"
	"github.com/teester/teester/internal/transport"
	"github.com/teester/teester/internal/types"
)

var errTestsFailed = errors.New("tests failed")

var runFlags struct {
	file    string
	test    int
	verbose bool
}

var runCmd = &cobra.Command{
	Use:   "run <project> <collection>",
	Short: "Run a collection",
	Long: `Run every test of a collection, or one test with --test.

With --file the projects are read from a JSON or YAML file and the tests
run from this machine; database tests go through the server when
--api-url is set and straight to the database otherwise. Without --file
the collection runs on the server named by --api-url.

The exit status is 1 when any test fails.`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.file, "file", "f", "", "projects file (JSON or YAML)")
	runCmd.Flags().IntVar(&runFlags.test, "test", 0, "run only the test with this index")
	runCmd.Flags().BoolVarP(&runFlags.verbose, "verbose", "v", false, "show assertion diffs")
	addRunFlags(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	idx, err := indexArgs([]string{"project", "collection"}, args)
	if err != nil {
		return err
	}
	var testID *int
	if cmd.Flags().Changed("test") {
		testID = &runFlags.test
	}

	var rep *runner.Report
	switch {
	case runFlags.file != "":
		rep, err = runLocal(cmd, idx[0], idx[1], testID)
	case cfg.APIURL != "":
		rep, err = runRemote(cmd, idx[0], idx[1], testID)
	default:
		return errors.New("either --file or --api-url is required")
	}
	if err != nil {
		return err
	}

	report.WriteTable(cmd.OutOrStdout(), rep, runFlags.verbose)
	if !rep.OK() {
		return fmt.Errorf("%d of %d %w", rep.Failed, len(rep.Results), errTestsFailed)
	}
	return nil
}

func runLocal(cmd *cobra.Command, p, c int, testID *int) (*runner.Report, error) {
	projects, err := models.ReadProjectsFile(runFlags.file)
	if err != nil {
		return nil, err
	}
	in, err := runner.InputFor(projects, p, c, testID)
	if err != nil {
		return nil, err
	}

	httpT, err := transport.NewHTTPClient(cfg.Timeout, logger.Named("http"))
	if err != nil {
		return nil, err
	}

	var query runner.QueryTransport
	if cfg.APIURL != "" {
		if query, err = newClient(); err != nil {
			return nil, err
		}
	} else {
		exec, err := transport.NewExecutor(0, logger.Named("query"))
		if err != nil {
			return nil, err
		}
		defer exec.Close()
		query = exec
	}

	r := runner.New(httpT, query, logger, runOptions(cfg))
	r.Register(&runner.LoggingHook{Logger: logger.Named("runs")})
	if cfg.ReportDir != "" {
		r.Register(&report.Writer{Dir: cfg.ReportDir, Format: report.FormatYAML, Logger: logger.Named("reports")})
	}
	return r.Run(cmd.Context(), in)
}

func runRemote(cmd *cobra.Command, p, c int, testID *int) (*runner.Report, error) {
	cl, err := newClient()
	if err != nil {
		return nil, err
	}

	req := types.RunRequest{StrictVariables: cfg.StrictVars, StrictJSON: cfg.StrictJSON}
	if cfg.Symmetric {
		req.Mode = assert.Symmetric.String()
	}

	var rep *runner.Report
	if testID != nil {
		rep, err = cl.RunTest(cmd.Context(), p, c, *testID, req)
	} else {
		rep, err = cl.RunCollection(cmd.Context(), p, c, req)
	}
	if err != nil {
		return nil, err
	}

	if cfg.ReportDir != "" {
		w := &report.Writer{Dir: cfg.ReportDir, Format: report.FormatYAML}
		path, err := w.Write(rep)
		if err != nil {
			return nil, err
		}
		logger.Info("report written", logging.Path(path), logging.RunID(rep.RunID))
	}
	return rep, nil
}
