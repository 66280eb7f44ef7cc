package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teester/teester/internal/transport"
)

var queryFlags struct {
	dbType string
	dbURL  string
}

var queryCmd = &cobra.Command{
	Use:   "query <statement>",
	Short: "Execute a database statement through the server",
	Long: `Execute a statement against MYSQL, SQLITE or MONGO through the server's
query endpoint. Only success or failure is reported. MONGO statements are
Extended JSON command documents.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryFlags.dbType, "db-type", "", "database type: MYSQL, SQLITE or MONGO")
	queryCmd.Flags().StringVar(&queryFlags.dbURL, "db-url", "", "database connection string")
	_ = queryCmd.MarkFlagRequired("db-type")
	_ = queryCmd.MarkFlagRequired("db-url")
}

func runQuery(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	qc := transport.QueryConfig{DBType: strings.ToUpper(queryFlags.dbType), DBURL: queryFlags.dbURL}
	if err := c.RunQuery(cmd.Context(), qc, args[0]); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}
