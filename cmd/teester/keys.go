package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/teester/teester/internal/auth"
	"github.com/teester/teester/internal/config"
	"github.com/teester/teester/internal/db"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys in the server database",
}

var keysCreateFlags struct {
	label string
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key",
	Args:  cobra.NoArgs,
	RunE:  runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-or-prefix>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)

	keysCmd.PersistentFlags().String(config.KeyDB, config.Default().DBPath, "database path (env: TEESTER_DB)")
	keysCreateCmd.Flags().StringVar(&keysCreateFlags.label, "label", "", "optional label for the key")
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	key, err := auth.Generate()
	if err != nil {
		return fmt.Errorf("generate API key: %w", err)
	}
	var label *string
	if keysCreateFlags.label != "" {
		label = &keysCreateFlags.label
	}
	if _, err := db.CreateAPIKey(database, key.Prefix, key.Hash, label); err != nil {
		return fmt.Errorf("create API key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), key.Display)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	keys, err := db.ListAPIKeys(database)
	if err != nil {
		return fmt.Errorf("list API keys: %w", err)
	}
	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No API keys found.")
		return nil
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "Prefix", "Label", "Created", "Last used", "Revoked"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, k := range keys {
		label := "-"
		if k.Label != nil {
			label = *k.Label
		}
		table.Append([]string{
			strconv.FormatInt(k.ID, 10), k.KeyPrefix, label,
			unixTime(&k.CreatedAt), unixTime(k.LastUsedAt), unixTime(k.RevokedAt),
		})
	}
	table.Render()
	return nil
}

func unixTime(ts *int64) string {
	if ts == nil {
		return "-"
	}
	return time.Unix(*ts, 0).UTC().Format(time.RFC3339)
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	prefix := args[0]
	if p, _, err := auth.Parse(args[0]); err == nil {
		prefix = p
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	ok, err := db.RevokeAPIKey(database, prefix)
	if err != nil {
		return fmt.Errorf("revoke API key: %w", err)
	}
	if !ok {
		return fmt.Errorf("no active key with prefix %q", prefix)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Key %s revoked.\n", prefix)
	return nil
}
