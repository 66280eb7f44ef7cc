package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teester/teester/internal/models"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage the stored project list",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects and their collections",
	Args:  cobra.NoArgs,
	RunE:  runProjectsList,
}

var exportFlags struct {
	format   string
	out      string
	snapshot int64
}

var projectsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the stored projects as JSON or YAML",
	Args:  cobra.NoArgs,
	RunE:  runProjectsExport,
}

var projectsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the stored projects with a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsImport,
}

var projectsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored snapshots",
	Args:  cobra.NoArgs,
	RunE:  runProjectsHistory,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd, projectsExportCmd, projectsImportCmd, projectsHistoryCmd)

	projectsExportCmd.Flags().StringVar(&exportFlags.format, "format", "json", "output format: json or yaml")
	projectsExportCmd.Flags().StringVarP(&exportFlags.out, "out", "o", "", "write to file instead of stdout")
	projectsExportCmd.Flags().Int64Var(&exportFlags.snapshot, "snapshot", 0, "export an older snapshot by id")
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	raw, err := c.GetProjects(cmd.Context())
	if err != nil {
		return err
	}
	projects, err := models.DecodeProjects(raw)
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
		return nil
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Project", "Name", "Host", "Collection", "Name", "Tests"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for pi, p := range projects {
		if len(p.Collections) == 0 {
			table.Append([]string{strconv.Itoa(pi), p.Name, p.Config.Host, "-", "-", "0"})
			continue
		}
		for ci, coll := range p.Collections {
			table.Append([]string{
				strconv.Itoa(pi), p.Name, p.Config.Host,
				strconv.Itoa(ci), coll.Name, strconv.Itoa(len(coll.Tests)),
			})
		}
	}
	table.Render()
	return nil
}

func runProjectsExport(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var raw json.RawMessage
	if exportFlags.snapshot > 0 {
		raw, err = c.GetSnapshot(cmd.Context(), exportFlags.snapshot)
	} else {
		raw, err = c.GetProjects(cmd.Context())
	}
	if err != nil {
		return err
	}

	var data []byte
	switch strings.ToLower(exportFlags.format) {
	case "json":
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode projects: %w", err)
		}
		if data, err = json.MarshalIndent(v, "", "  "); err != nil {
			return err
		}
		data = append(data, '\n')
	case "yaml", "yml":
		projects, err := models.DecodeProjects(raw)
		if err != nil {
			return err
		}
		if data, err = yaml.Marshal(projects); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", exportFlags.format)
	}

	if exportFlags.out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(exportFlags.out, data, 0o644)
}

func runProjectsImport(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	path := args[0]
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		projects, err := models.ReadProjectsFile(path)
		if err != nil {
			return err
		}
		if data, err = json.Marshal(projects); err != nil {
			return err
		}
	default:
		if data, err = os.ReadFile(path); err != nil {
			return err
		}
	}

	resp, err := c.SaveProjects(cmd.Context(), data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved snapshot %d at %s.\n", resp.ID, resp.SavedAt)
	return nil
}

func runProjectsHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	resp, err := c.History(cmd.Context())
	if err != nil {
		return err
	}

	if len(resp.Snapshots) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found.")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%-8s  %s\n", "ID", "SAVED")
	for _, s := range resp.Snapshots {
		fmt.Fprintf(cmd.OutOrStdout(), "%-8d  %s\n", s.ID, s.SavedAt)
	}
	return nil
}
