// Package report renders run reports for terminals and writes them to disk.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/teester/teester/internal/runner"
)

var (
	passPaint = color.New(color.FgGreen).SprintFunc()
	failPaint = color.New(color.FgRed).SprintFunc()
	dimPaint  = color.New(color.FgHiBlack).SprintFunc()
)

// WriteTable prints one row per result followed by a summary line.
// verbose adds assertion diffs under failing rows.
func WriteTable(w io.Writer, r *runner.Report, verbose bool) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"#", "Test", "Kind", "Status", "Result", "Time", "Detail"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, res := range r.Results {
		status := "-"
		if res.Status != nil {
			status = strconv.Itoa(*res.Status)
		}
		outcome := passPaint("PASS")
		if !res.Assert {
			outcome = failPaint("FAIL")
		}
		table.Append([]string{
			strconv.Itoa(res.TestID),
			res.Name,
			string(res.Kind),
			status,
			outcome,
			res.Duration.Round(time.Millisecond).String(),
			detail(res, verbose),
		})
	}
	table.Render()

	summary := fmt.Sprintf("%d passed, %d failed", r.Passed, r.Failed)
	if r.OK() {
		summary = passPaint(summary)
	} else {
		summary = failPaint(summary)
	}
	fmt.Fprintf(w, "%s %s\n", summary, dimPaint("run "+r.RunID))
}

func detail(res runner.Result, verbose bool) string {
	if res.Error != "" {
		return res.Error
	}
	if len(res.Diff) == 0 {
		return ""
	}
	if !verbose {
		return fmt.Sprintf("%d body difference(s)", len(res.Diff))
	}
	out := res.Diff[0]
	for _, d := range res.Diff[1:] {
		out += "\n" + d
	}
	return out
}
