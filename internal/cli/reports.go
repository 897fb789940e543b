package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/umbusk1/bibliofep/internal/reports"
)

func newReportsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect published reports",
	}
	cmd.AddCommand(newReportsListCommand(e), newReportsExportCommand(e), newReportsDeleteCommand(e))
	return cmd
}

func newReportsListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List published reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			listing, err := a.Reports.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(listing.All) == 0 {
				fmt.Fprintln(e.out, warnStyle.Render("no reports published"))
				return nil
			}
			pairs := make([]pair, 0, len(listing.All))
			for _, r := range listing.All {
				value := r.Title
				if r.IsLatest {
					value += " " + okStyle.Render("(latest)")
				}
				pairs = append(pairs, pair{
					label: fmt.Sprintf("#%d  %s", r.ID, r.PublishedAt.Format("2006-01-02")),
					value: value,
				})
			}
			writePairs(e.out, pairs)
			return nil
		},
	}
}

func newReportsExportCommand(e *env) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a report's stats as CSV or Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid report id %q", args[0])
			}
			format = strings.ToLower(format)
			if format != reports.FormatCSV && format != reports.FormatMarkdown {
				return fmt.Errorf("--format must be %s or %s", reports.FormatCSV, reports.FormatMarkdown)
			}
			a, err := e.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			r, err := a.Reports.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return reports.Render(e.out, r, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", reports.FormatMarkdown, "csv or md")
	return cmd
}

func newReportsDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a published report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid report id %q", args[0])
			}
			a, err := e.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			res, err := a.Reports.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, okStyle.Render("deleted"), valueStyle.Render(res.ReportTitle))
			return nil
		},
	}
}
