package commands

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"nester/viewer"
)

func resultsCommand(a *app) *cobra.Command {
	var (
		search string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print the stored scan results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := a.setupLogger(false)
			if err != nil {
				return err
			}
			defer closeLog()

			st, coord, err := a.openCollector(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			results, err := coord.Page(cmd.Context(), search, limit, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			t := table.New().Border(lipgloss.NormalBorder())
			var headers []string
			for _, c := range viewer.Columns() {
				headers = append(headers, c.Title)
			}
			t.Headers(headers...)
			for _, row := range viewer.Rows(results) {
				t.Row(row...)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&search, "search", "", "Only show results containing this text")
	fl.IntVar(&limit, "limit", 0, "Maximum number of results, 0 for all")
	fl.BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
