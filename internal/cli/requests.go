package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/smartworking/pkg/models"
)

type listOptions struct {
	status string
	email  string
	output string
}

func newRequestsCmd(opts *rootOptions) *cobra.Command {
	requestsCmd := &cobra.Command{
		Use:   "requests",
		Short: "Inspect smart working requests",
	}

	list := &listOptions{}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, most recent date first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.RequestStatus
			if list.status != "" {
				status, err := models.ParseStatus(list.status)
				if err != nil {
					return err
				}
				filter = status
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			requests, err := s.ListAllRequests(cmd.Context())
			if err != nil {
				return err
			}

			email := models.NormalizeEmail(list.email)
			rows := make([]models.RequestSummary, 0, len(requests))
			for _, r := range requests {
				if filter != "" && r.Status != filter {
					continue
				}
				if email != "" && (r.Owner == nil || r.Owner.Email != email) {
					continue
				}
				rows = append(rows, r.Summarize())
			}

			if list.output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return renderRequests(cmd.OutOrStdout(), rows)
		},
	}
	listCmd.Flags().StringVar(&list.status, "status", "", "only show requests in this status: pending, approved or rejected")
	listCmd.Flags().StringVar(&list.email, "email", "", "only show requests of this employee")
	listCmd.Flags().StringVarP(&list.output, "output", "o", "table", "output format: table or json")

	requestsCmd.AddCommand(listCmd)
	return requestsCmd
}

func renderRequests(w io.Writer, rows []models.RequestSummary) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No requests found")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Date", "Employee", "Status", "Description", "Created")
	for _, r := range rows {
		if err := table.Append(
			shortID(r.ID),
			r.Date.Display(),
			r.EmployeeName,
			strings.ToUpper(string(r.Status)),
			truncate(r.Description, 40),
			r.CreatedAt.Format("2006-01-02 15:04"),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d request(s)\n", len(rows))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
