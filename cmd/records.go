package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cep-loader/internal/model"
	"github.com/sells-group/cep-loader/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List enriched records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		asJSON, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")
		state, _ := cmd.Flags().GetString("state")

		recs, err := st.ListRecords(ctx, store.RecordFilter{State: state, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "records list")
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return writeRecordsJSON(out, recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}
		formatRecords(out, recs)
		return nil
	},
}

func init() {
	recordsCmd.Flags().Bool("json", false, "print records as JSON")
	recordsCmd.Flags().Int("limit", 100, "max records to list")
	recordsCmd.Flags().String("state", "", "only records in this state (UF)")
	rootCmd.AddCommand(recordsCmd)
}

func writeRecordsJSON(out io.Writer, recs []model.Record) error {
	if recs == nil {
		recs = []model.Record{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// formatRecords writes a table of records to out.
func formatRecords(out io.Writer, recs []model.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tAGE\tCEP\tSTREET\tSTATE\tREGION\tUPDATED")
	_, _ = fmt.Fprintln(w, "----\t---\t---\t------\t-----\t------\t-------")

	for _, r := range recs {
		street := deref(r.Street)
		if len(street) > 40 {
			street = street[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Name,
			r.Age,
			r.PostalCode,
			street,
			deref(r.State),
			deref(r.Region),
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
