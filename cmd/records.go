package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and maintain the attendance ledger",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records",
	RunE:  runRecordsList,
}

var recordsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the CSV projection from the audit log",
	Long: `Rebuild discards the derived CSV export and reconstructs it by replaying
the append-only audit log, the ledger's source of truth. Use after a crash
or a damaged export file.`,
	RunE: runRecordsRebuild,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsRebuildCmd)
}

func runRecordsList(cmd *cobra.Command, _ []string) error {
	c, err := setupCore(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	records := c.ledger.Records()
	if len(records) == 0 {
		fmt.Println("No attendance records.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDATE\tTIME")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Name, rec.Date, rec.Time)
	}
	return w.Flush()
}

func runRecordsRebuild(cmd *cobra.Command, _ []string) error {
	c, err := setupCore(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	n, err := c.ledger.Rebuild()
	if err != nil {
		return err
	}

	fmt.Printf("Projection rebuilt from audit log: %d records\n", n)
	return nil
}
