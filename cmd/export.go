package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Export a fully reviewed job to the shared workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Exporter.Export(cmd.Context(), args[0], nil, "cli")
		if err != nil {
			return err
		}
		fmt.Printf("exported to %s row %d\n", result.Workbook, result.Row)
		fmt.Printf("final json: %s\n", result.FinalJSON)
		return nil
	},
}

var exportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rows in the shared workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := env.Workbook.Rows()
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("workbook is empty")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "JOB ID\tNAME\tSTATUS\tEXPORTED AT")
		for _, row := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				row["job_id"], row["job_name"], row["job_status"], row["exported_at"])
		}
		return tw.Flush()
	},
}

func init() {
	exportCmd.AddCommand(exportListCmd)
	rootCmd.AddCommand(exportCmd)
}
