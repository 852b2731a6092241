package main

import (
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/treeline-forestry/dta-cli/internal/export"
	"github.com/treeline-forestry/dta-cli/internal/logbook"
	"github.com/treeline-forestry/dta-cli/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export <day-key>",
	Short: "Export a day's form data as an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dateKey := args[0]

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idx := logbook.NewIndex(sess.Trees())
		records := idx.ForDay(dateKey)
		if len(records) == 0 {
			return eris.Errorf("no tree records for %s", dateKey)
		}

		general, err := st.LoadGeneral(ctx, dateKey)
		if err != nil {
			return eris.Wrap(err, "export: load general info")
		}
		if general == nil {
			general = model.GeneralInfo{}
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Join(cfg.Export.OutputDir, fmt.Sprintf("dta-%s.xlsx", dateKey))
		}

		rows := export.BuildRows(general, records)
		if err := export.WriteWorkbook(general, rows, out); err != nil {
			return err
		}

		fmt.Printf("Wrote %d trees to %s\n", len(rows), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "output path (default <output_dir>/dta-<day>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
