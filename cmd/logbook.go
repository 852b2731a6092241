package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/treeline-forestry/dta-cli/internal/logbook"
)

var logbookCmd = &cobra.Command{
	Use:   "logbook",
	Short: "Browse recorded assessment days",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idx := logbook.NewIndex(sess.Trees())
		days := idx.Days()
		if len(days) == 0 {
			fmt.Fprintln(os.Stderr, "No assessment days recorded.")
			return nil
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			return writeDayCounts(days, idx, func(v any) error {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			})
		case "yaml":
			return writeDayCounts(days, idx, yaml.NewEncoder(os.Stdout).Encode)
		default:
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tTREES")
			for _, day := range days {
				fmt.Fprintf(w, "%s\t%d\n", day, idx.Count(day))
			}
			return w.Flush()
		}
	},
}

var logbookShowCmd = &cobra.Command{
	Use:   "show <day-key>",
	Short: "Show one day's general info and tree records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dateKey := args[0]

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		general, err := st.LoadGeneral(ctx, dateKey)
		if err != nil {
			return err
		}
		if general != nil {
			fmt.Printf("%s: %s, %s\n", dateKey,
				general.Get("assessorName"), general.Get("location"))
		} else {
			fmt.Printf("%s: no general information saved\n", dateKey)
		}

		records := logbook.NewIndex(sess.Trees()).ForDay(dateKey)
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No tree records for this day.")
			return nil
		}
		return writeTreeTable(records)
	},
}

type dayCount struct {
	Day   string `json:"day" yaml:"day"`
	Trees int    `json:"trees" yaml:"trees"`
}

func writeDayCounts(days []string, idx *logbook.Index, encode func(any) error) error {
	counts := make([]dayCount, 0, len(days))
	for _, day := range days {
		counts = append(counts, dayCount{Day: day, Trees: idx.Count(day)})
	}
	return encode(counts)
}

func init() {
	logbookCmd.Flags().String("format", "table", "output format: table, json, yaml")
	logbookCmd.AddCommand(logbookShowCmd)
	rootCmd.AddCommand(logbookCmd)
}
