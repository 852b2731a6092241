package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/treeline-forestry/dta-cli/internal/model"
)

var generalCmd = &cobra.Command{
	Use:   "general",
	Short: "Record the day's general information page",
}

var generalSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one general-info field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		key, value := args[0], args[1]

		if model.FieldByKey(model.GeneralFields, key) == nil {
			return eris.Errorf("unknown general field: %s", key)
		}

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := sess.SetGeneralField(ctx, key, value); err != nil {
			return eris.Wrap(err, "general set")
		}
		fmt.Printf("%s = %s\n", key, value)
		return nil
	},
}

var generalSetDateCmd = &cobra.Command{
	Use:   "set-date <YYYY-MM-DD>",
	Short: "Set the assessment date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		t, err := time.Parse("2006-01-02", args[0])
		if err != nil {
			return eris.Wrapf(err, "parse date %s", args[0])
		}

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := sess.SetDate(ctx, t); err != nil {
			return eris.Wrap(err, "general set-date")
		}
		fmt.Printf("date = %s (%s)\n", sess.General().Get("date"), sess.ActiveDateKey())
		return nil
	},
}

var generalShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved general information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dateKey, _ := cmd.Flags().GetString("date")
		general := sess.General()
		if dateKey != "" && dateKey != sess.ActiveDateKey() {
			general, err = st.LoadGeneral(ctx, dateKey)
			if err != nil {
				return eris.Wrap(err, "general show")
			}
			if general == nil {
				fmt.Fprintf(os.Stderr, "No general information saved for %s.\n", dateKey)
				return nil
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, f := range model.GeneralFields {
			required := ""
			if f.Required {
				required = "*"
			}
			fmt.Fprintf(w, "%s%s\t%s\n", f.Label, required, general.Get(f.Key))
		}
		return w.Flush()
	},
}

func init() {
	generalShowCmd.Flags().String("date", "", "day key (YYYY-MM-DD), defaults to the active day")

	generalCmd.AddCommand(generalSetCmd)
	generalCmd.AddCommand(generalSetDateCmd)
	generalCmd.AddCommand(generalShowCmd)
	rootCmd.AddCommand(generalCmd)
}
