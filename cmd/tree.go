package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/treeline-forestry/dta-cli/internal/logbook"
	"github.com/treeline-forestry/dta-cli/internal/model"
	"github.com/treeline-forestry/dta-cli/internal/session"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Record and manage per-tree assessments",
}

// addTreeFlags registers the flags shared by tree add and tree edit.
func addTreeFlags(cmd *cobra.Command) {
	cmd.Flags().String("species", "", "tree species")
	cmd.Flags().String("class", "", "tree class (1-9)")
	cmd.Flags().String("wildlife", "", "wildlife value (Low, Moderate, High)")
	cmd.Flags().String("height", "", "tree height (m)")
	cmd.Flags().String("diameter", "", "diameter (cm)")
	cmd.Flags().Int("lod", 0, "level of danger (1-4)")
	cmd.Flags().StringSlice("indicator", nil, "danger indicator label (repeatable)")
	cmd.Flags().String("ast", "", "actual stem thickness (LOD 2 or 3)")
	cmd.Flags().String("rst", "", "required stem thickness (LOD 2 or 3)")
	cmd.Flags().String("decision", "", "decision outcome; defaults to the recommendation")
	cmd.Flags().String("other", "", "free-text qualifier for the Other decision")
}

var treeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Walk a fresh tree assessment and save it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if dateKey, _ := cmd.Flags().GetString("date"); dateKey != "" {
			if err := sess.JumpToDaySummary(ctx, dateKey); err != nil {
				return err
			}
		}

		sess.StartTreeAssessment()
		applyTreeFields(cmd, sess)

		if err := finishTreeFlow(ctx, cmd, sess); err != nil {
			return err
		}

		rec := sess.Trees()[0]
		fmt.Printf("Saved tree #%d for %s (decision: %s)\n", rec.TreeNumber, rec.DateKey, rec.Decision)
		return nil
	},
}

var treeEditCmd = &cobra.Command{
	Use:   "edit <tree-number>",
	Short: "Edit an existing tree record in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := findRecord(cmd, sess, args[0])
		if err != nil {
			return err
		}

		sess.BeginEdit(*rec)

		// A changed level resets the indicator selection; an unchanged
		// level with new indicators replaces the selection wholesale.
		if cmd.Flags().Changed("lod") || cmd.Flags().Changed("indicator") {
			lod := sess.LOD()
			if cmd.Flags().Changed("lod") {
				n, _ := cmd.Flags().GetInt("lod")
				lod = model.LOD(n)
			}
			sess.SetLOD(lod)
		}
		applyTreeFields(cmd, sess)

		if err := finishTreeFlow(ctx, cmd, sess); err != nil {
			return err
		}

		fmt.Printf("Updated tree #%d for %s\n", rec.TreeNumber, rec.DateKey)
		return nil
	},
}

var treeDeleteCmd = &cobra.Command{
	Use:   "delete <tree-number>",
	Short: "Delete a tree record and its detail rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := findRecord(cmd, sess, args[0])
		if err != nil {
			return err
		}

		if err := sess.DeleteRecord(ctx, *rec); err != nil {
			return eris.Wrap(err, "tree delete")
		}
		fmt.Printf("Deleted tree #%d for %s\n", rec.TreeNumber, rec.DateKey)
		return nil
	},
}

var treeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tree records for a day",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sess, st, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dateKey, _ := cmd.Flags().GetString("date")
		if dateKey == "" {
			dateKey = sess.ActiveDateKey()
		}

		idx := logbook.NewIndex(sess.Trees())
		records := idx.ForDay(dateKey)
		if len(records) == 0 {
			fmt.Fprintf(os.Stderr, "No tree records for %s.\n", dateKey)
			return nil
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		case "yaml":
			return yaml.NewEncoder(os.Stdout).Encode(records)
		default:
			return writeTreeTable(records)
		}
	},
}

// applyTreeFields copies the provided flag values into the session draft.
func applyTreeFields(cmd *cobra.Command, sess *session.Session) {
	for flag, key := range map[string]string{
		"species":  "species",
		"class":    "treeClass",
		"wildlife": "wildlifeValue",
		"height":   "treeHeight",
		"diameter": "diameter",
	} {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			sess.SetTreeField(key, v)
		}
	}

	if cmd.Flags().Changed("lod") && sess.LOD() == 0 {
		n, _ := cmd.Flags().GetInt("lod")
		sess.SetLOD(model.LOD(n))
	}
	if labels, _ := cmd.Flags().GetStringSlice("indicator"); len(labels) > 0 {
		for _, label := range labels {
			sess.ToggleIndicator(label)
		}
	}
	if cmd.Flags().Changed("ast") {
		v, _ := cmd.Flags().GetString("ast")
		sess.SetAST(v)
	}
	if cmd.Flags().Changed("rst") {
		v, _ := cmd.Flags().GetString("rst")
		sess.SetRST(v)
	}
}

// finishTreeFlow drives the guarded transitions through to a saved record.
func finishTreeFlow(ctx context.Context, cmd *cobra.Command, sess *session.Session) error {
	if err := sess.ContinueTree(); err != nil {
		return err
	}
	if err := sess.ContinueLOD(); err != nil {
		return err
	}
	if err := sess.ContinueLODDetails(); err != nil {
		return err
	}
	if cmd.Flags().Changed("decision") {
		decision, _ := cmd.Flags().GetString("decision")
		sess.SelectDecision(decision)
	}
	if cmd.Flags().Changed("other") {
		other, _ := cmd.Flags().GetString("other")
		sess.SetDecisionOther(other)
	}
	return sess.FinishDecision(ctx)
}

func writeTreeTable(records []model.TreeRecord) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSPECIES\tCLASS\tWILDLIFE\tLOD\tDECISION")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			rec.TreeNumber, rec.TreeField("species"), rec.TreeField("treeClass"),
			rec.TreeField("wildlifeValue"), rec.LOD, rec.Decision)
	}
	return w.Flush()
}

// findRecord resolves a tree record by its 1-based number within a day.
func findRecord(cmd *cobra.Command, sess *session.Session, arg string) (*model.TreeRecord, error) {
	treeNumber, err := strconv.Atoi(arg)
	if err != nil {
		return nil, eris.Errorf("invalid tree number: %s", arg)
	}

	dateKey, _ := cmd.Flags().GetString("date")
	if dateKey == "" {
		dateKey = sess.ActiveDateKey()
	}

	idx := logbook.NewIndex(sess.Trees())
	for _, rec := range idx.ForDay(dateKey) {
		if rec.TreeNumber == treeNumber {
			found := rec
			return &found, nil
		}
	}
	return nil, eris.Errorf("no tree #%d recorded for %s", treeNumber, dateKey)
}

func init() {
	addTreeFlags(treeAddCmd)
	addTreeFlags(treeEditCmd)
	for _, cmd := range []*cobra.Command{treeAddCmd, treeEditCmd, treeDeleteCmd, treeListCmd} {
		cmd.Flags().String("date", "", "day key (YYYY-MM-DD), defaults to the active day")
	}
	treeListCmd.Flags().String("format", "table", "output format: table, json, yaml")

	treeCmd.AddCommand(treeAddCmd)
	treeCmd.AddCommand(treeEditCmd)
	treeCmd.AddCommand(treeDeleteCmd)
	treeCmd.AddCommand(treeListCmd)
	rootCmd.AddCommand(treeCmd)
}
