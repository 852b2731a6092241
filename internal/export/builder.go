// Package export assembles one day's assessment data into the cell layout
// of the Danger Tree Assessment field-data form and renders it as an XLSX
// workbook.
package export

import (
	"sort"

	"github.com/treeline-forestry/dta-cli/internal/model"
)

// Indicator column groups, in form order. The strings are the canonical
// catalog labels: lookups exact-match against each record's indicator
// selection, and a miss renders as unchecked rather than erroring.
var (
	LOD1Columns  = model.DangerIndicators[1]
	LOD23Columns = model.DangerIndicators[2]
	LOD4Columns  = model.DangerIndicators[4]
)

// Row is the cell data for one tree on the form.
type Row struct {
	TreeNumber    int
	Species       string
	TreeClass     string
	WildlifeValue string
	TreeHeight    string
	Diameter      string
	LOD1Checks    []bool // aligned with LOD1Columns
	LOD23Checks   []bool // aligned with LOD23Columns
	RST           string
	AST           string
	LOD4Checks    []bool // aligned with LOD4Columns
	OverallRating string // "S" when the decision is Safe, "D" otherwise
	SafeFlag      bool
	NWZFlag       bool
	OtherFlag     bool
	ActionDate    string
}

// BuildRows produces the form rows for one day's records, most recent
// tree first. The action date column carries the general page's date
// label.
func BuildRows(general model.GeneralInfo, trees []model.TreeRecord) []Row {
	ordered := make([]model.TreeRecord, len(trees))
	copy(ordered, trees)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TreeNumber > ordered[j].TreeNumber
	})

	rows := make([]Row, 0, len(ordered))
	for _, rec := range ordered {
		base, _ := model.ParseDecision(rec.Decision)
		safe := base == model.DecisionSafe
		nwz := base == model.DecisionNWZ

		rating := "D"
		if safe {
			rating = "S"
		}

		rows = append(rows, Row{
			TreeNumber:    rec.TreeNumber,
			Species:       rec.TreeField("species"),
			TreeClass:     rec.TreeField("treeClass"),
			WildlifeValue: rec.TreeField("wildlifeValue"),
			TreeHeight:    rec.TreeField("treeHeight"),
			Diameter:      rec.TreeField("diameter"),
			LOD1Checks:    marks(rec.LODChecks, LOD1Columns),
			LOD23Checks:   marks(rec.LODChecks, LOD23Columns),
			RST:           rec.RST,
			AST:           rec.AST,
			LOD4Checks:    marks(rec.LODChecks, LOD4Columns),
			OverallRating: rating,
			SafeFlag:      safe,
			NWZFlag:       nwz,
			OtherFlag:     !safe && !nwz,
			ActionDate:    general.Get("date"),
		})
	}
	return rows
}

func marks(checks map[string]bool, labels []string) []bool {
	out := make([]bool, len(labels))
	for i, label := range labels {
		out[i] = checks[label]
	}
	return out
}
