package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-forestry/dta-cli/internal/model"
)

func TestBuildRows_MostRecentFirst(t *testing.T) {
	rows := BuildRows(model.GeneralInfo{}, []model.TreeRecord{
		{TreeNumber: 1, LOD: 2, Decision: "Safe"},
		{TreeNumber: 3, LOD: 2, Decision: "Safe"},
		{TreeNumber: 2, LOD: 2, Decision: "Safe"},
	})
	require.Len(t, rows, 3)
	assert.Equal(t, 3, rows[0].TreeNumber)
	assert.Equal(t, 2, rows[1].TreeNumber)
	assert.Equal(t, 1, rows[2].TreeNumber)
}

func TestBuildRows_MarksCanonicalLabels(t *testing.T) {
	rows := BuildRows(model.GeneralInfo{}, []model.TreeRecord{{
		TreeNumber: 1,
		LOD:        2,
		LODChecks: map[string]bool{
			"Witches' Broom": true,
			"Dead Limbs":     true,
			"Made Up Label":  true, // unknown labels render unchecked
		},
		Decision: "Dangerous - Fall Tree",
	}})
	require.Len(t, rows, 1)

	row := rows[0]
	require.Len(t, row.LOD23Checks, len(LOD23Columns))
	for i, label := range LOD23Columns {
		want := label == "Witches' Broom" || label == "Dead Limbs"
		assert.Equal(t, want, row.LOD23Checks[i], label)
	}
	for _, checked := range row.LOD1Checks {
		assert.False(t, checked)
	}
	for _, checked := range row.LOD4Checks {
		assert.False(t, checked)
	}
}

func TestBuildRows_OverallRating(t *testing.T) {
	rows := BuildRows(model.GeneralInfo{}, []model.TreeRecord{
		{TreeNumber: 1, Decision: "Safe"},
		{TreeNumber: 2, Decision: "Dangerous - Fall Tree"},
		{TreeNumber: 3, Decision: "Dangerous - Create NWZ"},
		{TreeNumber: 4, Decision: "Other - remove one limb"},
	})
	require.Len(t, rows, 4)

	// Rows come back numbers 4,3,2,1.
	assert.Equal(t, "D", rows[0].OverallRating) // Other
	assert.Equal(t, "D", rows[1].OverallRating) // NWZ
	assert.Equal(t, "D", rows[2].OverallRating) // Fall Tree
	assert.Equal(t, "S", rows[3].OverallRating) // Safe
}

func TestBuildRows_ManagementFlagsExclusive(t *testing.T) {
	rows := BuildRows(model.GeneralInfo{}, []model.TreeRecord{
		{TreeNumber: 1, Decision: "Safe"},
		{TreeNumber: 2, Decision: "Dangerous - Create NWZ"},
		{TreeNumber: 3, Decision: "Dangerous - Fall Tree"},
		{TreeNumber: 4, Decision: "Dangerous - Other - lodged debris"},
	})
	require.Len(t, rows, 4)

	for _, row := range rows {
		set := 0
		for _, flag := range []bool{row.SafeFlag, row.NWZFlag, row.OtherFlag} {
			if flag {
				set++
			}
		}
		assert.Equal(t, 1, set, "exactly one management flag per row")
	}

	byNumber := map[int]Row{}
	for _, row := range rows {
		byNumber[row.TreeNumber] = row
	}
	assert.True(t, byNumber[1].SafeFlag)
	assert.True(t, byNumber[2].NWZFlag)
	assert.True(t, byNumber[3].OtherFlag, "fall tree lands in the other/fall column")
	assert.True(t, byNumber[4].OtherFlag, "legacy other decodes off the safe and NWZ flags")
}

func TestBuildRows_CarriesGeneralDate(t *testing.T) {
	rows := BuildRows(model.GeneralInfo{"date": "3/5/2024"}, []model.TreeRecord{
		{TreeNumber: 1, Decision: "Safe"},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "3/5/2024", rows[0].ActionDate)
}

func TestBuildRows_TreeAttributes(t *testing.T) {
	rows := BuildRows(model.GeneralInfo{}, []model.TreeRecord{{
		TreeNumber: 1,
		Tree: map[string]string{
			"species":       "Douglas Fir",
			"treeClass":     "3",
			"wildlifeValue": "High",
			"treeHeight":    "42",
			"diameter":      "85",
		},
		AST:      "12",
		RST:      "15",
		Decision: "Dangerous - Create NWZ",
	}})
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "Douglas Fir", row.Species)
	assert.Equal(t, "3", row.TreeClass)
	assert.Equal(t, "High", row.WildlifeValue)
	assert.Equal(t, "42", row.TreeHeight)
	assert.Equal(t, "85", row.Diameter)
	assert.Equal(t, "12", row.AST)
	assert.Equal(t, "15", row.RST)
}

func TestBuildRows_Empty(t *testing.T) {
	assert.Empty(t, BuildRows(model.GeneralInfo{}, nil))
}
