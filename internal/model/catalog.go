package model

// LOD is the assessed Level of Danger, 1 through 4. Zero means unset.
type LOD int

// Valid reports whether l is one of the four defined danger levels.
func (l LOD) Valid() bool {
	return l >= 1 && l <= 4
}

// DangerIndicators maps each danger level to its ordered indicator labels.
// The labels are canonical strings: export column lookups exact-match
// against them, so they must never be edited, typos included.
var DangerIndicators = map[LOD][]string{
	1: {
		"Insecurely lodged or hung up limbs/tops",
		"Highly unstable tree",
		"Recent lean with unstable roots",
	},
	2: {
		"Hazardous Top",
		"Dead Limbs",
		"Witches' Broom",
		"Split Trunk",
		"Stem Damage",
		"Thick Sloughing Bark or Sapwood",
		"Butt and Stem Cankers",
		"Fungal Fruiting Bodies",
		"Tree Lean",
		"Root Inspection",
	},
	3: {
		"Hazardous Top",
		"Dead Limbs",
		"Witches' Broom",
		"Split Trunk",
		"Stem Damage",
		"Thick Sloughing Bark or Sapwood",
		"Butt and Stem Cankers",
		"Fungal Fruiting Bodies",
		"Tree Lean",
		"Root Inspection",
	},
	4: {
		"Class 1 Tree",
		"Class 2 tree with no structural defects",
		"Class 2 Cedar with low failture potential",
		"Class 3 Conifer with no structural defects",
		"None of the above",
	},
}

// NoneOfTheAbove is the level-4 indicator that marks the tree dangerous.
const NoneOfTheAbove = "None of the above"

// Decision outcomes offered at the decision step.
const (
	DecisionSafe     = "Safe"
	DecisionFallTree = "Dangerous - Fall Tree"
	DecisionNWZ      = "Dangerous - Create NWZ"
)

// Decisions is the ordered outcome list shown to the assessor. The Other
// outcome carries a free-text qualifier, see decision.go.
var Decisions = []string{
	DecisionSafe,
	DecisionFallTree,
	DecisionNWZ,
	DecisionOther,
}
