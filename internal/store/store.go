package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/treeline-forestry/dta-cli/internal/model"
)

// ErrNotFound is returned when an update or delete target cannot be
// resolved, by identifier or by its (date key, tree number) fallback.
var ErrNotFound = eris.New("tree record not found")

// Store defines the persistence contract for assessment data. General
// pages are keyed by ISO day key; tree records carry store-assigned
// identifiers. Create, update, and delete are each atomic: the tree
// attributes, danger level, stem measurements, indicator selections, and
// decision commit together or not at all.
type Store interface {
	// General page (insert-or-update, one row per day)
	SaveGeneral(ctx context.Context, dateKey string, general model.GeneralInfo) error
	LoadGeneral(ctx context.Context, dateKey string) (model.GeneralInfo, error)

	// Tree records
	ListTrees(ctx context.Context) ([]model.TreeRecord, error)
	CreateTree(ctx context.Context, rec model.TreeRecord) (string, error)
	UpdateTree(ctx context.Context, rec model.TreeRecord) (string, error)
	DeleteTree(ctx context.Context, rec model.TreeRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// generalColumns maps general_page columns to GeneralInfo field keys, in
// the column order used by both drivers' upsert and select statements.
var generalColumns = []struct {
	Column string
	Key    string
}{
	{"assessor_name", "assessorName"},
	{"date_label", "date"},
	{"certificate_number", "certificateNumber"},
	{"map_attached", "mapAttached"},
	{"district", "district"},
	{"location", "location"},
	{"licensee_cp", "licenseeCp"},
	{"block", "block"},
	{"activity", "activity"},
	{"level_of_disturbance", "levelOfDisturbance"},
	{"other_reference", "otherReference"},
}

// checkedLabels returns the indicator labels marked true, in stable
// catalog order when the level is known, so reinserted rows are
// deterministic.
func checkedLabels(rec model.TreeRecord) []string {
	var labels []string
	if catalog, ok := model.DangerIndicators[rec.LOD]; ok {
		for _, label := range catalog {
			if rec.LODChecks[label] {
				labels = append(labels, label)
			}
		}
		return labels
	}
	for label, checked := range rec.LODChecks {
		if checked {
			labels = append(labels, label)
		}
	}
	return labels
}
