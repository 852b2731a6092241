// Package logbook derives the day-keyed logbook view from the persisted
// tree record set. It is a pure read-side projection: nothing here writes.
package logbook

import (
	"sort"

	"github.com/treeline-forestry/dta-cli/internal/model"
)

// Index groups tree records by their ISO day key.
type Index struct {
	days   []string
	counts map[string]int
	byDay  map[string][]model.TreeRecord
}

// NewIndex builds the projection from records in any order.
func NewIndex(records []model.TreeRecord) *Index {
	idx := &Index{
		counts: map[string]int{},
		byDay:  map[string][]model.TreeRecord{},
	}
	for _, rec := range records {
		if idx.counts[rec.DateKey] == 0 {
			idx.days = append(idx.days, rec.DateKey)
		}
		idx.counts[rec.DateKey]++
		idx.byDay[rec.DateKey] = append(idx.byDay[rec.DateKey], rec)
	}

	// Newest first. The day key is fixed-width YYYY-MM-DD, so descending
	// lexicographic order is descending date order.
	sort.Sort(sort.Reverse(sort.StringSlice(idx.days)))

	for _, recs := range idx.byDay {
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].TreeNumber < recs[j].TreeNumber
		})
	}
	return idx
}

// Days returns the distinct day keys, newest first.
func (idx *Index) Days() []string { return idx.days }

// Count returns how many records belong to dateKey.
func (idx *Index) Count(dateKey string) int { return idx.counts[dateKey] }

// ForDay returns dateKey's records sorted ascending by tree number.
func (idx *Index) ForDay(dateKey string) []model.TreeRecord { return idx.byDay[dateKey] }
