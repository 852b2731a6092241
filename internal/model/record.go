package model

import "time"

// GeneralInfo holds the general-information page for one day as a
// field-key to value mapping, keyed by the descriptors in GeneralFields.
type GeneralInfo map[string]string

// Get returns the value for key, or "" when unset.
func (g GeneralInfo) Get(key string) string {
	if g == nil {
		return ""
	}
	return g[key]
}

// TreeRecord is one persisted per-tree assessment. ID is empty until the
// store assigns it on first successful create, after which it never changes.
// TreeNumber is 1-based within DateKey, assigned at creation time as one
// past the day's record count, and preserved across edits. Deleting a
// record does not renumber the rest, so a number can recur within a day.
type TreeRecord struct {
	ID         string            `json:"id" yaml:"id"`
	TreeNumber int               `json:"tree_number" yaml:"tree_number"`
	DateKey    string            `json:"date_key" yaml:"date_key"`
	Tree       map[string]string `json:"tree" yaml:"tree"`
	LOD        LOD               `json:"lod" yaml:"lod"`
	LODChecks  map[string]bool   `json:"lod_checks" yaml:"lod_checks"`
	AST        string            `json:"ast,omitempty" yaml:"ast,omitempty"`
	RST        string            `json:"rst,omitempty" yaml:"rst,omitempty"`
	Decision   string            `json:"decision" yaml:"decision"`
}

// TreeField returns a tree attribute by key, or "" when unset.
func (r TreeRecord) TreeField(key string) string {
	if r.Tree == nil {
		return ""
	}
	return r.Tree[key]
}

// DayKey formats t as the fixed-width ISO day key (YYYY-MM-DD) used to
// scope records to an assessment day.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatDateLabel renders the locale-style display label stored in the
// general page's date field.
func FormatDateLabel(t time.Time) string {
	return t.Format("1/2/2006")
}

// ParseDateLabel parses a stored date label back into a time. It accepts
// the label format written by FormatDateLabel and the ISO day-key form.
func ParseDateLabel(label string) (time.Time, bool) {
	for _, layout := range []string{"1/2/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, label); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
