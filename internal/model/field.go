package model

// FieldType identifies the input widget a field descriptor expects.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldSelect FieldType = "select"
	FieldDate   FieldType = "date"
	FieldFile   FieldType = "file"
)

// FieldDef describes a single form field: its storage key, display label,
// whether it gates progression, and the options offered for select fields.
type FieldDef struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Required    bool      `json:"required,omitempty"`
	Type        FieldType `json:"type"`
	Options     []string  `json:"options,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// GeneralFields is the ordered descriptor list for the general-information
// page. One general page exists per assessment day.
var GeneralFields = []FieldDef{
	{Key: "assessorName", Label: "Assessor's Name", Required: true, Type: FieldText},
	{Key: "date", Label: "Date", Required: true, Type: FieldDate},
	{Key: "certificateNumber", Label: "Certificate #", Type: FieldNumber},
	{Key: "mapAttached", Label: "Map Attached", Type: FieldFile},
	{Key: "district", Label: "District", Type: FieldText},
	{Key: "location", Label: "Location", Type: FieldText},
	{Key: "licenseeCp", Label: "Licensee/CP", Type: FieldText},
	{Key: "block", Label: "Block", Type: FieldText},
	{Key: "activity", Label: "Activity", Type: FieldText},
	{Key: "levelOfDisturbance", Label: "Level of Disturbance", Type: FieldText},
	{Key: "otherReference", Label: "Other Reference", Type: FieldText},
}

// TreeFields is the ordered descriptor list for the per-tree attributes page.
var TreeFields = []FieldDef{
	{Key: "species", Label: "Species", Required: true, Type: FieldText},
	{Key: "treeClass", Label: "Tree Class", Required: true, Type: FieldSelect,
		Options: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"}},
	{Key: "wildlifeValue", Label: "Wildlife Value", Required: true, Type: FieldSelect,
		Options: []string{"Low", "Moderate", "High"}},
	{Key: "treeHeight", Label: "Tree Height (m)", Required: true, Type: FieldNumber, Placeholder: "m"},
	{Key: "diameter", Label: "Diameter (cm)", Required: true, Type: FieldNumber, Placeholder: "cm"},
}

// RequiredKeys returns the keys of the required fields, in declaration order.
func RequiredKeys(fields []FieldDef) []string {
	var keys []string
	for _, f := range fields {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// FieldByKey returns the descriptor for key, or nil if the list has none.
func FieldByKey(fields []FieldDef, key string) *FieldDef {
	for i := range fields {
		if fields[i].Key == key {
			return &fields[i]
		}
	}
	return nil
}
