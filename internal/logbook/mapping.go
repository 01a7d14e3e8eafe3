package logbook

import (
	"sort"
	"strings"
)

// Field is a canonical logbook field a source column can be mapped to.
type Field string

const (
	FieldDate          Field = "date"
	FieldAircraft      Field = "aircraft" // aircraft type, optionally with seat: "AH-64D (F)"
	FieldTotalHours    Field = "total_hours"
	FieldPilotRole     Field = "pilot_role"
	FieldTailNumber    Field = "tail_number"
	FieldOrigin        Field = "origin"
	FieldDestinations  Field = "destinations"
	FieldMissionType   Field = "mission_type"
	FieldFlightMode    Field = "flight_mode"
	FieldSeatPosition  Field = "seat_position"
	FieldRemarks       Field = "remarks"
	FieldHourBreakdown Field = "hour_breakdown"
	FieldLandings      Field = "landings"
	FieldDayLandings   Field = "day_landings"
	FieldNightLandings Field = "night_landings"
	FieldSimulator     Field = "simulator"
	FieldOwner         Field = "owner"
)

// FieldSpec describes one entry of the field catalog offered to the import UI.
type FieldSpec struct {
	Field    Field  `json:"field"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

var catalog = []FieldSpec{
	{FieldDate, "Flight date", true},
	{FieldAircraft, "Aircraft type and seat", true},
	{FieldTotalHours, "Total flight hours", true},
	{FieldPilotRole, "Pilot role", true},
	{FieldTailNumber, "Tail number", false},
	{FieldOrigin, "Origin", false},
	{FieldDestinations, "Destination(s)", false},
	{FieldMissionType, "Mission type", false},
	{FieldFlightMode, "Flight mode / condition", false},
	{FieldSeatPosition, "Seat position", false},
	{FieldRemarks, "Remarks", false},
}

// Catalog returns the fields an interactive mapping can assign.
func Catalog() []FieldSpec {
	out := make([]FieldSpec, len(catalog))
	copy(out, catalog)
	return out
}

// RequiredFields are the fields every interactive mapping must assign.
func RequiredFields() []Field {
	var out []Field
	for _, spec := range catalog {
		if spec.Required {
			out = append(out, spec.Field)
		}
	}
	return out
}

// Record is one raw row: column name to value.
type Record map[string]string

// Mapping assigns a source column to each canonical field.
type Mapping map[Field]string

// Validate reports the required fields that have no column assigned.
func (m Mapping) Validate() error {
	return m.validate(RequiredFields())
}

func (m Mapping) validate(required []Field) error {
	var missing []Field
	for _, f := range required {
		if strings.TrimSpace(m[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MappingIncompleteError{Missing: missing}
	}
	return nil
}

// LegacyMapping is the fixed column table of the legacy logbook export.
var LegacyMapping = Mapping{
	FieldDate:          "date",
	FieldAircraft:      "aircraft_type",
	FieldTailNumber:    "registration",
	FieldOrigin:        "origin",
	FieldDestinations:  "destinations",
	FieldHourBreakdown: "hour_breakdown",
	FieldMissionType:   "mission_type",
	FieldPilotRole:     "pilot_role",
	FieldRemarks:       "remarks",
	FieldLandings:      "landings",
	FieldDayLandings:   "day_landings",
	FieldNightLandings: "night_landings",
	FieldSimulator:     "is_simulator",
	FieldOwner:         "user_id",
}

// Intermediate is a field-mapped record, values trimmed and untyped.
type Intermediate map[Field]string

// Adapter turns raw records into intermediate records using a column mapping.
type Adapter struct {
	mapping  Mapping
	required []Field
}

// NewAdapter builds an adapter for a user-supplied mapping. It fails with
// ErrMappingIncomplete before any record is looked at.
func NewAdapter(m Mapping) (*Adapter, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{mapping: m, required: RequiredFields()}, nil
}

// NewLegacyAdapter uses the fixed legacy column table. Legacy rows carry an
// hour breakdown instead of a total, so only the date is required.
func NewLegacyAdapter() *Adapter {
	return &Adapter{mapping: LegacyMapping, required: []Field{FieldDate}}
}

func (a *Adapter) Mapping() Mapping { return a.mapping }

// WithoutOwner returns a copy of the adapter that ignores any owner column,
// so every record falls back to the loader's default owner.
func (a *Adapter) WithoutOwner() *Adapter {
	m := make(Mapping, len(a.mapping))
	for f, c := range a.mapping {
		if f != FieldOwner {
			m[f] = c
		}
	}
	return &Adapter{mapping: m, required: a.required}
}

// Adapt applies the mapping to one raw record. Required fields with an empty
// value fail the record; nothing is type checked here.
func (a *Adapter) Adapt(raw Record) (Intermediate, error) {
	out := make(Intermediate, len(a.mapping))
	for field, column := range a.mapping {
		if column == "" {
			continue
		}
		if v, ok := lookup(raw, column); ok {
			out[field] = strings.TrimSpace(v)
		}
	}

	for _, f := range a.required {
		if out[f] == "" {
			return nil, invalid("missing %s", f)
		}
	}
	return out, nil
}

// lookup finds a column by exact name, then case-insensitively.
func lookup(raw Record, column string) (string, bool) {
	if v, ok := raw[column]; ok {
		return v, true
	}
	want := strings.ToLower(strings.TrimSpace(column))
	for k, v := range raw {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return v, true
		}
	}
	return "", false
}

// SuggestMapping guesses a mapping from CSV headers by comparing normalized
// header names against field names and labels. Unmatched fields are left out.
func SuggestMapping(headers []string) Mapping {
	m := Mapping{}
	taken := map[string]bool{}
	for _, spec := range catalog {
		candidates := []string{squash(string(spec.Field)), squash(spec.Label)}
		for _, h := range headers {
			if taken[h] {
				continue
			}
			sh := squash(h)
			if sh == "" {
				continue
			}
			for _, c := range candidates {
				if sh == c || (len(sh) >= 4 && strings.HasPrefix(c, sh)) {
					m[spec.Field] = h
					taken[h] = true
					break
				}
			}
			if _, ok := m[spec.Field]; ok {
				break
			}
		}
	}
	return m
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Fields returns the mapped fields in a stable order.
func (m Mapping) Fields() []Field {
	out := make([]Field, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
