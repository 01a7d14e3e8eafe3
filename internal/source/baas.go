package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nzvengeance/flight-logbook/internal/baas"
	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/models"
)

// Pager fetches one page of a class. *baas.Client implements it.
type Pager interface {
	FetchPage(ctx context.Context, class string, skip int) ([]baas.Object, error)
	PageSize() int
}

// baasColumns renames backend field names to the legacy export columns so the
// legacy adapter applies unchanged.
var baasColumns = map[string]string{
	"date":          "date",
	"aircraftType":  "aircraft_type",
	"tailNumber":    "registration",
	"registration":  "registration",
	"origin":        "origin",
	"destinations":  "destinations",
	"hourBreakdown": "hour_breakdown",
	"missionType":   "mission_type",
	"pilotRole":     "pilot_role",
	"remarks":       "remarks",
	"landings":      "landings",
	"dayLandings":   "day_landings",
	"nightLandings": "night_landings",
	"isSimulator":   "is_simulator",
	"user":          "user_id",
	"userId":        "user_id",
}

// BaaS pages through a backend class lazily, one page in memory at a time.
type BaaS struct {
	pager Pager
	class string
	buf   []baas.Object
	skip  int
	done  bool
}

var _ logbook.RecordSource = (*BaaS)(nil)

func NewBaaS(pager Pager, class string) *BaaS {
	return &BaaS{pager: pager, class: class}
}

func (s *BaaS) Next(ctx context.Context) (logbook.Record, error) {
	if len(s.buf) == 0 && !s.done {
		page, err := s.pager.FetchPage(ctx, s.class, s.skip)
		if err != nil {
			return nil, err
		}
		s.skip += len(page)
		if len(page) < s.pager.PageSize() {
			s.done = true
		}
		s.buf = page
	}
	if len(s.buf) == 0 {
		return nil, io.EOF
	}

	obj := s.buf[0]
	s.buf = s.buf[1:]
	return ObjectRecord(obj), nil
}

// ObjectRecord flattens a backend object into a raw record. Arrays and plain
// objects are re-encoded as JSON text, dates become their ISO string and
// pointers become the target object id.
func ObjectRecord(obj baas.Object) logbook.Record {
	rec := make(logbook.Record, len(obj))
	for k, v := range obj {
		name := k
		if col, ok := baasColumns[k]; ok {
			name = col
		}
		rec[name] = valueString(v)
	}
	return rec
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		switch t["__type"] {
		case "Date":
			if iso, ok := t["iso"].(string); ok {
				return iso
			}
		case "Pointer":
			if id, ok := t["objectId"].(string); ok {
				return id
			}
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// GroupFromObject maps a backend FlightGroup object onto the relational
// model. Groups carry no derived fields; a missing id code gets a fresh one.
func GroupFromObject(obj baas.Object) models.FlightGroup {
	g := models.FlightGroup{
		IDCode:         valueString(obj["idCode"]),
		Name:           valueString(obj["name"]),
		Description:    valueString(obj["description"]),
		AdminEmail:     valueString(obj["adminEmail"]),
		CreatedByName:  valueString(obj["createdByName"]),
		CreatedByID:    valueString(obj["createdById"]),
		Members:        stringList(obj["members"]),
		PendingMembers: stringList(obj["pendingMembers"]),
		CreatedAt:      timeValue(obj["createdAt"]),
		UpdatedAt:      timeValue(obj["updatedAt"]),
	}
	if g.CreatedByID == "" {
		g.CreatedByID = valueString(obj["createdBy"])
	}
	if g.IDCode == "" {
		g.IDCode = uuid.NewString()
	}
	return g
}

func stringList(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		if s := valueString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func timeValue(v any) time.Time {
	t, err := time.Parse(time.RFC3339, valueString(v))
	if err != nil {
		return time.Time{}
	}
	return t
}
