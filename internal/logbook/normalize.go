package logbook

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

const (
	DefaultAircraft    = "Unknown"
	DefaultMissionType = "Day"
	DefaultLandings    = 1
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Normalize turns one intermediate record into a Flight owned by owner.
// Only the date and the owner are hard requirements; every other field is
// decoded leniently and defaulted.
func Normalize(rec Intermediate, owner int64) (*models.Flight, error) {
	date, ok := parseDate(rec[FieldDate])
	if !ok {
		return nil, invalid("missing date")
	}
	if owner == 0 {
		return nil, invalid("missing owner")
	}

	aircraft, descriptorSeat := splitAircraft(rec[FieldAircraft])
	seat := descriptorSeat
	if s, ok := models.ParseSeatPosition(rec[FieldSeatPosition]); ok {
		seat = s
	}

	f := &models.Flight{
		UserID:        owner,
		Date:          date,
		AircraftType:  aircraft,
		TailNumber:    rec[FieldTailNumber],
		Origin:        rec[FieldOrigin],
		Destinations:  decodeDestinations(rec[FieldDestinations]),
		MissionType:   rec[FieldMissionType],
		PilotRole:     models.PilotRole(strings.ToUpper(rec[FieldPilotRole])),
		Remarks:       rec[FieldRemarks],
		Landings:      parseCount(rec[FieldLandings], DefaultLandings),
		DayLandings:   parseCount(rec[FieldDayLandings], 0),
		NightLandings: parseCount(rec[FieldNightLandings], 0),
	}

	f.HourBreakdown = decodeHourBreakdown(rec[FieldHourBreakdown])
	if total := rec[FieldTotalHours]; len(f.HourBreakdown) == 0 && strings.TrimSpace(total) != "" {
		mode := models.ModeDay
		if m, ok := models.ParseMode(rec[FieldFlightMode]); ok {
			mode = m
		} else if rec[FieldFlightMode] != "" {
			mode = models.Mode(rec[FieldFlightMode])
		}
		f.HourBreakdown = []models.HourEntry{{Mode: mode, Duration: parseDuration(total), SeatPosition: seat}}
	}

	if f.AircraftType == "" {
		f.AircraftType = DefaultAircraft
	}
	if f.MissionType == "" {
		f.MissionType = DefaultMissionType
	}
	f.IsSimulator = parseSimulator(rec[FieldSimulator], rec[FieldAircraft])

	Recompute(f)
	return f, nil
}

func parseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// decodeHourBreakdown decodes a JSON list of {mode, duration, seatPosition}.
// Anything that is not a JSON list yields an empty breakdown.
func decodeHourBreakdown(raw string) []models.HourEntry {
	entries := []models.HourEntry{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return entries
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return entries
	}

	for _, item := range items {
		if item == nil {
			continue
		}
		entry := models.HourEntry{Duration: durationOf(item["duration"])}
		if s, ok := item["mode"].(string); ok {
			if m, known := models.ParseMode(s); known {
				entry.Mode = m
			} else {
				entry.Mode = models.Mode(s)
			}
		}
		if s, ok := item["seatPosition"].(string); ok {
			if p, known := models.ParseSeatPosition(s); known {
				entry.SeatPosition = p
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func durationOf(v any) float64 {
	switch d := v.(type) {
	case float64:
		return clampDuration(d)
	case string:
		return parseDuration(d)
	}
	return 0
}

// parseDuration accepts decimal hours ("1.5") and clock notation ("1:30").
// Non-numeric and negative values count as zero.
func parseDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err1 := strconv.Atoi(h)
		mins, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil || mins < 0 || mins >= 60 {
			return 0
		}
		return clampDuration(float64(hours) + float64(mins)/60)
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return clampDuration(d)
}

func clampDuration(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

// decodeDestinations reads a JSON list of codes, falling back to route
// notation ("KDCA-KJFK", "KDCA, KJFK") for plain text. Place names may
// contain spaces.
func decodeDestinations(raw string) []string {
	out := []string{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return out
	}

	if strings.HasPrefix(raw, "[") {
		var items []any
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return out
		}
		for _, item := range items {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '-'
	})
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitAircraft separates a seat suffix from an aircraft descriptor:
// "AH-64D (F)" and "AH-64D/Front" both give ("AH-64D", F).
func splitAircraft(desc string) (string, models.SeatPosition) {
	desc = strings.TrimSpace(desc)
	if strings.HasSuffix(desc, ")") {
		if i := strings.LastIndex(desc, "("); i > 0 {
			if seat, ok := models.ParseSeatPosition(desc[i+1 : len(desc)-1]); ok {
				return strings.TrimSpace(desc[:i]), seat
			}
		}
	}
	if i := strings.LastIndex(desc, "/"); i > 0 {
		if seat, ok := models.ParseSeatPosition(desc[i+1:]); ok {
			return strings.TrimSpace(desc[:i]), seat
		}
	}
	return desc, ""
}

// parseCount accepts whole numbers, including ones written as "2.0".
func parseCount(s string, fallback int) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return fallback
		}
		return n
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return fallback
	}
	return int(v)
}

func parseSimulator(flag, aircraft string) bool {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "1", "t", "true", "y", "yes", "sim":
		return true
	}
	for _, tok := range strings.Fields(strings.ToUpper(aircraft)) {
		if tok == "SIM" || tok == "(SIM)" {
			return true
		}
	}
	return false
}
