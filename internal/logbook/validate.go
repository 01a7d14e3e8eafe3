package logbook

import (
	"fmt"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

// ValidateFlight checks an interactively entered flight and rewrites its
// date as YYYY-MM-DD. Imported flights are never passed through here; the
// normalizer accepts unknown modes and roles.
func ValidateFlight(f *models.Flight) error {
	var problems []string

	if date, ok := parseDate(f.Date); ok {
		f.Date = date
	} else {
		problems = append(problems, "date is required (YYYY-MM-DD or MM/DD/YYYY)")
	}
	if f.AircraftType == "" && f.CustomAircraftType == "" {
		problems = append(problems, "aircraft type is required")
	}
	if f.PilotRole != "" && !f.PilotRole.Valid() {
		problems = append(problems, fmt.Sprintf("unknown pilot role %q", f.PilotRole))
	}
	if f.Landings < 0 || f.DayLandings < 0 || f.NightLandings < 0 {
		problems = append(problems, "landing counts cannot be negative")
	}

	seats := models.SeatPositionsFor(f.AircraftType)
	for i, e := range f.HourBreakdown {
		if !e.Mode.Valid() {
			problems = append(problems, fmt.Sprintf("hour entry %d: unknown mode %q", i+1, e.Mode))
		}
		if e.Duration < 0 {
			problems = append(problems, fmt.Sprintf("hour entry %d: duration cannot be negative", i+1))
		}
		if e.SeatPosition != "" && !containsSeat(seats, e.SeatPosition) {
			problems = append(problems, fmt.Sprintf("hour entry %d: seat %q not valid for %s", i+1, e.SeatPosition, f.AircraftType))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func containsSeat(seats []models.SeatPosition, s models.SeatPosition) bool {
	for _, seat := range seats {
		if seat == s {
			return true
		}
	}
	return false
}
