package analysis

import (
	"sort"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

// AnalyzeLogbook totals a user's flights. Simulator time is reported on its
// own and kept out of the flight-hour, mode and role totals.
func AnalyzeLogbook(flights []models.Flight) *models.LogbookSummary {
	summary := &models.LogbookSummary{
		Flights:         len(flights),
		HoursByMode:     make(map[string]float64),
		HoursByAircraft: make(map[string]float64),
		HoursByRole:     make(map[string]float64),
	}

	airfields := make(map[string]int)

	for _, f := range flights {
		summary.HoursByAircraft[aircraftName(f)] += f.TotalFlightHours
		summary.Landings += f.Landings
		summary.AllLandings += f.AllLandings
		trackDates(summary, f.Date)

		if f.IsSimulator {
			summary.SimulatorHours += f.TotalFlightHours
			continue
		}

		summary.TotalHours += f.TotalFlightHours
		for _, e := range f.HourBreakdown {
			summary.HoursByMode[e.Mode.Label()] += e.Duration
		}

		role := string(f.PilotRole)
		if role == "" {
			role = "Unspecified"
		}
		summary.HoursByRole[role] += f.TotalFlightHours
		switch {
		case f.PilotRole.IsRated():
			summary.RatedHours += f.TotalFlightHours
		case f.PilotRole.Valid():
			summary.NonRatedHours += f.TotalFlightHours
		}

		// Every stop counts, not only the arrival.
		if f.Origin != "" {
			airfields[f.Origin]++
		}
		for _, d := range f.Destinations {
			airfields[d]++
		}
	}

	summary.MostFlownAirfield = mostVisited(airfields)
	return summary
}

func aircraftName(f models.Flight) string {
	if f.CustomAircraftType != "" {
		return f.CustomAircraftType
	}
	if f.AircraftType == "" {
		return "Unknown"
	}
	return f.AircraftType
}

func trackDates(s *models.LogbookSummary, date string) {
	if date == "" {
		return
	}
	if s.FirstFlight == "" || date < s.FirstFlight {
		s.FirstFlight = date
	}
	if date > s.LastFlight {
		s.LastFlight = date
	}
}

// mostVisited breaks ties alphabetically so the result is stable.
func mostVisited(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestCount := "", 0
	for _, name := range names {
		if counts[name] > bestCount {
			best, bestCount = name, counts[name]
		}
	}
	return best
}
