package logbook

import "github.com/nzvengeance/flight-logbook/internal/models"

// TotalHours sums the hour breakdown. Flight.TotalFlightHours is always this value.
func TotalHours(entries []models.HourEntry) float64 {
	total := 0.0
	for _, e := range entries {
		total += e.Duration
	}
	return total
}

// AllLandings is the derived landing counter: day plus night full-stop landings.
func AllLandings(day, night int) int {
	return day + night
}

// ArrivalOf returns the last destination, or the origin when there are none.
func ArrivalOf(origin string, destinations []string) string {
	if len(destinations) > 0 {
		return destinations[len(destinations)-1]
	}
	return origin
}

// Recompute refreshes every derived field of f from its source fields.
// Call it after any mutation of the hour breakdown, landings, route or
// simulator flag.
func Recompute(f *models.Flight) {
	if f.HourBreakdown == nil {
		f.HourBreakdown = []models.HourEntry{}
	}
	if f.Destinations == nil {
		f.Destinations = []string{}
	}

	if f.IsSimulator {
		f.Origin = ""
		f.Destinations = []string{}
		f.TailNumber = ""
	}

	f.Arrival = ArrivalOf(f.Origin, f.Destinations)
	f.TotalFlightHours = TotalHours(f.HourBreakdown)
	f.AllLandings = AllLandings(f.DayLandings, f.NightLandings)
}
