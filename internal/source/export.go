package source

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jszwec/csvutil"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

// LegacyRowFromFlight renders a stored flight in the legacy export layout,
// so an export can be read back through the legacy adapter. The owner column
// is left empty.
func LegacyRowFromFlight(f models.Flight) (LegacyFlightRow, error) {
	destinations := f.Destinations
	if destinations == nil {
		destinations = []string{}
	}
	dest, err := json.Marshal(destinations)
	if err != nil {
		return LegacyFlightRow{}, err
	}
	breakdown := f.HourBreakdown
	if breakdown == nil {
		breakdown = []models.HourEntry{}
	}
	hours, err := json.Marshal(breakdown)
	if err != nil {
		return LegacyFlightRow{}, err
	}

	aircraft := f.AircraftType
	if f.CustomAircraftType != "" {
		aircraft = f.CustomAircraftType
	}
	mission := f.MissionType
	if f.CustomMissionType != "" {
		mission = f.CustomMissionType
	}

	return LegacyFlightRow{
		Date:          f.Date,
		AircraftType:  aircraft,
		Registration:  f.TailNumber,
		Origin:        f.Origin,
		Destinations:  string(dest),
		HourBreakdown: string(hours),
		MissionType:   mission,
		PilotRole:     string(f.PilotRole),
		Remarks:       f.Remarks,
		Landings:      strconv.Itoa(f.Landings),
		DayLandings:   strconv.Itoa(f.DayLandings),
		NightLandings: strconv.Itoa(f.NightLandings),
		IsSimulator:   strconv.FormatBool(f.IsSimulator),
	}, nil
}

// WriteLegacy writes flights as a legacy export. The header row is written
// even when there are no flights.
func WriteLegacy(w io.Writer, flights []models.Flight) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if err := enc.EncodeHeader(LegacyFlightRow{}); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}
	for i := range flights {
		row, err := LegacyRowFromFlight(flights[i])
		if err != nil {
			return fmt.Errorf("encoding flight %d: %w", flights[i].ID, err)
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("writing flight %d: %w", flights[i].ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
