package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/nzvengeance/flight-logbook/internal/logbook"
)

// LegacyFlightRow is one row of the legacy logbook export. Every column is
// read as text; the normalizer does the coercion.
type LegacyFlightRow struct {
	Date          string `csv:"date"`
	AircraftType  string `csv:"aircraft_type"`
	Registration  string `csv:"registration"`
	Origin        string `csv:"origin"`
	Destinations  string `csv:"destinations"`
	HourBreakdown string `csv:"hour_breakdown"`
	MissionType   string `csv:"mission_type"`
	PilotRole     string `csv:"pilot_role"`
	Remarks       string `csv:"remarks"`
	Landings      string `csv:"landings"`
	DayLandings   string `csv:"day_landings"`
	NightLandings string `csv:"night_landings"`
	IsSimulator   string `csv:"is_simulator"`
	UserID        string `csv:"user_id"`
}

// Record keys the row by the legacy column names, the same names
// logbook.LegacyMapping expects.
func (r LegacyFlightRow) Record() logbook.Record {
	return logbook.Record{
		"date":           r.Date,
		"aircraft_type":  r.AircraftType,
		"registration":   r.Registration,
		"origin":         r.Origin,
		"destinations":   r.Destinations,
		"hour_breakdown": r.HourBreakdown,
		"mission_type":   r.MissionType,
		"pilot_role":     r.PilotRole,
		"remarks":        r.Remarks,
		"landings":       r.Landings,
		"day_landings":   r.DayLandings,
		"night_landings": r.NightLandings,
		"is_simulator":   r.IsSimulator,
		"user_id":        r.UserID,
	}
}

// Legacy decodes the legacy export with csvutil. Missing columns decode as
// empty strings.
type Legacy struct {
	dec *csvutil.Decoder
}

var _ logbook.RecordSource = (*Legacy)(nil)

func NewLegacy(r io.Reader) (*Legacy, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	dec, err := csvutil.NewDecoder(cr)
	if errors.Is(err, io.EOF) {
		return &Legacy{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder for legacy export: %w", err)
	}
	return &Legacy{dec: dec}, nil
}

func (s *Legacy) Next(ctx context.Context) (logbook.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.dec == nil {
		return nil, io.EOF
	}

	var row LegacyFlightRow
	if err := s.dec.Decode(&row); err != nil {
		return nil, err
	}
	return row.Record(), nil
}
