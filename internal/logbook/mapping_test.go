package logbook

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

func fullMapping() Mapping {
	return Mapping{
		FieldDate:       "Date",
		FieldAircraft:   "Aircraft",
		FieldTotalHours: "Hours",
		FieldPilotRole:  "Role",
		FieldOrigin:     "From",
	}
}

func TestMappingValidate(t *testing.T) {
	require.NoError(t, fullMapping().Validate())

	m := fullMapping()
	delete(m, FieldTotalHours)
	m[FieldPilotRole] = "  "

	err := m.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMappingIncomplete))

	var incomplete *MappingIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []Field{FieldTotalHours, FieldPilotRole}, incomplete.Missing)
}

func TestNewAdapterRejectsIncompleteMapping(t *testing.T) {
	_, err := NewAdapter(Mapping{FieldDate: "Date"})
	assert.ErrorIs(t, err, ErrMappingIncomplete)
}

func TestAdapt(t *testing.T) {
	a, err := NewAdapter(fullMapping())
	require.NoError(t, err)

	rec, err := a.Adapt(Record{"date": " 2024-03-01 ", "Aircraft": "UH-60", "Hours": "1.2", "Role": "PI", "Extra": "x"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", rec[FieldDate], "matched case-insensitively and trimmed")
	assert.Equal(t, "1.2", rec[FieldTotalHours])
	_, hasOrigin := rec[FieldOrigin]
	assert.False(t, hasOrigin)

	_, err = a.Adapt(Record{"Date": "2024-03-01", "Aircraft": "UH-60", "Hours": "", "Role": "PI"})
	assert.ErrorIs(t, err, ErrRecordInvalid)
}

func TestLegacyAdapterOnlyRequiresDate(t *testing.T) {
	rec, err := NewLegacyAdapter().Adapt(Record{"date": "2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", rec[FieldDate])

	_, err = NewLegacyAdapter().Adapt(Record{"date": "", "aircraft_type": "UH-60"})
	assert.ErrorIs(t, err, ErrRecordInvalid)
}

func TestCatalog(t *testing.T) {
	assert.Equal(t, []Field{FieldDate, FieldAircraft, FieldTotalHours, FieldPilotRole}, RequiredFields())

	c := Catalog()
	c[0].Required = false
	assert.True(t, Catalog()[0].Required, "catalog is copied")
}

func TestSuggestMapping(t *testing.T) {
	m := SuggestMapping([]string{"Flight Date", "Aircraft", "Total Hours", "Pilot Role", "Tail #", "Remarks"})

	assert.Equal(t, "Flight Date", m[FieldDate])
	assert.Equal(t, "Aircraft", m[FieldAircraft])
	assert.Equal(t, "Total Hours", m[FieldTotalHours])
	assert.Equal(t, "Pilot Role", m[FieldPilotRole])
	assert.Equal(t, "Remarks", m[FieldRemarks])
	assert.NoError(t, m.Validate())
}

func TestValidateFlight(t *testing.T) {
	ok := &models.Flight{
		Date:          "2024-01-02",
		AircraftType:  "AH-64E",
		PilotRole:     "PC",
		HourBreakdown: []models.HourEntry{{Mode: models.ModeNightSystem, Duration: 1.5, SeatPosition: models.SeatBack}},
	}
	assert.NoError(t, ValidateFlight(ok))

	bad := &models.Flight{
		Date:          "",
		AircraftType:  "UH-60",
		PilotRole:     "ZZ",
		DayLandings:   -1,
		HourBreakdown: []models.HourEntry{{Mode: "X", Duration: -1, SeatPosition: models.SeatFront}},
	}
	err := ValidateFlight(bad)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 6)
}

func TestValidateFlightCanonicalizesDate(t *testing.T) {
	f := &models.Flight{Date: "12/31/2024", AircraftType: "UH-60M"}
	require.NoError(t, ValidateFlight(f))
	assert.Equal(t, "2024-12-31", f.Date)

	f = &models.Flight{Date: "2024-03-01T10:00:00Z", AircraftType: "UH-60M"}
	require.NoError(t, ValidateFlight(f))
	assert.Equal(t, "2024-03-01", f.Date)
}

func TestAdapterWithoutOwner(t *testing.T) {
	a := NewLegacyAdapter().WithoutOwner()
	rec, err := a.Adapt(Record{"date": "2024-01-01", "user_id": "someone-else"})
	require.NoError(t, err)
	assert.NotContains(t, rec, FieldOwner)
	assert.Contains(t, LegacyMapping, FieldOwner)
}
