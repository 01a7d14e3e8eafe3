package models

import "time"

// --- Enumerations ---

// Mode is a flight condition an hour entry was logged under.
type Mode string

const (
	ModeDay          Mode = "D"
	ModeNight        Mode = "N"
	ModeNightGoggles Mode = "NG"
	ModeNightSystem  Mode = "NS"
	ModeDaySystem    Mode = "DS"
	ModeHood         Mode = "H"
	ModeWeather      Mode = "W"
)

// Modes is the closed set of flight modes, in display order.
var Modes = []Mode{ModeDay, ModeNight, ModeNightGoggles, ModeNightSystem, ModeDaySystem, ModeHood, ModeWeather}

var modeLabels = map[Mode]string{
	ModeDay:          "Day",
	ModeNight:        "Night",
	ModeNightGoggles: "Night Goggles",
	ModeNightSystem:  "Night System",
	ModeDaySystem:    "Day System",
	ModeHood:         "Hood",
	ModeWeather:      "Weather",
}

// Label returns the display name, or the raw code for unrecognised modes.
func (m Mode) Label() string {
	if l, ok := modeLabels[m]; ok {
		return l
	}
	return string(m)
}

func (m Mode) Valid() bool {
	_, ok := modeLabels[m]
	return ok
}

// ParseMode accepts either a code ("NG") or a label ("Night Goggles", "night-goggles").
func ParseMode(s string) (Mode, bool) {
	if m := Mode(s); m.Valid() {
		return m, true
	}
	norm := normalizeLabel(s)
	for m, l := range modeLabels {
		if normalizeLabel(l) == norm || normalizeLabel(string(m)) == norm {
			return m, true
		}
	}
	return Mode(s), false
}

type SeatPosition string

const (
	SeatLeft  SeatPosition = "L"
	SeatRight SeatPosition = "R"
	SeatFront SeatPosition = "F"
	SeatBack  SeatPosition = "B"
)

// SeatPositionsFor returns the crew seat positions for an aircraft family.
// Tandem-seat attack helicopters use Front/Back; everything else Left/Right.
func SeatPositionsFor(aircraftType string) []SeatPosition {
	if IsTandemSeat(aircraftType) {
		return []SeatPosition{SeatFront, SeatBack}
	}
	return []SeatPosition{SeatLeft, SeatRight}
}

// IsTandemSeat reports whether the aircraft belongs to the attack-helicopter family.
func IsTandemSeat(aircraftType string) bool {
	t := normalizeLabel(aircraftType)
	for _, prefix := range []string{"ah64", "ah1"} {
		if len(t) >= len(prefix) && t[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// ParseSeatPosition accepts codes ("F") and words ("front", "Left Seat").
func ParseSeatPosition(s string) (SeatPosition, bool) {
	switch norm := normalizeLabel(s); {
	case norm == "":
		return "", false
	case norm == "l" || norm == "left" || norm == "leftseat":
		return SeatLeft, true
	case norm == "r" || norm == "right" || norm == "rightseat":
		return SeatRight, true
	case norm == "f" || norm == "front" || norm == "frontseat":
		return SeatFront, true
	case norm == "b" || norm == "back" || norm == "backseat" || norm == "rear":
		return SeatBack, true
	}
	return SeatPosition(s), false
}

type PilotRole string

// Rated roles require an aviator rating; non-rated roles are crew positions.
var (
	RatedRoles    = []PilotRole{"PC", "PI", "IP", "SP", "IE", "UT", "ME", "MP", "XP"}
	NonRatedRoles = []PilotRole{"CE", "FE", "FI", "SI", "MO", "OR"}
)

func (r PilotRole) IsRated() bool {
	return containsRole(RatedRoles, r)
}

func (r PilotRole) Valid() bool {
	return containsRole(RatedRoles, r) || containsRole(NonRatedRoles, r)
}

func containsRole(set []PilotRole, r PilotRole) bool {
	for _, s := range set {
		if s == r {
			return true
		}
	}
	return false
}

// normalizeLabel lowercases and drops everything but letters and digits.
func normalizeLabel(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b = append(b, c)
		}
	}
	return string(b)
}

// --- Logbook ---

// HourEntry is one line of a flight's hour breakdown.
type HourEntry struct {
	Mode         Mode         `json:"mode"`
	Duration     float64      `json:"duration"`
	SeatPosition SeatPosition `json:"seatPosition,omitempty"`
}

// Flight is one logged flight event. TotalFlightHours and AllLandings are
// derived fields; they are recomputed from their sources and never edited.
type Flight struct {
	ID                 int64       `json:"id"`
	UserID             int64       `json:"userId"`
	Date               string      `json:"date"` // YYYY-MM-DD
	AircraftType       string      `json:"aircraftType"`
	CustomAircraftType string      `json:"customAircraftType,omitempty"`
	IsSimulator        bool        `json:"isSimulator"`
	TailNumber         string      `json:"tailNumber"`
	Origin             string      `json:"origin"`
	Destinations       []string    `json:"destinations"`
	Arrival            string      `json:"arrival"`
	HourBreakdown      []HourEntry `json:"hourBreakdown"`
	TotalFlightHours   float64     `json:"totalFlightHours"`
	Landings           int         `json:"landings"`
	DayLandings        int         `json:"dayLandings"`
	NightLandings      int         `json:"nightLandings"`
	AllLandings        int         `json:"allLandings"`
	MissionType        string      `json:"missionType"`
	CustomMissionType  string      `json:"customMissionType,omitempty"`
	PilotRole          PilotRole   `json:"pilotRole"`
	Remarks            string      `json:"remarks"`
	ImportRunID        string      `json:"importRunId,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// FlightGroup is a shared logbook group. It is persisted as-is.
type FlightGroup struct {
	ID             int64     `json:"id"`
	IDCode         string    `json:"idCode"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	AdminEmail     string    `json:"adminEmail"`
	CreatedByName  string    `json:"createdByName"`
	CreatedByID    string    `json:"createdById"`
	Members        []string  `json:"members"`
	PendingMembers []string  `json:"pendingMembers"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// --- Users ---

// User owns flights. ExternalKey is the identity from the token subject or
// from a migration source.
type User struct {
	ID          int64     `json:"id"`
	ExternalKey string    `json:"externalKey"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Preferences are the user-entered enumerations remembered between form submissions.
type Preferences struct {
	CustomAircraftTypes []string `json:"customAircraftTypes"`
	CustomMissionTypes  []string `json:"customMissionTypes"`
	PublicLogbook       bool     `json:"publicLogbook"`
}

// --- Imports ---

const (
	ImportStatusRunning   = "running"
	ImportStatusCompleted = "completed"
	ImportStatusAborted   = "aborted"
)

type ImportRun struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"userId"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// --- Summary ---

type LogbookSummary struct {
	Flights           int                `json:"flights"`
	TotalHours        float64            `json:"totalHours"`
	SimulatorHours    float64            `json:"simulatorHours"`
	HoursByMode       map[string]float64 `json:"hoursByMode"`
	HoursByAircraft   map[string]float64 `json:"hoursByAircraft"`
	HoursByRole       map[string]float64 `json:"hoursByRole"`
	RatedHours        float64            `json:"ratedHours"`
	NonRatedHours     float64            `json:"nonRatedHours"`
	Landings          int                `json:"landings"`
	AllLandings       int                `json:"allLandings"`
	FirstFlight       string             `json:"firstFlight,omitempty"`
	LastFlight        string             `json:"lastFlight,omitempty"`
	MostFlownAirfield string             `json:"mostFlownAirfield,omitempty"`
}
