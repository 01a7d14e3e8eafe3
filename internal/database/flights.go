package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

const flightColumns = `id, user_id, flight_date, aircraft_type, custom_aircraft_type, is_simulator,
	tail_number, origin, destinations, arrival, hour_breakdown, total_flight_hours,
	landings, day_landings, night_landings, all_landings,
	mission_type, custom_mission_type, pilot_role, remarks, import_run_id, created_at, updated_at`

// --- Flight Operations ---

// CreateFlight persists a flight exactly as given; derived fields must
// already be computed. It returns the new id.
func (db *DB) CreateFlight(ctx context.Context, f *models.Flight) (int64, error) {
	if f.UserID == 0 {
		return 0, fmt.Errorf("flight has no owner")
	}
	destinations, breakdown, err := encodeFlightJSON(f)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		INSERT INTO flights (user_id, flight_date, aircraft_type, custom_aircraft_type, is_simulator,
			tail_number, origin, destinations, arrival, hour_breakdown, total_flight_hours,
			landings, day_landings, night_landings, all_landings,
			mission_type, custom_mission_type, pilot_role, remarks, import_run_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, %s, %s)`,
		db.now(), db.now(),
	)

	id, err := db.insertReturningID(ctx, query,
		f.UserID, f.Date, f.AircraftType, f.CustomAircraftType, f.IsSimulator,
		f.TailNumber, f.Origin, destinations, f.Arrival, breakdown, f.TotalFlightHours,
		f.Landings, f.DayLandings, f.NightLandings, f.AllLandings,
		f.MissionType, f.CustomMissionType, string(f.PilotRole), f.Remarks, nullString(f.ImportRunID),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting flight: %w", err)
	}
	f.ID = id
	return id, nil
}

// UpdateFlight replaces every field of flight id. The flight must belong to
// f.UserID.
func (db *DB) UpdateFlight(ctx context.Context, id int64, f *models.Flight) error {
	destinations, breakdown, err := encodeFlightJSON(f)
	if err != nil {
		return err
	}

	query := db.prepareQuery(fmt.Sprintf(`
		UPDATE flights SET flight_date = ?, aircraft_type = ?, custom_aircraft_type = ?, is_simulator = ?,
			tail_number = ?, origin = ?, destinations = ?, arrival = ?, hour_breakdown = ?, total_flight_hours = ?,
			landings = ?, day_landings = ?, night_landings = ?, all_landings = ?,
			mission_type = ?, custom_mission_type = ?, pilot_role = ?, remarks = ?, updated_at = %s
		WHERE id = ? AND user_id = ?`, db.now()))

	res, err := db.conn.ExecContext(ctx, query,
		f.Date, f.AircraftType, f.CustomAircraftType, f.IsSimulator,
		f.TailNumber, f.Origin, destinations, f.Arrival, breakdown, f.TotalFlightHours,
		f.Landings, f.DayLandings, f.NightLandings, f.AllLandings,
		f.MissionType, f.CustomMissionType, string(f.PilotRole), f.Remarks,
		id, f.UserID,
	)
	if err != nil {
		return fmt.Errorf("updating flight %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	f.ID = id
	return nil
}

func (db *DB) DeleteFlight(ctx context.Context, id, userID int64) error {
	query := db.prepareQuery("DELETE FROM flights WHERE id = ? AND user_id = ?")
	res, err := db.conn.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("deleting flight %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetFlight returns flight id if it belongs to userID.
func (db *DB) GetFlight(ctx context.Context, id, userID int64) (*models.Flight, error) {
	query := db.prepareQuery("SELECT " + flightColumns + " FROM flights WHERE id = ? AND user_id = ?")
	f, err := scanFlight(db.conn.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// ListFlights returns the owner's flights, newest flight date first.
func (db *DB) ListFlights(ctx context.Context, userID int64) ([]models.Flight, error) {
	query := db.prepareQuery("SELECT " + flightColumns + " FROM flights WHERE user_id = ? ORDER BY flight_date DESC, id DESC")
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := []models.Flight{}
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(row rowScanner) (*models.Flight, error) {
	var f models.Flight
	var pilotRole, destinations, breakdown string
	var importRunID sql.NullString

	err := row.Scan(&f.ID, &f.UserID, &f.Date, &f.AircraftType, &f.CustomAircraftType, &f.IsSimulator,
		&f.TailNumber, &f.Origin, &destinations, &f.Arrival, &breakdown, &f.TotalFlightHours,
		&f.Landings, &f.DayLandings, &f.NightLandings, &f.AllLandings,
		&f.MissionType, &f.CustomMissionType, &pilotRole, &f.Remarks, &importRunID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	f.PilotRole = models.PilotRole(pilotRole)
	f.ImportRunID = importRunID.String
	f.Destinations = []string{}
	f.HourBreakdown = []models.HourEntry{}
	if err := json.Unmarshal([]byte(destinations), &f.Destinations); err != nil {
		return nil, fmt.Errorf("decoding destinations of flight %d: %w", f.ID, err)
	}
	if err := json.Unmarshal([]byte(breakdown), &f.HourBreakdown); err != nil {
		return nil, fmt.Errorf("decoding hour breakdown of flight %d: %w", f.ID, err)
	}
	return &f, nil
}

func encodeFlightJSON(f *models.Flight) (string, string, error) {
	destinations := f.Destinations
	if destinations == nil {
		destinations = []string{}
	}
	breakdown := f.HourBreakdown
	if breakdown == nil {
		breakdown = []models.HourEntry{}
	}

	d, err := json.Marshal(destinations)
	if err != nil {
		return "", "", fmt.Errorf("encoding destinations: %w", err)
	}
	b, err := json.Marshal(breakdown)
	if err != nil {
		return "", "", fmt.Errorf("encoding hour breakdown: %w", err)
	}
	return string(d), string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// --- Flight Group Operations ---

// UpsertFlightGroup stores a group keyed by its id code.
func (db *DB) UpsertFlightGroup(ctx context.Context, g *models.FlightGroup) error {
	if g.IDCode == "" {
		return fmt.Errorf("flight group has no id code")
	}
	members, err := json.Marshal(nonNil(g.Members))
	if err != nil {
		return err
	}
	pending, err := json.Marshal(nonNil(g.PendingMembers))
	if err != nil {
		return err
	}

	query := db.prepareQuery(fmt.Sprintf(`
		INSERT INTO flight_groups (id_code, name, description, admin_email, created_by_name, created_by_id,
			members, pending_members, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, %s), COALESCE(?, %s))
		%s`,
		db.now(), db.now(),
		db.onConflictUpdate("id_code", fmt.Sprintf(`
			name=excluded.name, description=excluded.description, admin_email=excluded.admin_email,
			created_by_name=excluded.created_by_name, created_by_id=excluded.created_by_id,
			members=excluded.members, pending_members=excluded.pending_members, updated_at=%s`, db.now())),
	))

	_, err = db.conn.ExecContext(ctx, query,
		g.IDCode, g.Name, g.Description, g.AdminEmail, g.CreatedByName, g.CreatedByID,
		string(members), string(pending), nullTime(g.CreatedAt), nullTime(g.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting flight group %s: %w", g.IDCode, err)
	}
	return nil
}

const flightGroupColumns = `id, id_code, name, description, admin_email, created_by_name, created_by_id,
	members, pending_members, created_at, updated_at`

// GetFlightGroup returns the group with the given id code, or ErrNotFound.
func (db *DB) GetFlightGroup(ctx context.Context, idCode string) (*models.FlightGroup, error) {
	row := db.conn.QueryRowContext(ctx,
		db.prepareQuery(`SELECT `+flightGroupColumns+` FROM flight_groups WHERE id_code = ?`), idCode)
	g, err := scanFlightGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

func (db *DB) ListFlightGroups(ctx context.Context) ([]models.FlightGroup, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+flightGroupColumns+` FROM flight_groups ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []models.FlightGroup{}
	for rows.Next() {
		g, err := scanFlightGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func scanFlightGroup(row rowScanner) (*models.FlightGroup, error) {
	var g models.FlightGroup
	var members, pending string
	if err := row.Scan(&g.ID, &g.IDCode, &g.Name, &g.Description, &g.AdminEmail, &g.CreatedByName,
		&g.CreatedByID, &members, &pending, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Members = []string{}
	g.PendingMembers = []string{}
	if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
		return nil, fmt.Errorf("decoding members of group %s: %w", g.IDCode, err)
	}
	if err := json.Unmarshal([]byte(pending), &g.PendingMembers); err != nil {
		return nil, fmt.Errorf("decoding pending members of group %s: %w", g.IDCode, err)
	}
	return &g, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
