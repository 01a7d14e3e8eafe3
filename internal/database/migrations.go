package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

func (db *DB) migrate() error {
	log.Info().Msg("running database migrations")

	migrations := []string{
		db.migrationUsers(),
		db.migrationImportRuns(),
		db.migrationFlights(),
		db.migrationFlightGroups(),
		db.migrationUserSettings(),
	}

	for i, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_flights_user_date ON flights(user_id, flight_date)",
		"CREATE INDEX IF NOT EXISTS idx_flights_import_run ON flights(import_run_id)",
		"CREATE INDEX IF NOT EXISTS idx_import_runs_started_at ON import_runs(started_at)",
	}
	for _, idx := range indexes {
		if _, err := db.conn.Exec(idx); err != nil {
			return fmt.Errorf("index creation: %w", err)
		}
	}

	log.Info().Msg("migrations complete")
	return nil
}

func (db *DB) migrationUsers() string {
	ts := db.timestampType()
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
		id %s,
		external_key TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		created_at %s DEFAULT CURRENT_TIMESTAMP,
		updated_at %s DEFAULT CURRENT_TIMESTAMP
	)`, db.autoIncrement(), ts, ts)
}

func (db *DB) migrationImportRuns() string {
	ts := db.timestampType()
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS import_runs (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at %s DEFAULT CURRENT_TIMESTAMP,
		completed_at %s
	)`, ts, ts)
}

// flight_date is stored as YYYY-MM-DD text so it sorts the same on both drivers.
func (db *DB) migrationFlights() string {
	ts := db.timestampType()
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS flights (
		id %s,
		user_id INTEGER NOT NULL REFERENCES users(id),
		flight_date TEXT NOT NULL,
		aircraft_type TEXT NOT NULL DEFAULT '',
		custom_aircraft_type TEXT NOT NULL DEFAULT '',
		is_simulator BOOLEAN NOT NULL DEFAULT FALSE,
		tail_number TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT '',
		destinations TEXT NOT NULL DEFAULT '[]',
		arrival TEXT NOT NULL DEFAULT '',
		hour_breakdown TEXT NOT NULL DEFAULT '[]',
		total_flight_hours %s NOT NULL DEFAULT 0,
		landings INTEGER NOT NULL DEFAULT 0,
		day_landings INTEGER NOT NULL DEFAULT 0,
		night_landings INTEGER NOT NULL DEFAULT 0,
		all_landings INTEGER NOT NULL DEFAULT 0,
		mission_type TEXT NOT NULL DEFAULT '',
		custom_mission_type TEXT NOT NULL DEFAULT '',
		pilot_role TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		import_run_id TEXT REFERENCES import_runs(id),
		created_at %s DEFAULT CURRENT_TIMESTAMP,
		updated_at %s DEFAULT CURRENT_TIMESTAMP
	)`, db.autoIncrement(), db.floatType(), ts, ts)
}

func (db *DB) migrationFlightGroups() string {
	ts := db.timestampType()
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS flight_groups (
		id %s,
		id_code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		admin_email TEXT NOT NULL DEFAULT '',
		created_by_name TEXT NOT NULL DEFAULT '',
		created_by_id TEXT NOT NULL DEFAULT '',
		members TEXT NOT NULL DEFAULT '[]',
		pending_members TEXT NOT NULL DEFAULT '[]',
		created_at %s DEFAULT CURRENT_TIMESTAMP,
		updated_at %s DEFAULT CURRENT_TIMESTAMP
	)`, db.autoIncrement(), ts, ts)
}

func (db *DB) migrationUserSettings() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_settings (
		id %s,
		user_id INTEGER NOT NULL REFERENCES users(id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		UNIQUE(user_id, key)
	)`, db.autoIncrement())
}
