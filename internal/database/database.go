package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nzvengeance/flight-logbook/internal/config"
	"github.com/nzvengeance/flight-logbook/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row addressed by id or key does not exist
// (or belongs to another owner).
var ErrNotFound = errors.New("not found")

// DB provides the data access layer
type DB struct {
	conn   *sql.DB
	driver string
}

// New creates a new database connection based on config
func New(cfg *config.Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch cfg.DBDriver {
	case "sqlite":
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
		conn, err = sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_foreign_keys=on")
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		conn.SetMaxOpenConns(1) // SQLite is single-writer
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DATABASE_URL required for postgres driver")
		}
		conn, err = sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		conn.SetMaxOpenConns(10)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DBDriver)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn, driver: cfg.DBDriver}

	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info().Str("driver", cfg.DBDriver).Msg("database connected")
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection; used by the status endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Driver() string {
	return db.driver
}

// autoIncrement returns the correct auto-increment syntax
func (db *DB) autoIncrement() string {
	if db.driver == "postgres" {
		return "SERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// onConflictUpdate returns the correct upsert syntax
func (db *DB) onConflictUpdate(conflictCol, updateCols string) string {
	if db.driver == "postgres" {
		return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", conflictCol, updateCols)
	}
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s", conflictCol, updateCols)
}

// timestampType returns the correct timestamp type
func (db *DB) timestampType() string {
	if db.driver == "postgres" {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

func (db *DB) floatType() string {
	if db.driver == "postgres" {
		return "DOUBLE PRECISION"
	}
	return "REAL"
}

// now returns the correct current timestamp function
func (db *DB) now() string {
	if db.driver == "postgres" {
		return "NOW()"
	}
	return "datetime('now')"
}

// prepareQuery rewrites ? placeholders for postgres
func (db *DB) prepareQuery(query string) string {
	if db.driver == "postgres" {
		return replacePlaceholders(query)
	}
	return query
}

// insertReturningID runs an INSERT and returns the generated id.
func (db *DB) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if db.driver == "postgres" {
		var id int64
		err := db.conn.QueryRowContext(ctx, replacePlaceholders(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// replacePlaceholders converts ? to $1, $2, etc. for PostgreSQL
func replacePlaceholders(query string) string {
	result := make([]byte, 0, len(query)+10)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, []byte(fmt.Sprintf("%d", n))...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// --- User Operations ---

// FindOrCreateOwner returns the user for an external key, inserting a
// placeholder user the first time the key is seen. Safe to call repeatedly
// with the same key.
func (db *DB) FindOrCreateOwner(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("empty owner key")
	}

	query := db.prepareQuery(`
		INSERT INTO users (external_key, email, name)
		VALUES (?, ?, ?)
		ON CONFLICT (external_key) DO NOTHING`)
	if _, err := db.conn.ExecContext(ctx, query, key, PlaceholderEmail(key), PlaceholderName(key)); err != nil {
		return 0, fmt.Errorf("inserting owner %q: %w", key, err)
	}

	u, err := db.GetUserByKey(ctx, key)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// PlaceholderEmail is the synthetic address given to migrated owners.
func PlaceholderEmail(key string) string {
	return key + "@migrated.invalid"
}

func PlaceholderName(key string) string {
	return "Migrated user " + key
}

// UpsertUser creates or refreshes a user from verified token claims.
func (db *DB) UpsertUser(ctx context.Context, key, email, name string) (*models.User, error) {
	query := db.prepareQuery(fmt.Sprintf(`
		INSERT INTO users (external_key, email, name)
		VALUES (?, ?, ?)
		%s`,
		db.onConflictUpdate("external_key", fmt.Sprintf(
			"email=CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END, "+
				"name=CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END, updated_at=%s", db.now())),
	))
	if _, err := db.conn.ExecContext(ctx, query, key, email, name); err != nil {
		return nil, fmt.Errorf("upserting user %q: %w", key, err)
	}
	return db.GetUserByKey(ctx, key)
}

func (db *DB) GetUserByKey(ctx context.Context, key string) (*models.User, error) {
	return db.scanUser(ctx, "external_key = ?", key)
}

func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return db.scanUser(ctx, "id = ?", id)
}

func (db *DB) scanUser(ctx context.Context, where string, arg any) (*models.User, error) {
	query := db.prepareQuery("SELECT id, external_key, email, name, created_at, updated_at FROM users WHERE " + where)
	var u models.User
	err := db.conn.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.ExternalKey, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- User Settings Operations ---

// GetUserSetting returns "" when the key has never been set.
func (db *DB) GetUserSetting(ctx context.Context, userID int64, key string) (string, error) {
	query := db.prepareQuery("SELECT value FROM user_settings WHERE user_id = ? AND key = ?")
	var value string
	err := db.conn.QueryRowContext(ctx, query, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (db *DB) SetUserSetting(ctx context.Context, userID int64, key, value string) error {
	query := db.prepareQuery(fmt.Sprintf(
		"INSERT INTO user_settings (user_id, key, value) VALUES (?, ?, ?) %s",
		db.onConflictUpdate("user_id, key", "value=excluded.value"),
	))
	_, err := db.conn.ExecContext(ctx, query, userID, key, value)
	return err
}

// --- Import Run Operations ---

func (db *DB) InsertImportRun(ctx context.Context, run *models.ImportRun) error {
	query := db.prepareQuery(fmt.Sprintf(`
		INSERT INTO import_runs (id, user_id, source, status, succeeded, failed, error_message, started_at)
		VALUES (?, ?, ?, ?, 0, 0, '', %s)`, db.now()))
	_, err := db.conn.ExecContext(ctx, query, run.ID, run.UserID, run.Source, run.Status)
	return err
}

func (db *DB) FinishImportRun(ctx context.Context, id, status string, succeeded, failed int, errMsg string) error {
	query := db.prepareQuery(fmt.Sprintf(
		"UPDATE import_runs SET status = ?, succeeded = ?, failed = ?, error_message = ?, completed_at = %s WHERE id = ?",
		db.now()))
	res, err := db.conn.ExecContext(ctx, query, status, succeeded, failed, errMsg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListImportRuns returns the most recent runs first. userID 0 lists runs for
// every owner.
func (db *DB) ListImportRuns(ctx context.Context, userID int64, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, user_id, source, status, succeeded, failed, error_message, started_at, completed_at
		FROM import_runs`
	args := []any{}
	if userID != 0 {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, db.prepareQuery(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.ImportRun{}
	for rows.Next() {
		var r models.ImportRun
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.UserID, &r.Source, &r.Status, &r.Succeeded, &r.Failed,
			&r.ErrorMessage, &r.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Stats ---

type Stats struct {
	Users      int        `json:"users"`
	Flights    int        `json:"flights"`
	Groups     int        `json:"groups"`
	LastImport *time.Time `json:"lastImport,omitempty"`
}

func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	counts := []struct {
		table string
		dest  *int
	}{
		{"users", &s.Users},
		{"flights", &s.Flights},
		{"flight_groups", &s.Groups},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	var last sql.NullTime
	err := db.conn.QueryRowContext(ctx, "SELECT started_at FROM import_runs ORDER BY started_at DESC LIMIT 1").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if last.Valid {
		s.LastImport = &last.Time
	}
	return &s, nil
}
