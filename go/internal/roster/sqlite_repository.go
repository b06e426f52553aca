package roster

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/sqlutil"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteRepository stores a meet in a single file for offline platforms.
// Attempts are kept as one JSON document per entry.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const sqliteColumns = `id, name, day, platform, flight, lot_number, sex, division, weight_class, bodyweight_kg, lifts`

func (r *SQLiteRepository) ListEntries(ctx context.Context, filter FlightFilter) ([]models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteColumns+` FROM entries
		WHERE day = ? AND platform = ? AND flight = ?
		ORDER BY lot_number, name`,
		filter.Day, filter.Platform, filter.Flight,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, id uuid.UUID) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM entries WHERE id = ?`, id.String())
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEntry rewrites the attempts document inside one transaction.
func (r *SQLiteRepository) UpdateEntry(ctx context.Context, id uuid.UUID, update EntryUpdate) (*models.Entry, error) {
	var updated models.Entry
	err := sqlutil.InTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM entries WHERE id = ?`, id.String())
		e, err := scanSQLiteEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}

		updated = update.Apply(e)
		lifts, err := json.Marshal(updated.Lifts)
		if err != nil {
			return fmt.Errorf("failed to marshal attempts: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE entries SET lifts = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			string(lifts), id.String(),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}
	return &updated, nil
}

// UpsertEntry inserts an entry or replaces it.
func (r *SQLiteRepository) UpsertEntry(ctx context.Context, e models.Entry) error {
	lifts, err := json.Marshal(e.Lifts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entries (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, day = excluded.day, platform = excluded.platform,
			flight = excluded.flight, lot_number = excluded.lot_number, sex = excluded.sex,
			division = excluded.division, weight_class = excluded.weight_class,
			bodyweight_kg = excluded.bodyweight_kg, lifts = excluded.lifts,
			updated_at = CURRENT_TIMESTAMP`,
		e.ID.String(), e.Name, e.Day, e.Platform, e.Flight, e.LotNumber,
		e.Sex, e.Division, e.WeightClass, e.BodyweightKg, string(lifts),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry %s: %w", e.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(row rowScanner) (models.Entry, error) {
	var (
		e     models.Entry
		id    string
		lifts string
	)
	err := row.Scan(&id, &e.Name, &e.Day, &e.Platform, &e.Flight, &e.LotNumber,
		&e.Sex, &e.Division, &e.WeightClass, &e.BodyweightKg, &lifts)
	if err != nil {
		return models.Entry{}, err
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return models.Entry{}, fmt.Errorf("invalid entry id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(lifts), &e.Lifts); err != nil {
		return models.Entry{}, fmt.Errorf("invalid attempts for entry %s: %w", id, err)
	}
	return e, nil
}
