package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

// Querier is the subset of pgxpool.Pool the repository uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	queries Querier
}

func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

const entryColumns = `id, name, day, platform, flight, lot_number, sex, division, weight_class, bodyweight_kg,
	squat_weights, squat_statuses, bench_weights, bench_statuses, deadlift_weights, deadlift_statuses`

// liftColumns names the weight and status array columns of each movement.
var liftColumns = [models.LiftCount]struct{ weights, statuses string }{
	models.LiftSquat:    {"squat_weights", "squat_statuses"},
	models.LiftBench:    {"bench_weights", "bench_statuses"},
	models.LiftDeadlift: {"deadlift_weights", "deadlift_statuses"},
}

func (r *Repository) ListEntries(ctx context.Context, filter FlightFilter) ([]models.Entry, error) {
	rows, err := r.queries.Query(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE day = $1 AND platform = $2 AND flight = $3
		ORDER BY lot_number, name`,
		filter.Day, filter.Platform, filter.Flight,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Entry, error) {
		return scanEntry(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan entries: %w", err)
	}
	return entries, nil
}

func (r *Repository) GetEntry(ctx context.Context, id uuid.UUID) (*models.Entry, error) {
	row := r.queries.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return &e, nil
}

func (r *Repository) UpdateEntry(ctx context.Context, id uuid.UUID, update EntryUpdate) (*models.Entry, error) {
	cols := liftColumns[update.Lift]

	var row pgx.Row
	if update.Statuses != nil {
		statuses := make([]int32, len(update.Statuses))
		for i, s := range update.Statuses {
			statuses[i] = int32(s)
		}
		row = r.queries.QueryRow(ctx, `
			UPDATE entries SET `+cols.statuses+` = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+entryColumns,
			id, statuses,
		)
	} else {
		row = r.queries.QueryRow(ctx, `
			UPDATE entries SET `+cols.weights+`[$2] = $3, updated_at = now()
			WHERE id = $1
			RETURNING `+entryColumns,
			id, update.Attempt, *update.Weight,
		)
	}

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}
	return &e, nil
}

// UpsertEntry inserts an entry or replaces its registration and attempts.
func (r *Repository) UpsertEntry(ctx context.Context, e models.Entry) error {
	args := []any{e.ID, e.Name, e.Day, e.Platform, e.Flight, e.LotNumber, e.Sex, e.Division, e.WeightClass, e.BodyweightKg}
	for _, l := range models.Lifts {
		weights, statuses := toArrays(e.Lifts[l])
		args = append(args, weights, statuses)
	}

	_, err := r.queries.Exec(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, day = EXCLUDED.day, platform = EXCLUDED.platform,
			flight = EXCLUDED.flight, lot_number = EXCLUDED.lot_number, sex = EXCLUDED.sex,
			division = EXCLUDED.division, weight_class = EXCLUDED.weight_class,
			bodyweight_kg = EXCLUDED.bodyweight_kg,
			squat_weights = EXCLUDED.squat_weights, squat_statuses = EXCLUDED.squat_statuses,
			bench_weights = EXCLUDED.bench_weights, bench_statuses = EXCLUDED.bench_statuses,
			deadlift_weights = EXCLUDED.deadlift_weights, deadlift_statuses = EXCLUDED.deadlift_statuses,
			updated_at = now()`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry %s: %w", e.ID, err)
	}
	return nil
}

func scanEntry(row pgx.Row) (models.Entry, error) {
	var (
		e        models.Entry
		weights  [models.LiftCount][]float64
		statuses [models.LiftCount][]int32
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Day, &e.Platform, &e.Flight, &e.LotNumber,
		&e.Sex, &e.Division, &e.WeightClass, &e.BodyweightKg,
		&weights[models.LiftSquat], &statuses[models.LiftSquat],
		&weights[models.LiftBench], &statuses[models.LiftBench],
		&weights[models.LiftDeadlift], &statuses[models.LiftDeadlift],
	)
	if err != nil {
		return models.Entry{}, err
	}

	for _, l := range models.Lifts {
		if err := fromArrays(&e.Lifts[l], weights[l], statuses[l]); err != nil {
			return models.Entry{}, fmt.Errorf("entry %s %s: %w", e.ID, l, err)
		}
	}
	return e, nil
}

func toArrays(a models.LiftAttempts) ([]float64, []int32) {
	weights := make([]float64, models.AttemptsPerLift)
	statuses := make([]int32, models.AttemptsPerLift)
	for i := range models.AttemptsPerLift {
		weights[i] = a.Weights[i]
		statuses[i] = int32(a.Statuses[i])
	}
	return weights, statuses
}

func fromArrays(dst *models.LiftAttempts, weights []float64, statuses []int32) error {
	if len(weights) > models.AttemptsPerLift || len(statuses) > models.AttemptsPerLift {
		return fmt.Errorf("more than %d attempts stored", models.AttemptsPerLift)
	}
	copy(dst.Weights[:], weights)
	for i, s := range statuses {
		status := models.AttemptStatus(s)
		if !status.Valid() {
			return fmt.Errorf("invalid status %d for attempt %d", s, i+1)
		}
		dst.Statuses[i] = status
	}
	return nil
}
