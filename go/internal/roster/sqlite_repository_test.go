package roster

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

func openTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "meet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo := openTestSQLite(t)
	ctx := context.Background()

	e := flightEntry("Ana", 1, "A")
	e.WeightClass = "63"
	e.BodyweightKg = 62.4
	e.Lifts[models.LiftSquat].Weights = [3]float64{100, 105, 0}
	e.Lifts[models.LiftSquat].Statuses = [3]models.AttemptStatus{models.StatusGood}
	require.NoError(t, repo.UpsertEntry(ctx, e))
	require.NoError(t, repo.UpsertEntry(ctx, flightEntry("Bea", 2, "A")))
	require.NoError(t, repo.UpsertEntry(ctx, flightEntry("Dora", 1, "B")))

	entries, err := repo.ListEntries(ctx, FlightFilter{Day: 1, Platform: 1, Flight: "A"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e, entries[0])
	assert.Equal(t, "Bea", entries[1].Name)
}

func TestSQLiteRepository_UpdateEntry(t *testing.T) {
	repo := openTestSQLite(t)
	ctx := context.Background()

	e := flightEntry("Ana", 1, "A")
	e.Lifts[models.LiftDeadlift].Weights[0] = 180
	require.NoError(t, repo.UpsertEntry(ctx, e))

	updated, err := repo.UpdateEntry(ctx, e.ID, StatusUpdate(models.LiftDeadlift,
		[3]models.AttemptStatus{models.StatusGood}))
	require.NoError(t, err)
	assert.Equal(t, models.StatusGood, updated.Status(models.LiftDeadlift, 1))

	_, err = repo.UpdateEntry(ctx, e.ID, WeightUpdate(models.LiftDeadlift, 2, 190))
	require.NoError(t, err)

	stored, err := repo.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{180, 190, 0}, stored.Attempts(models.LiftDeadlift).Weights)
	assert.Equal(t, models.StatusGood, stored.Status(models.LiftDeadlift, 1))

	_, err = repo.UpdateEntry(ctx, uuid.New(), WeightUpdate(models.LiftDeadlift, 1, 100))
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
