package roster

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

func flightEntry(name string, lot int, flight string) models.Entry {
	return models.Entry{ID: uuid.New(), Name: name, Day: 1, Platform: 1, Flight: flight, LotNumber: lot}
}

func TestApp_ListEntriesInLotOrder(t *testing.T) {
	repo := NewMemoryRepository(
		flightEntry("Cleo", 3, "A"),
		flightEntry("Ana", 1, "A"),
		flightEntry("Dora", 2, "B"),
		flightEntry("Bea", 2, "A"),
	)
	app := NewApp(repo)

	entries, err := app.ListEntries(context.Background(), FlightFilter{Day: 1, Platform: 1, Flight: "A"})
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"Ana", "Bea", "Cleo"}, names)
}

func TestApp_ListEntriesValidatesFilter(t *testing.T) {
	app := NewApp(NewMemoryRepository())

	_, err := app.ListEntries(context.Background(), FlightFilter{Day: 1, Platform: 1})
	assert.ErrorContains(t, err, "flight is required")
}

func TestApp_UpdateEntry(t *testing.T) {
	e := flightEntry("Ana", 1, "A")
	repo := NewMemoryRepository(e)
	app := NewApp(repo)
	ctx := context.Background()

	require.NoError(t, app.UpdateEntry(ctx, e.ID, WeightUpdate(models.LiftBench, 1, 62.5)))
	require.NoError(t, app.UpdateEntry(ctx, e.ID, StatusUpdate(models.LiftBench,
		[3]models.AttemptStatus{models.StatusGood})))

	stored, err := repo.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 62.5, stored.Weight(models.LiftBench, 1))
	assert.Equal(t, models.StatusGood, stored.Status(models.LiftBench, 1))
	assert.Len(t, repo.Writes(), 2)
}

func TestApp_UpdateEntryRejectsJudgingWithoutWeight(t *testing.T) {
	e := flightEntry("Ana", 1, "A")
	repo := NewMemoryRepository(e)
	app := NewApp(repo)

	err := app.UpdateEntry(context.Background(), e.ID, StatusUpdate(models.LiftSquat,
		[3]models.AttemptStatus{models.StatusNoLift}))
	assert.ErrorIs(t, err, ErrStatusNoWeight)
	assert.Empty(t, repo.Writes())

	// withdrawals need no weight
	err = app.UpdateEntry(context.Background(), e.ID, StatusUpdate(models.LiftSquat,
		[3]models.AttemptStatus{models.StatusNoAttempt}))
	assert.NoError(t, err)
}

func TestApp_UpdateEntryValidation(t *testing.T) {
	e := flightEntry("Ana", 1, "A")
	app := NewApp(NewMemoryRepository(e))
	ctx := context.Background()

	assert.Error(t, app.UpdateEntry(ctx, e.ID, EntryUpdate{Lift: models.LiftSquat}))
	assert.Error(t, app.UpdateEntry(ctx, e.ID, WeightUpdate(models.LiftSquat, 4, 100)))
	assert.Error(t, app.UpdateEntry(ctx, e.ID, WeightUpdate(models.LiftSquat, 1, -5)))
	assert.ErrorIs(t, app.UpdateEntry(ctx, uuid.New(), WeightUpdate(models.LiftSquat, 1, 100)), ErrEntryNotFound)
}

func TestParseEntryChange(t *testing.T) {
	id := uuid.New()
	change, err := ParseEntryChange(`{"id":"` + id.String() + `","day":2,"platform":1,"flight":"B"}`)
	require.NoError(t, err)

	assert.Equal(t, id, change.ID)
	assert.True(t, change.Matches(FlightFilter{Day: 2, Platform: 1, Flight: "B"}))
	assert.False(t, change.Matches(FlightFilter{Day: 1, Platform: 1, Flight: "B"}))

	_, err = ParseEntryChange("not json")
	assert.Error(t, err)
}
