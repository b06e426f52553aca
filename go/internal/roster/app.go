package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

var (
	ErrEntryNotFound  = errors.New("entry not found")
	ErrStatusNoWeight = errors.New("an attempt cannot be judged before its weight is declared")
)

// EntryRepository defines what the app layer needs from the repository
type EntryRepository interface {
	ListEntries(ctx context.Context, filter FlightFilter) ([]models.Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*models.Entry, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, update EntryUpdate) (*models.Entry, error)
}

// App handles roster business logic
type App struct {
	repo EntryRepository
}

// NewApp creates a new roster App
func NewApp(repo EntryRepository) *App {
	return &App{
		repo: repo,
	}
}

// ListEntries returns the entries of one flight in lot order
func (a *App) ListEntries(ctx context.Context, filter FlightFilter) ([]models.Entry, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	entries, err := a.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// GetEntry retrieves an entry by ID
func (a *App) GetEntry(ctx context.Context, id uuid.UUID) (*models.Entry, error) {
	entry, err := a.repo.GetEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// UpdateEntry applies a single status array or weight change to an entry.
// The entry must keep every judged attempt backed by a declared weight.
func (a *App) UpdateEntry(ctx context.Context, id uuid.UUID, update EntryUpdate) error {
	if err := update.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	current, err := a.repo.GetEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}
	if err := validateJudgedWeights(update.Apply(*current), update.Lift); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := a.repo.UpdateEntry(ctx, id, update); err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	log.Debug().
		Str("entry_id", id.String()).
		Str("lift", update.Lift.String()).
		Bool("statuses", update.Statuses != nil).
		Int("attempt", update.Attempt).
		Msg("entry updated")
	return nil
}

func validateJudgedWeights(e models.Entry, lift models.Lift) error {
	a := e.Attempts(lift)
	for i := range a.Statuses {
		if a.Statuses[i] != models.StatusPending && a.Statuses[i] != models.StatusNoAttempt && a.Weights[i] <= 0 {
			return fmt.Errorf("%s attempt %d: %w", lift, i+1, ErrStatusNoWeight)
		}
	}
	return nil
}
