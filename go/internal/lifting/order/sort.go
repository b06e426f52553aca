package order

import (
	"slices"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

// SortForAttempt returns a copy of the roster ordered for an attempt: lightest
// declared bar first, ties kept in roster order, undeclared attempts last.
func SortForAttempt(roster []models.Entry, lift models.Lift, attempt int) []models.Entry {
	sorted := slices.Clone(roster)
	slices.SortStableFunc(sorted, func(a, b models.Entry) int {
		wa, wb := a.Weight(lift, attempt), b.Weight(lift, attempt)
		switch {
		case wa <= 0 && wb <= 0:
			return 0
		case wa <= 0:
			return 1
		case wb <= 0:
			return -1
		case wa < wb:
			return -1
		case wa > wb:
			return 1
		default:
			return 0
		}
	})
	return sorted
}
