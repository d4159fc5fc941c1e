package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ReplayedCounters is the result of folding a variant's ledger from zero.
type ReplayedCounters struct {
	OnHand      int
	Allocated   int
	SafetyStock int
	Entries     int
}

// ReplayCounters folds every ledger entry for the variant, oldest first, and
// returns the counters the history implies. Operators compare the result
// against the live row when an audit is in question.
func ReplayCounters(ctx context.Context, repo Repository, variantID uuid.UUID) (ReplayedCounters, error) {
	if variantID == uuid.Nil {
		return ReplayedCounters{}, fmt.Errorf("variant id is required")
	}

	entries, err := repo.ListByVariantAsc(ctx, variantID)
	if err != nil {
		return ReplayedCounters{}, err
	}

	var out ReplayedCounters
	for _, entry := range entries {
		out.OnHand += entry.DeltaOnHand
		out.Allocated += entry.DeltaAllocated
		out.SafetyStock += entry.DeltaSafetyStock
		out.Entries++

		if out.OnHand != entry.ResultingOnHand ||
			out.Allocated != entry.ResultingAllocated ||
			out.SafetyStock != entry.ResultingSafetyStock {
			return ReplayedCounters{}, fmt.Errorf(
				"ledger divergence at entry %s: replayed (%d,%d,%d) recorded (%d,%d,%d)",
				entry.ID,
				out.OnHand, out.Allocated, out.SafetyStock,
				entry.ResultingOnHand, entry.ResultingAllocated, entry.ResultingSafetyStock,
			)
		}
	}
	return out, nil
}
