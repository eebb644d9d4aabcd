package forwarding

import (
	"fmt"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/store"
)

// ValidateTipShares checks a split configuration without allocating anything.
func ValidateTipShares(shares []config.TipShare) error {
	if len(shares) == 0 {
		return store.NewValidationError("at least one tip recipient is required")
	}

	var percentTotal uint
	for _, share := range shares {
		if share.Destination == "" {
			return store.NewValidationError("tip recipient destination is required")
		}
		if share.Percent == 0 {
			return store.NewValidationError(fmt.Sprintf("tip share for %s has a zero percentage", share.Destination))
		}
		percentTotal += share.Percent
	}
	if percentTotal != constants.TIP_SPLIT_PERCENT_TOTAL {
		return store.NewValidationError(fmt.Sprintf("tip share percentages must sum to %d, got %d", constants.TIP_SPLIT_PERCENT_TOTAL, percentTotal))
	}
	return nil
}

// SplitTip allocates tipAmountSat across the configured shares using integer
// arithmetic only. Each share gets floor(tip * percent / 100); the remainder
// goes to the first share so the leg amounts always sum to the tip exactly.
func SplitTip(tipAmountSat uint64, shares []config.TipShare) ([]store.LegParams, error) {
	if err := ValidateTipShares(shares); err != nil {
		return nil, err
	}

	legs := make([]store.LegParams, 0, len(shares))
	var allocated uint64
	for _, share := range shares {
		amountSat := tipAmountSat * uint64(share.Percent) / constants.TIP_SPLIT_PERCENT_TOTAL
		allocated += amountSat
		legs = append(legs, store.LegParams{
			Destination: share.Destination,
			AmountSat:   amountSat,
			Percent:     share.Percent,
		})
	}
	legs[0].AmountSat += tipAmountSat - allocated

	return legs, nil
}
