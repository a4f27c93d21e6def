package inventory

import (
	"sort"
	"time"
)

// selectFIFOBatch picks the batch a dispense should draw from: earliest
// expiry first, batch number as the tie-break, skipping batches that are
// expired, damaged, frozen or out of available stock. Warning batches are
// admitted on purpose: near-expiry is exactly the stock FIFO should drain
// first, not strand on the shelf. The whole required quantity must fit in
// one batch; when no single batch can cover it the result is nil even if
// the total across batches would suffice.
func selectFIFOBatch(batches []*InventoryBatch, required int, now time.Time) *InventoryBatch {
	if required <= 0 {
		return nil
	}

	candidates := make([]*InventoryBatch, 0, len(batches))
	for _, b := range batches {
		if b.Dispensable(now) {
			candidates = append(candidates, b)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ExpiryDate.Equal(candidates[j].ExpiryDate) {
			return candidates[i].ExpiryDate.Before(candidates[j].ExpiryDate)
		}
		return candidates[i].BatchNumber < candidates[j].BatchNumber
	})

	for _, b := range candidates {
		if b.AvailableStock >= required {
			return b
		}
	}
	return nil
}
