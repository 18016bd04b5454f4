package models

import (
	"context"
	"sort"
)

// OfftakePlan is a suggested withdrawal, oldest expiration first.
type OfftakePlan struct {
	ItemId    int   `json:"item_id"`
	Requested int   `json:"requested"`
	Lots      []Lot `json:"lots"`
	// Shortfall is the part of Requested that no lot could cover.
	Shortfall int `json:"shortfall"`
}

// Request converts the plan into the argument Offtake expects.
func (p *OfftakePlan) Request() map[Date]int {
	request := make(map[Date]int, len(p.Lots))
	for _, lot := range p.Lots {
		request[lot.ExpirationDate] += lot.Amount
	}
	return request
}

// PlanFifoAllocation takes from the earliest-expiring lots until target is
// met. It returns the planned lots and the shortfall. Lots with the same
// expiration keep their input order. The input slice is not modified.
func PlanFifoAllocation(lots []Lot, target int) ([]Lot, int) {
	if target <= 0 {
		return []Lot{}, 0
	}
	ordered := make([]Lot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExpirationDate.Before(ordered[j].ExpirationDate)
	})

	plan := make([]Lot, 0, len(ordered))
	remaining := target
	for _, lot := range ordered {
		if remaining == 0 {
			break
		}
		if lot.Amount <= 0 {
			continue
		}
		take := min(lot.Amount, remaining)
		plan = append(plan, Lot{ExpirationDate: lot.ExpirationDate, Amount: take})
		remaining -= take
	}
	return plan, remaining
}

// PlanOfftake reads the item's current lots and plans a FIFO withdrawal of
// quantity units. Nothing is written; the plan may be stale by the time it is
// passed to Offtake, which re-checks availability.
func (inv *Inventory) PlanOfftake(ctx context.Context, gate AccessGate, itemId int, quantity int) (*OfftakePlan, error) {
	const op = "plan_offtake"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if quantity <= 0 {
		return nil, inv.rejected(op, newError(ErrInvalidInput, "quantity must be positive, got %d", quantity))
	}
	lots, err := inv.ListLots(ctx, gate, itemId)
	if err != nil {
		return nil, err
	}
	planned, shortfall := PlanFifoAllocation(lots, quantity)
	return &OfftakePlan{
		ItemId:    itemId,
		Requested: quantity,
		Lots:      planned,
		Shortfall: shortfall,
	}, nil
}
