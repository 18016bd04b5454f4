package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Move is the header of one stock-changing event. Moves are never deleted;
// their owner changes only when an account is deleted with reassignment.
type Move struct {
	ID        int        `gorm:"primary_key" json:"id"`
	AccountId int        `gorm:"index;not null" json:"account_id"`
	Account   *Account   `gorm:"foreignKey:AccountId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Time      time.Time  `gorm:"column:moved_at;index;not null" json:"time"`
	Lines     []MoveLine `gorm:"foreignKey:MoveId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"lines,omitempty"`
}

// MoveLine is the per-lot effect of a move: positive adds stock, negative removes it.
type MoveLine struct {
	ID             int   `gorm:"primary_key" json:"id"`
	MoveId         int   `gorm:"index;not null" json:"move_id"`
	ItemId         int   `gorm:"index:idx_move_lines_item_expiration,priority:1;not null" json:"item_id"`
	Item           *Item `gorm:"foreignKey:ItemId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Amount         int   `gorm:"not null" json:"amount"`
	ExpirationDate Date  `gorm:"type:date;index:idx_move_lines_item_expiration,priority:2;not null" json:"expiration_date"`
}

// Lot is the available quantity of one expiration batch of an item.
type Lot struct {
	ExpirationDate Date `json:"expiration_date"`
	Amount         int  `json:"amount"`
}

// Supply adds amount units expiring on expiration to the item's stock.
func (inv *Inventory) Supply(ctx context.Context, gate AccessGate, itemId int, amount int, expiration Date) (*Move, error) {
	const op = "supply"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if amount <= 0 {
		return nil, inv.rejected(op, newError(ErrInvalidInput, "amount must be positive, got %d", amount))
	}
	if expiration.IsZero() {
		return nil, inv.rejected(op, newError(ErrInvalidInput, "expiration date is required"))
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("item.id", itemId))

	var move *Move
	err := inv.withTx(ctx, op, func(s *TxSession) error {
		item, err := lockItem(s, itemId)
		if err != nil {
			return err
		}
		if err := ensureAccountExists(s.DB(), gate.CurrentAccountId()); err != nil {
			return err
		}
		if err := adjustCurAmount(s.DB(), item.ID, amount); err != nil {
			return err
		}
		move, err = appendMove(s.DB(), gate.CurrentAccountId(), []MoveLine{
			{ItemId: item.ID, Amount: amount, ExpirationDate: expiration},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	ledgerUnitsTotal.WithLabelValues("supply").Add(float64(amount))
	return move, nil
}

// ListLots returns the item's lots with positive availability, in store order.
func (inv *Inventory) ListLots(ctx context.Context, gate AccessGate, itemId int) ([]Lot, error) {
	const op = "list_lots"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var lots []Lot
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		if err := ensureItemExists(s.DB(), itemId); err != nil {
			return err
		}
		var err error
		lots, err = listLots(s.DB(), itemId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// Offtake withdraws the requested quantity from each named lot. Availability
// is re-read inside the transaction; any lot that cannot cover its request
// aborts the whole operation. With asTrash the move is written off to the
// sentinel account, which requires elevated privilege.
func (inv *Inventory) Offtake(ctx context.Context, gate AccessGate, itemId int, requested map[Date]int, asTrash bool) (*Move, error) {
	op := "offtake"
	if asTrash {
		op = "trash"
	}
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if asTrash {
		if err := requirePrivilege(gate); err != nil {
			return nil, inv.rejected(op, err)
		}
	}
	wanted, total, err := normalizeRequest(requested)
	if err != nil {
		return nil, inv.rejected(op, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("item.id", itemId), attribute.Bool("offtake.trash", asTrash))

	owner := gate.CurrentAccountId()
	if asTrash {
		owner = SentinelAccountId
	}

	var move *Move
	err = inv.withTx(ctx, op, func(s *TxSession) error {
		item, err := lockItem(s, itemId)
		if err != nil {
			return err
		}
		if err := ensureAccountExists(s.DB(), owner); err != nil {
			return err
		}

		// fresh read: a concurrent offtake of the same lot must not pass this check twice
		lots, err := listLots(s.DB(), item.ID)
		if err != nil {
			return err
		}
		available := make(map[Date]int, len(lots))
		for _, lot := range lots {
			available[lot.ExpirationDate] += lot.Amount
		}
		for _, w := range wanted {
			have, ok := available[w.ExpirationDate]
			if !ok {
				return newError(ErrInsufficientStock, "item %d has no stock expiring %s", item.ID, w.ExpirationDate)
			}
			if have < w.Amount {
				return newError(ErrInsufficientStock, "lot %s of item %d has %d, requested %d", w.ExpirationDate, item.ID, have, w.Amount)
			}
		}

		if err := adjustCurAmount(s.DB(), item.ID, -total); err != nil {
			return err
		}
		lines := make([]MoveLine, 0, len(wanted))
		for _, w := range wanted {
			lines = append(lines, MoveLine{ItemId: item.ID, Amount: -w.Amount, ExpirationDate: w.ExpirationDate})
		}
		move, err = appendMove(s.DB(), owner, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	ledgerUnitsTotal.WithLabelValues(op).Add(float64(total))
	return move, nil
}

// Trash writes off the requested lots to the sentinel account.
func (inv *Inventory) Trash(ctx context.Context, gate AccessGate, itemId int, requested map[Date]int) (*Move, error) {
	return inv.Offtake(ctx, gate, itemId, requested, true)
}

// normalizeRequest drops zero entries and orders the rest by expiration.
func normalizeRequest(requested map[Date]int) ([]Lot, int, error) {
	wanted := make([]Lot, 0, len(requested))
	total := 0
	for date, qty := range requested {
		if qty < 0 {
			return nil, 0, newError(ErrInvalidInput, "requested quantity for %s is negative", date)
		}
		if qty == 0 {
			continue
		}
		if date.IsZero() {
			return nil, 0, newError(ErrInvalidInput, "expiration date is required")
		}
		wanted = append(wanted, Lot{ExpirationDate: date, Amount: qty})
		total += qty
	}
	if total == 0 {
		return nil, 0, newError(ErrInvalidInput, "nothing requested")
	}
	sort.Slice(wanted, func(i, j int) bool {
		return wanted[i].ExpirationDate.Before(wanted[j].ExpirationDate)
	})
	return wanted, total, nil
}

func lockItem(s *TxSession, itemId int) (*Item, error) {
	var item Item
	err := s.ForUpdate().Where("id = ?", itemId).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "item %d", itemId)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func ensureItemExists(db *gorm.DB, itemId int) error {
	var count int64
	if err := db.Model(&Item{}).Where("id = ?", itemId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return newError(ErrNotFound, "item %d", itemId)
	}
	return nil
}

func ensureAccountExists(db *gorm.DB, accountId int) error {
	var count int64
	if err := db.Model(&Account{}).Where("id = ?", accountId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return newError(ErrNotFound, "account %d no longer exists", accountId)
	}
	return nil
}

// adjustCurAmount is the only writer of items.cur_amount besides RepairDrift.
func adjustCurAmount(db *gorm.DB, itemId int, delta int) error {
	result := db.Model(&Item{}).Where("id = ?", itemId).
		UpdateColumn("cur_amount", gorm.Expr("cur_amount + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return newError(ErrNotFound, "item %d", itemId)
	}
	return nil
}

func appendMove(db *gorm.DB, accountId int, lines []MoveLine) (*Move, error) {
	move := Move{
		AccountId: accountId,
		Time:      time.Now().UTC(),
	}
	if err := db.Create(&move).Error; err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].MoveId = move.ID
	}
	if err := db.Create(&lines).Error; err != nil {
		return nil, err
	}
	move.Lines = lines
	return &move, nil
}

func listLots(db *gorm.DB, itemId int) ([]Lot, error) {
	var lots []Lot
	err := db.Model(&MoveLine{}).
		Select("expiration_date, SUM(amount) AS amount").
		Where("item_id = ?", itemId).
		Group("expiration_date").
		Having("SUM(amount) > ?", 0).
		Scan(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}
