package models_test

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/mmdatafocus/stockroom_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func TestSupplyThenListLots(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Milk")

	move, err := f.inv.Supply(f.ctx, f.clerk, item.ID, 10, jan)
	require.NoError(t, err)
	assert.Equal(t, f.clerk.AccountId, move.AccountId)
	require.Len(t, move.Lines, 1)
	assert.Equal(t, 10, move.Lines[0].Amount)
	assert.Equal(t, jan, move.Lines[0].ExpirationDate)

	f.supply(t, item.ID, 5, jan)
	f.supply(t, item.ID, 3, feb)

	lots, err := f.inv.ListLots(f.ctx, f.clerk, item.ID)
	require.NoError(t, err)
	assert.Equal(t, map[models.Date]int{jan: 15, feb: 3}, lotMap(lots))
	assert.Equal(t, 18, f.curAmount(t, item.ID))
	assert.Equal(t, 18, f.ledgerSum(t, item.ID))
}

func TestSupplyRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Milk")

	_, err := f.inv.Supply(f.ctx, models.Anonymous, item.ID, 1, jan)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	_, err = f.inv.Supply(f.ctx, f.clerk, item.ID, 0, jan)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.inv.Supply(f.ctx, f.clerk, item.ID, -4, jan)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.inv.Supply(f.ctx, f.clerk, item.ID, 1, models.Date{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.inv.Supply(f.ctx, f.clerk, 9999, 1, jan)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Zero(t, f.count(t, &models.Move{}))
}

func TestListLotsHidesEmptyLots(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Bread")
	f.supply(t, item.ID, 2, jan)
	f.supply(t, item.ID, 2, feb)

	_, err := f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{jan: 2}, false)
	require.NoError(t, err)

	lots, err := f.inv.ListLots(f.ctx, f.clerk, item.ID)
	require.NoError(t, err)
	assert.Equal(t, map[models.Date]int{feb: 2}, lotMap(lots))

	_, err = f.inv.ListLots(f.ctx, f.clerk, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOfftakeWritesNegativeLines(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Cheese")
	f.supply(t, item.ID, 5, jan)
	f.supply(t, item.ID, 5, feb)

	move, err := f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{feb: 2, jan: 5, mar: 0}, false)
	require.NoError(t, err)
	assert.Equal(t, f.clerk.AccountId, move.AccountId)
	// zero requests are dropped, the rest ordered by expiration
	require.Len(t, move.Lines, 2)
	assert.Equal(t, jan, move.Lines[0].ExpirationDate)
	assert.Equal(t, -5, move.Lines[0].Amount)
	assert.Equal(t, feb, move.Lines[1].ExpirationDate)
	assert.Equal(t, -2, move.Lines[1].Amount)

	assert.Equal(t, 3, f.curAmount(t, item.ID))
	assert.Equal(t, 3, f.ledgerSum(t, item.ID))
}

func TestOfftakeInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Butter")
	f.supply(t, item.ID, 5, jan)
	f.supply(t, item.ID, 1, feb)
	moves := f.count(t, &models.Move{})

	// the first lot is fine, the second is short: nothing may be written
	_, err := f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{jan: 5, feb: 2}, false)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	_, err = f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{mar: 1}, false)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	assert.Equal(t, moves, f.count(t, &models.Move{}))
	assert.Equal(t, 6, f.curAmount(t, item.ID))
	lots, err := f.inv.ListLots(f.ctx, f.clerk, item.ID)
	require.NoError(t, err)
	assert.Equal(t, map[models.Date]int{jan: 5, feb: 1}, lotMap(lots))
}

func TestOfftakeRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Eggs")
	f.supply(t, item.ID, 5, jan)

	_, err := f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{}, false)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{jan: 0}, false)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{jan: -1}, false)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.inv.Offtake(f.ctx, models.Anonymous, item.ID, map[models.Date]int{jan: 1}, false)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	_, err = f.inv.Offtake(f.ctx, f.clerk, 9999, map[models.Date]int{jan: 1}, false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, 5, f.curAmount(t, item.ID))
}

func TestTrashRequiresPrivilegeAndOwnsMoveBySentinel(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Fish")
	f.supply(t, item.ID, 4, jan)

	_, err := f.inv.Trash(f.ctx, f.clerk, item.ID, map[models.Date]int{jan: 1})
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
	assert.Equal(t, 4, f.curAmount(t, item.ID))

	move, err := f.inv.Trash(f.ctx, f.admin, item.ID, map[models.Date]int{jan: 3})
	require.NoError(t, err)
	assert.Equal(t, models.SentinelAccountId, move.AccountId)
	assert.Equal(t, 1, f.curAmount(t, item.ID))

	history, err := f.inv.GetTransactionHistory(f.ctx, f.clerk, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsWriteOff())
	assert.Equal(t, models.SentinelLogin, history[0].Login)
	assert.Equal(t, -3, history[0].Amount)
	assert.False(t, history[1].IsWriteOff())
}

func TestConcurrentOfftakesOfLastUnits(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Tea")
	f.supply(t, item.ID, 5, jan)

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{jan: 4}, false)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, short)
	assert.Equal(t, 1, f.curAmount(t, item.ID))
	assert.Equal(t, 1, f.ledgerSum(t, item.ID))
}

func TestFailedLineInsertRollsBackWholeOperation(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Coffee")
	f.supply(t, item.ID, 5, jan)
	moves := f.count(t, &models.Move{})

	const callback = "test:fail_move_lines"
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register(callback, func(tx *gorm.DB) {
		if tx.Statement.Table == "move_lines" {
			_ = tx.AddError(errors.New("injected move line failure"))
		}
	}))
	t.Cleanup(func() { _ = f.db.Callback().Create().Remove(callback) })

	_, err := f.inv.Supply(f.ctx, f.clerk, item.ID, 3, feb)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	_, err = f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{jan: 2}, false)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	require.NoError(t, f.db.Callback().Create().Remove(callback))

	assert.Equal(t, moves, f.count(t, &models.Move{}))
	assert.Equal(t, 5, f.curAmount(t, item.ID))
	assert.Equal(t, 5, f.ledgerSum(t, item.ID))
}

// Random supplies and offtakes must keep the cached amount equal to the
// ledger sum and never leave a lot negative.
func TestRandomMovesKeepLedgerConsistent(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Rice")
	dates := []models.Date{jan, feb, mar}
	rng := rand.New(rand.NewSource(7))

	for step := 0; step < 60; step++ {
		date := dates[rng.Intn(len(dates))]
		qty := rng.Intn(6) + 1
		if rng.Intn(2) == 0 {
			f.supply(t, item.ID, qty, date)
		} else {
			_, err := f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{date: qty}, false)
			if err != nil {
				require.ErrorIs(t, err, models.ErrInsufficientStock)
			}
		}

		require.Equal(t, f.ledgerSum(t, item.ID), f.curAmount(t, item.ID), "step %d", step)
		var perLot []models.Lot
		require.NoError(t, f.db.Model(&models.MoveLine{}).
			Select("expiration_date, SUM(amount) AS amount").
			Where("item_id = ?", item.ID).
			Group("expiration_date").
			Scan(&perLot).Error)
		for _, lot := range perLot {
			require.GreaterOrEqual(t, lot.Amount, 0, "lot %s at step %d", lot.ExpirationDate, step)
		}
	}
}

func TestTransactionHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Salt")
	f.supply(t, item.ID, 3, jan)
	f.supply(t, item.ID, 4, feb)
	_, err := f.inv.Offtake(f.ctx, f.clerk, item.ID, map[models.Date]int{jan: 1}, false)
	require.NoError(t, err)

	history, err := f.inv.GetTransactionHistory(f.ctx, f.clerk, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, -1, history[0].Amount)
	assert.Equal(t, 4, history[1].Amount)
	assert.Equal(t, 3, history[2].Amount)
	assert.Equal(t, "Clara Clerk", history[0].AccountFullName())
	assert.Equal(t, "clerk", history[0].Login)
	assert.Greater(t, history[0].MoveId, history[1].MoveId)

	_, err = f.inv.GetTransactionHistory(f.ctx, models.Anonymous, item.ID)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	_, err = f.inv.GetTransactionHistory(f.ctx, f.clerk, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExportTransactionHistory(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, "Sugar")
	f.supply(t, item.ID, 3, jan)
	_, err := f.inv.Trash(f.ctx, f.admin, item.ID, map[models.Date]int{jan: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.inv.ExportTransactionHistory(f.ctx, f.clerk, item.ID, &buf))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("History")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Move", rows[0][0])
	assert.Equal(t, "-1", rows[1][5])
	assert.Equal(t, "2030-01-15", rows[1][6])
	assert.Contains(t, []string{"TRUE", "1"}, rows[1][7])
	assert.Equal(t, "3", rows[2][5])
}
