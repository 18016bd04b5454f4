package models_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/mmdatafocus/stockroom_backend/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	ctx   context.Context
	db    *gorm.DB
	inv   *models.Inventory
	admin models.Session
	clerk models.Session
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newFixture opens a fresh sqlite file, migrates it and creates one
// privileged and one ordinary account.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stockroom.db")
	db, err := config.OpenDatabase(config.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, models.MigrateTable(db))

	admin, created, err := models.EnsureAdminAccount(db, "admin", "admin-pw")
	require.NoError(t, err)
	require.True(t, created)

	f := &fixture{
		ctx: context.Background(),
		db:  db,
		inv: models.NewInventory(models.NewTxProvider(db), quietLogger()),
		admin: models.Session{
			AccountId:  admin.ID,
			Login:      admin.Login,
			Privileged: true,
		},
	}

	clerk, err := f.inv.CreateAccount(f.ctx, f.admin, models.NewAccount{
		Name:     "Clara",
		Surname:  "Clerk",
		Login:    "clerk",
		Password: "clerk-pw",
	})
	require.NoError(t, err)
	f.clerk = models.Session{AccountId: clerk.ID, Login: clerk.Login}
	return f
}

func (f *fixture) newItem(t *testing.T, name string) *models.Item {
	t.Helper()
	item, err := f.inv.InsertItem(f.ctx, f.admin, models.NewItem{Name: name, Unit: "pcs"})
	require.NoError(t, err)
	return item
}

func (f *fixture) supply(t *testing.T, itemId int, amount int, expiration models.Date) {
	t.Helper()
	_, err := f.inv.Supply(f.ctx, f.clerk, itemId, amount, expiration)
	require.NoError(t, err)
}

func (f *fixture) curAmount(t *testing.T, itemId int) int {
	t.Helper()
	var item models.Item
	require.NoError(t, f.db.Where("id = ?", itemId).Take(&item).Error)
	return item.CurAmount
}

func (f *fixture) ledgerSum(t *testing.T, itemId int) int {
	t.Helper()
	var sum int
	require.NoError(t, f.db.Model(&models.MoveLine{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("item_id = ?", itemId).
		Scan(&sum).Error)
	return sum
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

// lotMap flattens lots for order-insensitive comparison.
func lotMap(lots []models.Lot) map[models.Date]int {
	out := make(map[models.Date]int, len(lots))
	for _, lot := range lots {
		out[lot.ExpirationDate] += lot.Amount
	}
	return out
}

var (
	jan = models.NewDate(2030, time.January, 15)
	feb = models.NewDate(2030, time.February, 15)
	mar = models.NewDate(2030, time.March, 15)
)
