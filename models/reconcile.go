package models

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Drift is an item whose cached amount disagrees with the sum of its ledger lines.
type Drift struct {
	ItemId       int    `json:"item_id"`
	Name         string `json:"name"`
	CurAmount    int    `json:"cur_amount"`
	LedgerAmount int    `json:"ledger_amount"`
}

func findDrift(db *gorm.DB) ([]Drift, error) {
	var drift []Drift
	err := db.Table("items AS i").
		Select("i.id AS item_id, i.name AS name, i.cur_amount AS cur_amount, COALESCE(SUM(ml.amount), 0) AS ledger_amount").
		Joins("LEFT JOIN move_lines ml ON ml.item_id = i.id").
		Group("i.id, i.name, i.cur_amount").
		Having("i.cur_amount <> COALESCE(SUM(ml.amount), 0)").
		Order("i.id").
		Scan(&drift).Error
	if err != nil {
		return nil, err
	}
	return drift, nil
}

// Reconcile reports every item whose cached amount drifted from the ledger.
func (inv *Inventory) Reconcile(ctx context.Context, gate AccessGate) ([]Drift, error) {
	const op = "reconcile"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var drift []Drift
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		var err error
		drift, err = findDrift(s.DB())
		return err
	})
	if err != nil {
		return nil, err
	}
	ledgerDriftItems.Set(float64(len(drift)))
	return drift, nil
}

// RepairDrift resets each drifted cached amount to its ledger sum. The ledger
// is the source of truth and is never rewritten.
func (inv *Inventory) RepairDrift(ctx context.Context, gate AccessGate) ([]Drift, error) {
	const op = "repair_drift"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var drift []Drift
	err := inv.withTx(ctx, op, func(s *TxSession) error {
		var err error
		if drift, err = findDrift(s.DB()); err != nil {
			return err
		}
		for _, d := range drift {
			if _, err := lockItem(s, d.ItemId); err != nil {
				return err
			}
			if err := s.DB().Model(&Item{}).Where("id = ?", d.ItemId).
				UpdateColumn("cur_amount", d.LedgerAmount).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range drift {
		inv.logger.WithFields(logrus.Fields{
			"module":        "inventory",
			"funcName":      op,
			"item_id":       d.ItemId,
			"cur_amount":    d.CurAmount,
			"ledger_amount": d.LedgerAmount,
		}).Warn("cached amount repaired")
	}
	ledgerDriftItems.Set(0)
	return drift, nil
}
