package models

import (
	"context"
	"time"
)

// LedgerEntry is one move line of an item joined with its move and owner.
type LedgerEntry struct {
	MoveId         int       `json:"move_id"`
	LineId         int       `json:"line_id"`
	MovedAt        time.Time `json:"time"`
	AccountId      int       `json:"account_id"`
	AccountName    string    `json:"account_name"`
	AccountSurname string    `json:"account_surname"`
	Login          string    `json:"login"`
	Amount         int       `json:"amount"`
	ExpirationDate Date      `json:"expiration_date"`
}

// IsWriteOff is true for lines owned by the sentinel account.
func (e LedgerEntry) IsWriteOff() bool {
	return e.AccountId == SentinelAccountId
}

func (e LedgerEntry) AccountFullName() string {
	return Account{Name: e.AccountName, Surname: e.AccountSurname}.FullName()
}

// GetTransactionHistory lists every move line of the item, newest first.
func (inv *Inventory) GetTransactionHistory(ctx context.Context, gate AccessGate, itemId int) ([]LedgerEntry, error) {
	const op = "transaction_history"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var entries []LedgerEntry
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		if err := ensureItemExists(s.DB(), itemId); err != nil {
			return err
		}
		return s.DB().Table("move_lines AS ml").
			Select("m.id AS move_id, ml.id AS line_id, m.moved_at AS moved_at, m.account_id AS account_id, " +
				"a.name AS account_name, a.surname AS account_surname, a.login AS login, " +
				"ml.amount AS amount, ml.expiration_date AS expiration_date").
			Joins("JOIN moves m ON m.id = ml.move_id").
			Joins("JOIN accounts a ON a.id = m.account_id").
			Where("ml.item_id = ?", itemId).
			Order("m.moved_at DESC, m.id DESC, ml.id DESC").
			Scan(&entries).Error
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
