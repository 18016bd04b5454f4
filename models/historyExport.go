package models

import (
	"context"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const historySheet = "History"

var historyHeader = []interface{}{"Move", "Line", "Time", "Account", "Login", "Amount", "Expiration", "Write-off"}

// ExportTransactionHistory writes the item's history as an xlsx workbook.
func (inv *Inventory) ExportTransactionHistory(ctx context.Context, gate AccessGate, itemId int, w io.Writer) error {
	entries, err := inv.GetTransactionHistory(ctx, gate, itemId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		return err
	}
	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			e.MoveId,
			e.LineId,
			e.MovedAt.UTC().Format(time.RFC3339),
			e.AccountFullName(),
			e.Login,
			e.Amount,
			e.ExpirationDate.String(),
			e.IsWriteOff(),
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(historySheet, "C", "D", 24); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
