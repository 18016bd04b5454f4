package models

import (
	"context"
	"strings"

	"github.com/mmdatafocus/stockroom_backend/utils"
	"gorm.io/gorm"
)

// Attribute is a free-form (name, value) pair on an item. An item holds a set
// of them; the same pair cannot appear twice.
type Attribute struct {
	ItemId int    `gorm:"primaryKey;autoIncrement:false" json:"item_id"`
	Item   *Item  `gorm:"foreignKey:ItemId;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Name   string `gorm:"primaryKey;size:100" json:"name"`
	Value  string `gorm:"primaryKey;size:255" json:"value"`
}

type NewAttribute struct {
	Name  string `json:"name" validate:"required,max=100"`
	Value string `json:"value" validate:"max=255"`
}

func (a NewAttribute) trimmed() NewAttribute {
	return NewAttribute{Name: strings.TrimSpace(a.Name), Value: strings.TrimSpace(a.Value)}
}

// applyAttributeChanges removes then adds. Removing a pair the item does not
// have is NotFound; adding one it already has is InvalidInput.
func applyAttributeChanges(db *gorm.DB, itemId int, add []NewAttribute, remove []NewAttribute) error {
	for _, r := range utils.UniqueSlice(trimAttributes(remove)) {
		result := db.Where("item_id = ? AND name = ? AND value = ?", itemId, r.Name, r.Value).Delete(&Attribute{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return newError(ErrNotFound, "item %d has no attribute %s=%s", itemId, r.Name, r.Value)
		}
	}
	for _, a := range utils.UniqueSlice(trimAttributes(add)) {
		if a.Name == "" {
			return newError(ErrInvalidInput, "attribute name is required")
		}
		var count int64
		err := db.Model(&Attribute{}).
			Where("item_id = ? AND name = ? AND value = ?", itemId, a.Name, a.Value).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return newError(ErrInvalidInput, "item %d already has attribute %s=%s", itemId, a.Name, a.Value)
		}
		if err := db.Create(&Attribute{ItemId: itemId, Name: a.Name, Value: a.Value}).Error; err != nil {
			return err
		}
	}
	return nil
}

func trimAttributes(attributes []NewAttribute) []NewAttribute {
	out := make([]NewAttribute, 0, len(attributes))
	for _, a := range attributes {
		out = append(out, a.trimmed())
	}
	return out
}

func (inv *Inventory) GetItemAttributes(ctx context.Context, gate AccessGate, itemId int) ([]Attribute, error) {
	const op = "get_item_attributes"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var attributes []Attribute
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		if err := ensureItemExists(s.DB(), itemId); err != nil {
			return err
		}
		return s.DB().Where("item_id = ?", itemId).Order("name, value").Find(&attributes).Error
	})
	if err != nil {
		return nil, err
	}
	return attributes, nil
}
