package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/stockroom_backend/utils"
	"gorm.io/gorm"
)

type Item struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"index;size:100;not null" json:"name"`
	Barcode    string    `gorm:"index;size:100" json:"barcode"`
	Unit       string    `gorm:"size:20" json:"unit"`
	MinAmount  int       `gorm:"not null;default:0" json:"min_amount"`
	CurAmount  int       `gorm:"not null;default:0" json:"cur_amount"`
	CategoryId int       `gorm:"index;not null" json:"category_id"`
	Category   *Category `gorm:"foreignKey:CategoryId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Note       string    `gorm:"size:1000" json:"note"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewItem is the input of InsertItem. CategoryId 0 files the item under the
// default category.
type NewItem struct {
	Name       string         `json:"name" validate:"required,max=100"`
	Barcode    string         `json:"barcode" validate:"max=100"`
	Unit       string         `json:"unit" validate:"max=20"`
	MinAmount  int            `json:"min_amount" validate:"gte=0"`
	CategoryId int            `json:"category_id" validate:"gte=0"`
	Note       string         `json:"note" validate:"max=1000"`
	Attributes []NewAttribute `json:"attributes" validate:"dive"`
}

// ItemUpdate carries only the fields to change; nil means unchanged.
// Attribute removals are applied before additions.
type ItemUpdate struct {
	Name             *string        `json:"name" validate:"omitempty,max=100"`
	Barcode          *string        `json:"barcode" validate:"omitempty,max=100"`
	Unit             *string        `json:"unit" validate:"omitempty,max=20"`
	MinAmount        *int           `json:"min_amount" validate:"omitempty,gte=0"`
	CategoryId       *int           `json:"category_id" validate:"omitempty,gte=1"`
	Note             *string        `json:"note" validate:"omitempty,max=1000"`
	AddAttributes    []NewAttribute `json:"add_attributes" validate:"dive"`
	RemoveAttributes []NewAttribute `json:"remove_attributes" validate:"dive"`
}

// ItemFilter narrows ListItems; zero values match everything.
type ItemFilter struct {
	Name       string `form:"name" json:"name"`
	Barcode    string `form:"barcode" json:"barcode"`
	CategoryId int    `form:"category_id" json:"category_id"`
	// BelowMinimum keeps items whose cur_amount is under min_amount.
	BelowMinimum bool `form:"below_minimum" json:"below_minimum"`
}

func (input *NewItem) normalize() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Barcode = strings.TrimSpace(input.Barcode)
	input.Unit = strings.TrimSpace(input.Unit)
	if input.CategoryId == 0 {
		input.CategoryId = DefaultCategoryId
	}
	if err := utils.ValidateStruct(input); err != nil {
		return newError(ErrInvalidInput, "%s", err.Error())
	}
	return nil
}

func (input *ItemUpdate) normalize() error {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return newError(ErrInvalidInput, "name: required")
		}
		input.Name = &name
	}
	if input.CategoryId != nil && *input.CategoryId <= 0 {
		return newError(ErrInvalidInput, "category_id: gte")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return newError(ErrInvalidInput, "%s", err.Error())
	}
	return nil
}

// InsertItem creates an item with zero stock and its initial attributes.
func (inv *Inventory) InsertItem(ctx context.Context, gate AccessGate, input NewItem) (*Item, error) {
	const op = "insert_item"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if err := input.normalize(); err != nil {
		return nil, inv.rejected(op, err)
	}

	item := Item{
		Name:       input.Name,
		Barcode:    input.Barcode,
		Unit:       input.Unit,
		MinAmount:  input.MinAmount,
		CategoryId: input.CategoryId,
		Note:       input.Note,
	}
	err := inv.withTx(ctx, op, func(s *TxSession) error {
		if err := ensureCategoryExists(s.DB(), item.CategoryId); err != nil {
			return err
		}
		if err := s.DB().Create(&item).Error; err != nil {
			return err
		}
		return applyAttributeChanges(s.DB(), item.ID, input.Attributes, nil)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem applies the non-nil fields of input. The cached stock amount is
// never touched here.
func (inv *Inventory) UpdateItem(ctx context.Context, gate AccessGate, id int, input ItemUpdate) (*Item, error) {
	const op = "update_item"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if err := input.normalize(); err != nil {
		return nil, inv.rejected(op, err)
	}

	var item *Item
	err := inv.withTx(ctx, op, func(s *TxSession) error {
		var err error
		item, err = lockItem(s, id)
		if err != nil {
			return err
		}

		var columns []string
		if input.Name != nil {
			item.Name = *input.Name
			columns = append(columns, "name")
		}
		if input.Barcode != nil {
			item.Barcode = strings.TrimSpace(*input.Barcode)
			columns = append(columns, "barcode")
		}
		if input.Unit != nil {
			item.Unit = strings.TrimSpace(*input.Unit)
			columns = append(columns, "unit")
		}
		if input.MinAmount != nil {
			item.MinAmount = *input.MinAmount
			columns = append(columns, "min_amount")
		}
		if input.CategoryId != nil {
			if err := ensureCategoryExists(s.DB(), *input.CategoryId); err != nil {
				return err
			}
			item.CategoryId = *input.CategoryId
			columns = append(columns, "category_id")
		}
		if input.Note != nil {
			item.Note = *input.Note
			columns = append(columns, "note")
		}
		if len(columns) > 0 {
			if err := s.DB().Model(item).Select(columns).Updates(item).Error; err != nil {
				return err
			}
		}
		return applyAttributeChanges(s.DB(), item.ID, input.AddAttributes, input.RemoveAttributes)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item that has never been moved. Items with ledger
// history are kept; their lines must keep resolving.
func (inv *Inventory) DeleteItem(ctx context.Context, gate AccessGate, id int) error {
	const op = "delete_item"
	if err := requirePrivilege(gate); err != nil {
		return inv.rejected(op, err)
	}
	return inv.withTx(ctx, op, func(s *TxSession) error {
		item, err := lockItem(s, id)
		if err != nil {
			return err
		}
		var lines int64
		if err := s.DB().Model(&MoveLine{}).Where("item_id = ?", item.ID).Count(&lines).Error; err != nil {
			return err
		}
		if lines > 0 {
			return newError(ErrReferentialConflict, "item %d has %d ledger lines", item.ID, lines)
		}
		if err := s.DB().Where("item_id = ?", item.ID).Delete(&Attribute{}).Error; err != nil {
			return err
		}
		return s.DB().Delete(item).Error
	})
}

func (inv *Inventory) GetItem(ctx context.Context, gate AccessGate, id int) (*Item, error) {
	const op = "get_item"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var item Item
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		err := s.DB().Where("id = ?", id).Take(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrNotFound, "item %d", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (inv *Inventory) ListItems(ctx context.Context, gate AccessGate, filter ItemFilter) ([]Item, error) {
	const op = "list_items"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var items []Item
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		dbCtx := s.DB().Model(&Item{})
		if name := strings.TrimSpace(filter.Name); name != "" {
			dbCtx = dbCtx.Where("name LIKE ?", "%"+name+"%")
		}
		if barcode := strings.TrimSpace(filter.Barcode); barcode != "" {
			dbCtx = dbCtx.Where("barcode = ?", barcode)
		}
		if filter.CategoryId > 0 {
			dbCtx = dbCtx.Where("category_id = ?", filter.CategoryId)
		}
		if filter.BelowMinimum {
			dbCtx = dbCtx.Where("cur_amount < min_amount")
		}
		return dbCtx.Order("name, id").Find(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
