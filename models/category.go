package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/stockroom_backend/utils"
	"gorm.io/gorm"
)

const (
	// DefaultCategoryId is created by migration and can be neither modified nor deleted.
	DefaultCategoryId = 1
	// NoParentCategory marks a top-level category.
	NoParentCategory = 0
)

type Category struct {
	ID               int       `gorm:"primary_key" json:"id"`
	ParentCategoryId int       `gorm:"index;not null;default:0" json:"parent_category_id"`
	Name             string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Note             string    `gorm:"size:1000" json:"note"`
	Color            string    `gorm:"size:7" json:"color"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategory struct {
	ParentCategoryId int    `json:"parent_category_id" validate:"gte=0"`
	Name             string `json:"name" validate:"required,max=100"`
	Note             string `json:"note" validate:"max=1000"`
	Color            string `json:"color" validate:"omitempty,hexcolor"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewCategory) validate(db *gorm.DB, id int) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Color = strings.TrimSpace(input.Color)
	if err := utils.ValidateStruct(input); err != nil {
		return newError(ErrInvalidInput, "%s", err.Error())
	}
	if id > 0 && id == input.ParentCategoryId {
		return newError(ErrInvalidInput, "self-parent not allowed")
	}

	var count int64
	if err := db.Model(&Category{}).Where("name = ? AND id <> ?", input.Name, id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return newError(ErrInvalidInput, "category name %q already exists", input.Name)
	}

	if input.ParentCategoryId == NoParentCategory {
		return nil
	}
	// walk up from the new parent; reaching id would close a cycle
	seen := map[int]bool{}
	for parentId := input.ParentCategoryId; parentId != NoParentCategory; {
		if parentId == id {
			return newError(ErrInvalidInput, "category %d cannot be nested under its own descendant", id)
		}
		if seen[parentId] {
			break
		}
		seen[parentId] = true
		var parent Category
		err := db.Select("id", "parent_category_id").Where("id = ?", parentId).Take(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrInvalidInput, "parent category %d not found", parentId)
		}
		if err != nil {
			return err
		}
		parentId = parent.ParentCategoryId
	}
	return nil
}

func ensureCategoryExists(db *gorm.DB, id int) error {
	var count int64
	if err := db.Model(&Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return newError(ErrNotFound, "category %d", id)
	}
	return nil
}

func lockCategory(s *TxSession, id int) (*Category, error) {
	var category Category
	err := s.ForUpdate().Where("id = ?", id).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "category %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (inv *Inventory) CreateCategory(ctx context.Context, gate AccessGate, input NewCategory) (*Category, error) {
	const op = "create_category"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var category Category
	err := inv.withTx(ctx, op, func(s *TxSession) error {
		if err := input.validate(s.DB(), 0); err != nil {
			return err
		}
		category = Category{
			ParentCategoryId: input.ParentCategoryId,
			Name:             input.Name,
			Note:             input.Note,
			Color:            input.Color,
		}
		return s.DB().Create(&category).Error
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ModifyCategory replaces every field of the category with input.
func (inv *Inventory) ModifyCategory(ctx context.Context, gate AccessGate, id int, input NewCategory) (*Category, error) {
	const op = "modify_category"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if id == DefaultCategoryId {
		return nil, inv.rejected(op, newError(ErrInvalidInput, "the default category cannot be modified"))
	}
	var category *Category
	err := inv.withTx(ctx, op, func(s *TxSession) error {
		var err error
		if category, err = lockCategory(s, id); err != nil {
			return err
		}
		if err := input.validate(s.DB(), id); err != nil {
			return err
		}
		category.ParentCategoryId = input.ParentCategoryId
		category.Name = input.Name
		category.Note = input.Note
		category.Color = input.Color
		return s.DB().Model(category).
			Select("parent_category_id", "name", "note", "color", "updated_at").
			Updates(category).Error
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory removes a category. Its items move to replacement, which is
// required when there are any; its children move up to the deleted
// category's parent.
func (inv *Inventory) DeleteCategory(ctx context.Context, gate AccessGate, id int, replacement int) error {
	const op = "delete_category"
	if err := requirePrivilege(gate); err != nil {
		return inv.rejected(op, err)
	}
	if id == DefaultCategoryId {
		return inv.rejected(op, newError(ErrReferentialConflict, "the default category cannot be deleted"))
	}
	return inv.withTx(ctx, op, func(s *TxSession) error {
		category, err := lockCategory(s, id)
		if err != nil {
			return err
		}

		var items int64
		if err := s.DB().Model(&Item{}).Where("category_id = ?", id).Count(&items).Error; err != nil {
			return err
		}
		if items > 0 {
			if replacement == 0 {
				return newError(ErrReferentialConflict, "category %d has %d items; a replacement is required", id, items)
			}
			if replacement == id {
				return newError(ErrInvalidInput, "a category cannot replace itself")
			}
			if err := ensureCategoryExists(s.DB(), replacement); err != nil {
				return err
			}
			if err := s.DB().Model(&Item{}).Where("category_id = ?", id).
				Update("category_id", replacement).Error; err != nil {
				return err
			}
		}

		if err := s.DB().Model(&Category{}).Where("parent_category_id = ?", id).
			Update("parent_category_id", category.ParentCategoryId).Error; err != nil {
			return err
		}
		return s.DB().Delete(category).Error
	})
}

// HasItems reports whether deleting the category needs a replacement.
func (inv *Inventory) HasItems(ctx context.Context, gate AccessGate, id int) (bool, error) {
	const op = "category_has_items"
	if err := requireLogin(gate); err != nil {
		return false, inv.rejected(op, err)
	}
	var count int64
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		if err := ensureCategoryExists(s.DB(), id); err != nil {
			return err
		}
		return s.DB().Model(&Item{}).Where("category_id = ?", id).Count(&count).Error
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (inv *Inventory) GetCategory(ctx context.Context, gate AccessGate, id int) (*Category, error) {
	const op = "get_category"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var category Category
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		err := s.DB().Where("id = ?", id).Take(&category).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrNotFound, "category %d", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (inv *Inventory) ListCategories(ctx context.Context, gate AccessGate, name string) ([]Category, error) {
	const op = "list_categories"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var categories []Category
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		dbCtx := s.DB().Model(&Category{})
		if name = strings.TrimSpace(name); name != "" {
			dbCtx = dbCtx.Where("name LIKE ?", "%"+name+"%")
		}
		return dbCtx.Order("name").Find(&categories).Error
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}
