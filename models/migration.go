package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/stockroom_backend/utils"
	"gorm.io/gorm"
)

// MigrateTable creates the schema and the reserved rows the engine relies on.
func MigrateTable(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Category{},
		&Account{},
		&Item{}, &Attribute{},
		&Move{}, &MoveLine{},
	)
	if err != nil {
		return err
	}
	return EnsureReservedRows(db)
}

// EnsureReservedRows inserts the write-off account and the default category
// when they are missing. It is safe to run on every start.
func EnsureReservedRows(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		sentinel := Account{ID: SentinelAccountId, Name: "Write-off", Login: SentinelLogin}
		if err := tx.Where("id = ?", SentinelAccountId).FirstOrCreate(&sentinel).Error; err != nil {
			return fmt.Errorf("write-off account: %w", err)
		}
		category := Category{ID: DefaultCategoryId, Name: "Uncategorized", ParentCategoryId: NoParentCategory}
		if err := tx.Where("id = ?", DefaultCategoryId).FirstOrCreate(&category).Error; err != nil {
			return fmt.Errorf("default category: %w", err)
		}
		if tx.Dialector.Name() == "postgres" {
			// explicit ids do not advance the serial sequences
			for _, table := range []string{"accounts", "categories"} {
				stmt := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT MAX(id) FROM %s), 1))", table, table)
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// EnsureAdminAccount creates a privileged account when none exists besides
// the write-off account. It reports whether an account was created.
func EnsureAdminAccount(db *gorm.DB, login string, password string) (*Account, bool, error) {
	login = strings.TrimSpace(login)
	if login == "" || utils.IsBlank(password) {
		return nil, false, errors.New("admin login and password are required")
	}
	if strings.EqualFold(login, SentinelLogin) {
		return nil, false, fmt.Errorf("admin login %q is reserved", login)
	}
	var created *Account
	err := db.Transaction(func(tx *gorm.DB) error {
		others, err := otherPrivilegedCount(tx, 0)
		if err != nil {
			return err
		}
		if others > 0 {
			return nil
		}
		hashed, err := hashPassword(password)
		if err != nil {
			return err
		}
		admin := Account{Name: "Administrator", Login: login, PasswordHash: hashed, IsPrivileged: true}
		if err := tx.Where("login = ? AND id <> ?", login, SentinelAccountId).
			Assign(Account{PasswordHash: hashed, IsPrivileged: true}).
			FirstOrCreate(&admin).Error; err != nil {
			return err
		}
		created = &admin
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return created, created != nil, nil
}
