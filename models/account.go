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
	// SentinelAccountId owns written-off stock. It cannot log in, be modified or be deleted.
	SentinelAccountId = 1
	SentinelLogin     = "trash"
)

type Account struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Surname      string    `gorm:"size:100" json:"surname"`
	Login        string    `gorm:"uniqueIndex;size:100;not null" json:"login"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	IsPrivileged bool      `gorm:"not null;default:false" json:"is_privileged"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Name         string `json:"name" validate:"required,max=100"`
	Surname      string `json:"surname" validate:"max=100"`
	Login        string `json:"login" validate:"required,max=100"`
	Password     string `json:"password" validate:"required,max=72"`
	IsPrivileged bool   `json:"is_privileged"`
}

// AccountUpdate changes only non-nil fields. A non-empty Password replaces the
// stored hash.
type AccountUpdate struct {
	Name         *string `json:"name" validate:"omitempty,max=100"`
	Surname      *string `json:"surname" validate:"omitempty,max=100"`
	Login        *string `json:"login" validate:"omitempty,max=100"`
	Password     string  `json:"password" validate:"max=72"`
	IsPrivileged *bool   `json:"is_privileged"`
}

func (a Account) FullName() string {
	return strings.TrimSpace(a.Name + " " + a.Surname)
}

func (input *NewAccount) validate() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Surname = strings.TrimSpace(input.Surname)
	input.Login = strings.TrimSpace(input.Login)
	if utils.IsBlank(input.Password) {
		input.Password = ""
	}
	if err := utils.ValidateStruct(input); err != nil {
		return newError(ErrInvalidInput, "%s", err.Error())
	}
	if strings.EqualFold(input.Login, SentinelLogin) {
		return newError(ErrInvalidInput, "login %q is reserved", input.Login)
	}
	return nil
}

func (input *AccountUpdate) validate() error {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return newError(ErrInvalidInput, "name: required")
		}
		input.Name = &name
	}
	if input.Login != nil {
		login := strings.TrimSpace(*input.Login)
		if login == "" {
			return newError(ErrInvalidInput, "login: required")
		}
		if strings.EqualFold(login, SentinelLogin) {
			return newError(ErrInvalidInput, "login %q is reserved", login)
		}
		input.Login = &login
	}
	if utils.IsBlank(input.Password) {
		input.Password = ""
	}
	if err := utils.ValidateStruct(input); err != nil {
		return newError(ErrInvalidInput, "%s", err.Error())
	}
	return nil
}

func lockAccount(s *TxSession, id int) (*Account, error) {
	var account Account
	err := s.ForUpdate().Where("id = ?", id).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "account %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func ensureLoginFree(db *gorm.DB, login string, exceptId int) error {
	var count int64
	if err := db.Model(&Account{}).Where("login = ? AND id <> ?", login, exceptId).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return newError(ErrInvalidInput, "login %q is already taken", login)
	}
	return nil
}

// otherPrivilegedCount excludes the sentinel, which never holds privilege.
func otherPrivilegedCount(db *gorm.DB, exceptId int) (int64, error) {
	var count int64
	err := db.Model(&Account{}).
		Where("is_privileged = ? AND id <> ? AND id <> ?", true, exceptId, SentinelAccountId).
		Count(&count).Error
	return count, err
}

func hashPassword(password string) (string, error) {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return "", newError(ErrInvalidInput, "password: %s", err.Error())
	}
	return string(hashed), nil
}

func (inv *Inventory) CreateAccount(ctx context.Context, gate AccessGate, input NewAccount) (*Account, error) {
	const op = "create_account"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if err := input.validate(); err != nil {
		return nil, inv.rejected(op, err)
	}
	hashed, err := hashPassword(input.Password)
	if err != nil {
		return nil, inv.rejected(op, err)
	}

	account := Account{
		Name:         input.Name,
		Surname:      input.Surname,
		Login:        input.Login,
		PasswordHash: hashed,
		IsPrivileged: input.IsPrivileged,
	}
	err = inv.withTx(ctx, op, func(s *TxSession) error {
		if err := ensureLoginFree(s.DB(), account.Login, 0); err != nil {
			return err
		}
		return s.DB().Create(&account).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ModifyAccount applies input to the account. The last privileged account
// cannot be demoted. Sessions of the account are revoked when its login,
// password or privilege changes.
func (inv *Inventory) ModifyAccount(ctx context.Context, gate AccessGate, id int, input AccountUpdate) (*Account, error) {
	const op = "modify_account"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if id == SentinelAccountId {
		return nil, inv.rejected(op, newError(ErrInvalidInput, "the write-off account cannot be modified"))
	}
	if err := input.validate(); err != nil {
		return nil, inv.rejected(op, err)
	}
	var hashed string
	if input.Password != "" {
		var err error
		if hashed, err = hashPassword(input.Password); err != nil {
			return nil, inv.rejected(op, err)
		}
	}

	var (
		account     *Account
		oldLogin    string
		revokeLogin bool
	)
	err := inv.withTx(ctx, op, func(s *TxSession) error {
		var err error
		if account, err = lockAccount(s, id); err != nil {
			return err
		}
		oldLogin = account.Login

		columns := []string{"updated_at"}
		if input.Name != nil {
			account.Name = *input.Name
			columns = append(columns, "name")
		}
		if input.Surname != nil {
			account.Surname = strings.TrimSpace(*input.Surname)
			columns = append(columns, "surname")
		}
		if input.Login != nil && *input.Login != account.Login {
			if err := ensureLoginFree(s.DB(), *input.Login, id); err != nil {
				return err
			}
			account.Login = *input.Login
			columns = append(columns, "login")
			revokeLogin = true
		}
		if hashed != "" {
			account.PasswordHash = hashed
			columns = append(columns, "password_hash")
			revokeLogin = true
		}
		if input.IsPrivileged != nil && *input.IsPrivileged != account.IsPrivileged {
			if !*input.IsPrivileged {
				others, err := otherPrivilegedCount(s.DB(), id)
				if err != nil {
					return err
				}
				if others == 0 {
					return newError(ErrReferentialConflict, "account %d is the last privileged account", id)
				}
			}
			account.IsPrivileged = *input.IsPrivileged
			columns = append(columns, "is_privileged")
			revokeLogin = true
		}
		return s.DB().Model(account).Select(columns).Updates(account).Error
	})
	if err != nil {
		return nil, err
	}
	if revokeLogin {
		inv.revokeSessions(ctx, oldLogin)
	}
	return account, nil
}

// DeleteAccount removes an account. Its moves are reassigned to replacement,
// which is required when there are any and cannot be the write-off account.
func (inv *Inventory) DeleteAccount(ctx context.Context, gate AccessGate, id int, replacement int) error {
	const op = "delete_account"
	if err := requirePrivilege(gate); err != nil {
		return inv.rejected(op, err)
	}
	if id == SentinelAccountId {
		return inv.rejected(op, newError(ErrReferentialConflict, "the write-off account cannot be deleted"))
	}

	var login string
	err := inv.withTx(ctx, op, func(s *TxSession) error {
		account, err := lockAccount(s, id)
		if err != nil {
			return err
		}
		login = account.Login

		if account.IsPrivileged {
			others, err := otherPrivilegedCount(s.DB(), id)
			if err != nil {
				return err
			}
			if others == 0 {
				return newError(ErrReferentialConflict, "account %d is the last privileged account", id)
			}
		}

		var moves int64
		if err := s.DB().Model(&Move{}).Where("account_id = ?", id).Count(&moves).Error; err != nil {
			return err
		}
		if moves > 0 {
			switch replacement {
			case 0:
				return newError(ErrReferentialConflict, "account %d owns %d moves; a replacement is required", id, moves)
			case id:
				return newError(ErrInvalidInput, "an account cannot replace itself")
			case SentinelAccountId:
				return newError(ErrInvalidInput, "moves cannot be reassigned to the write-off account")
			}
			if err := ensureAccountExists(s.DB(), replacement); err != nil {
				return err
			}
			if err := s.DB().Model(&Move{}).Where("account_id = ?", id).
				Update("account_id", replacement).Error; err != nil {
				return err
			}
		}
		return s.DB().Delete(account).Error
	})
	if err != nil {
		return err
	}
	inv.revokeSessions(ctx, login)
	return nil
}

// HasTransactions reports whether deleting the account needs a replacement.
func (inv *Inventory) HasTransactions(ctx context.Context, gate AccessGate, id int) (bool, error) {
	const op = "account_has_transactions"
	if err := requireLogin(gate); err != nil {
		return false, inv.rejected(op, err)
	}
	var count int64
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		if err := ensureAccountExists(s.DB(), id); err != nil {
			return err
		}
		return s.DB().Model(&Move{}).Where("account_id = ?", id).Count(&count).Error
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetAccount is open to the account itself and to privileged callers.
func (inv *Inventory) GetAccount(ctx context.Context, gate AccessGate, id int) (*Account, error) {
	const op = "get_account"
	if err := requireLogin(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	if gate.CurrentAccountId() != id && !gate.IsPrivileged() {
		return nil, inv.rejected(op, newError(ErrNotAuthorized, "elevated role required"))
	}
	var account Account
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		err := s.DB().Where("id = ?", id).Take(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrNotFound, "account %d", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (inv *Inventory) ListAccounts(ctx context.Context, gate AccessGate) ([]Account, error) {
	const op = "list_accounts"
	if err := requirePrivilege(gate); err != nil {
		return nil, inv.rejected(op, err)
	}
	var accounts []Account
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		return s.DB().Order("login").Find(&accounts).Error
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ChangePassword lets the caller replace their own password. Every session of
// the account, the current one included, is revoked afterwards.
func (inv *Inventory) ChangePassword(ctx context.Context, gate AccessGate, oldPassword string, newPassword string) error {
	const op = "change_password"
	if err := requireLogin(gate); err != nil {
		return inv.rejected(op, err)
	}
	if gate.CurrentAccountId() == SentinelAccountId {
		return inv.rejected(op, newError(ErrInvalidInput, "the write-off account has no password"))
	}
	if utils.IsBlank(newPassword) {
		return inv.rejected(op, newError(ErrInvalidInput, "new password is required"))
	}
	hashed, err := hashPassword(newPassword)
	if err != nil {
		return inv.rejected(op, err)
	}

	var login string
	err = inv.withTx(ctx, op, func(s *TxSession) error {
		account, err := lockAccount(s, gate.CurrentAccountId())
		if err != nil {
			return err
		}
		if err := utils.ComparePassword(account.PasswordHash, oldPassword); err != nil {
			return newError(ErrInvalidInput, "old password is wrong")
		}
		login = account.Login
		account.PasswordHash = hashed
		return s.DB().Model(account).Select("password_hash", "updated_at").Updates(account).Error
	})
	if err != nil {
		return err
	}
	inv.revokeSessions(ctx, login)
	return nil
}
