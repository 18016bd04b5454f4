package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/stockroom_backend/utils"
	"gorm.io/gorm"
)

// Error kinds returned by every Inventory operation. Match them with errors.Is.
var (
	ErrNotAuthenticated    = errors.New("please log in")
	ErrNotAuthorized       = errors.New("insufficient privilege")
	ErrNotFound            = errors.New("record not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReferentialConflict = errors.New("referential conflict")
	ErrStoreUnavailable    = errors.New("action could not be completed, please retry")
)

var errorKinds = []error{
	ErrNotAuthenticated,
	ErrNotAuthorized,
	ErrNotFound,
	ErrInvalidInput,
	ErrInsufficientStock,
	ErrReferentialConflict,
	ErrStoreUnavailable,
}

// LedgerError carries one of the error kinds plus a human readable detail and,
// optionally, the lower-level cause.
type LedgerError struct {
	Kind   error
	Detail string
	Err    error
}

func (e *LedgerError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *LedgerError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, format string, args ...any) error {
	return &LedgerError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the error kind of err, or nil when err is not a ledger error.
func KindOf(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindLabel is a stable snake_case name for metrics and API payloads.
func KindLabel(err error) string {
	switch KindOf(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "unknown"
	case ErrNotAuthenticated:
		return "not_authenticated"
	case ErrNotAuthorized:
		return "not_authorized"
	case ErrNotFound:
		return "not_found"
	case ErrInvalidInput:
		return "invalid_input"
	case ErrInsufficientStock:
		return "insufficient_stock"
	case ErrReferentialConflict:
		return "referential_conflict"
	default:
		return "store_unavailable"
	}
}

// classifyError maps store failures onto the error kinds. Errors that already
// carry a kind pass through untouched; anything unexpected becomes StoreUnavailable.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &LedgerError{Kind: ErrNotFound, Err: err}
	case utils.IsDuplicateKeyError(err):
		return &LedgerError{Kind: ErrInvalidInput, Detail: "duplicate key", Err: err}
	case utils.IsSerializationFailure(err):
		return &LedgerError{Kind: ErrStoreUnavailable, Detail: "concurrent update", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &LedgerError{Kind: ErrStoreUnavailable, Detail: "timed out", Err: err}
	}
	return &LedgerError{Kind: ErrStoreUnavailable, Err: err}
}
