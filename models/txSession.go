package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TxProvider hands out transactional sessions. Every session must be released
// with Close, also after Commit.
type TxProvider interface {
	Begin(ctx context.Context) (*TxSession, error)
	BeginReadOnly(ctx context.Context) (*TxSession, error)
}

// TxOptions tune a GormTxProvider for the dialect behind it.
type TxOptions struct {
	Isolation sql.IsolationLevel
	// LockRows reads item rows with SELECT ... FOR UPDATE inside mutating operations.
	LockRows bool
	// ReadOnly marks snapshot reads as READ ONLY transactions.
	ReadOnly bool
}

// DialectTxOptions returns the options used for a dialect name as reported
// by gorm.Dialector.Name().
func DialectTxOptions(dialect string) TxOptions {
	switch dialect {
	case "mysql", "postgres":
		return TxOptions{Isolation: sql.LevelSerializable, LockRows: true, ReadOnly: true}
	default:
		// sqlite: a single writer, transactions are serializable already
		return TxOptions{Isolation: sql.LevelDefault}
	}
}

type GormTxProvider struct {
	db   *gorm.DB
	opts TxOptions
}

// NewTxProvider picks the options matching db's dialect.
func NewTxProvider(db *gorm.DB) *GormTxProvider {
	return NewTxProviderWithOptions(db, DialectTxOptions(db.Dialector.Name()))
}

func NewTxProviderWithOptions(db *gorm.DB, opts TxOptions) *GormTxProvider {
	return &GormTxProvider{db: db, opts: opts}
}

func (p *GormTxProvider) Begin(ctx context.Context) (*TxSession, error) {
	return p.begin(ctx, &sql.TxOptions{Isolation: p.opts.Isolation})
}

func (p *GormTxProvider) BeginReadOnly(ctx context.Context) (*TxSession, error) {
	return p.begin(ctx, &sql.TxOptions{Isolation: p.opts.Isolation, ReadOnly: p.opts.ReadOnly})
}

func (p *GormTxProvider) begin(ctx context.Context, opts *sql.TxOptions) (*TxSession, error) {
	if p.db == nil {
		return nil, newError(ErrStoreUnavailable, "database not initialized")
	}
	tx := p.db.WithContext(ctx).Begin(opts)
	if tx.Error != nil {
		return nil, &LedgerError{Kind: ErrStoreUnavailable, Detail: "begin transaction", Err: tx.Error}
	}
	return NewTxSession(tx, p.opts.LockRows), nil
}

// Checkpoint names a savepoint inside a TxSession.
type Checkpoint struct {
	name string
}

func (c Checkpoint) String() string {
	return c.name
}

// TxSession owns one database transaction until Commit or Close.
type TxSession struct {
	tx       *gorm.DB
	lockRows bool
	seq      int
	done     bool
}

func NewTxSession(tx *gorm.DB, lockRows bool) *TxSession {
	return &TxSession{tx: tx, lockRows: lockRows}
}

// DB is the transaction handle; every query of the operation goes through it.
func (s *TxSession) DB() *gorm.DB {
	return s.tx
}

// ForUpdate returns a handle whose next SELECT takes row locks where the
// dialect supports them.
func (s *TxSession) ForUpdate() *gorm.DB {
	if s.lockRows {
		return s.tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return s.tx
}

func (s *TxSession) Checkpoint() (Checkpoint, error) {
	if s.done {
		return Checkpoint{}, sql.ErrTxDone
	}
	s.seq++
	cp := Checkpoint{name: fmt.Sprintf("sp_%d", s.seq)}
	if err := s.tx.SavePoint(cp.name).Error; err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func (s *TxSession) RollbackTo(cp Checkpoint) error {
	if s.done {
		return sql.ErrTxDone
	}
	if cp.name == "" {
		return errors.New("empty checkpoint")
	}
	return s.tx.RollbackTo(cp.name).Error
}

func (s *TxSession) Commit() error {
	if s.done {
		return sql.ErrTxDone
	}
	s.done = true
	return s.tx.Commit().Error
}

// Close releases the session, rolling back anything not committed. It is safe
// to call more than once.
func (s *TxSession) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.tx.Rollback().Error
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
