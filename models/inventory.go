package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("stockroom-inventory")

// Inventory is the ledger engine. It holds no mutable state of its own; every
// cross-request ordering is left to the store's transactions.
type Inventory struct {
	provider TxProvider
	logger   *logrus.Logger
}

func NewInventory(provider TxProvider, logger *logrus.Logger) *Inventory {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Inventory{provider: provider, logger: logger}
}

// withTx runs fn inside one transaction with a checkpoint taken before any
// write. On failure the session is rolled back to the checkpoint and released;
// callers observe full success or no effect.
func (inv *Inventory) withTx(ctx context.Context, operation string, fn func(s *TxSession) error) (err error) {
	ctx, span := tracer.Start(ctx, "inventory."+operation)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindLabel(err))
		}
		span.End()
		observeOperation(operation, start, err)
	}()

	s, err := inv.provider.Begin(ctx)
	if err != nil {
		err = classifyError(err)
		inv.logFailure(operation, "begin", err)
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			config.LogWarn(inv.logger, "inventory", operation, "close session", nil, closeErr)
		}
	}()

	cp, err := s.Checkpoint()
	if err != nil {
		err = classifyError(err)
		inv.logFailure(operation, "checkpoint", err)
		return err
	}

	if err = fn(s); err != nil {
		if rbErr := s.RollbackTo(cp); rbErr != nil {
			config.LogWarn(inv.logger, "inventory", operation, "rollback to "+cp.String(), nil, rbErr)
		}
		err = classifyError(err)
		inv.logFailure(operation, "apply", err)
		return err
	}

	if err = s.Commit(); err != nil {
		err = classifyError(err)
		inv.logFailure(operation, "commit", err)
		return err
	}
	return nil
}

// withReadTx runs fn against a consistent snapshot; nothing is written, so no
// checkpoint is taken.
func (inv *Inventory) withReadTx(ctx context.Context, operation string, fn func(s *TxSession) error) (err error) {
	ctx, span := tracer.Start(ctx, "inventory."+operation)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindLabel(err))
		}
		span.End()
		observeOperation(operation, start, err)
	}()

	s, err := inv.provider.BeginReadOnly(ctx)
	if err != nil {
		err = classifyError(err)
		inv.logFailure(operation, "begin", err)
		return err
	}
	defer s.Close()

	if err = fn(s); err != nil {
		err = classifyError(err)
		inv.logFailure(operation, "read", err)
		return err
	}
	err = classifyError(s.Commit())
	return err
}

// gate failures are counted but never begin a transaction
func (inv *Inventory) rejected(operation string, err error) error {
	observeOperation(operation, time.Now(), err)
	return err
}

// only store failures are worth an error log; the rest are caller mistakes
func (inv *Inventory) logFailure(operation string, step string, err error) {
	if KindOf(err) == ErrStoreUnavailable {
		config.LogError(inv.logger, "inventory", operation, step, nil, err)
		return
	}
	inv.logger.WithFields(logrus.Fields{
		"module":   "inventory",
		"funcName": operation,
		"context":  step,
		"kind":     KindLabel(err),
	}).Debug(err.Error())
}
