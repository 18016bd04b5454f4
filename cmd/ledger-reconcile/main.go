// ledger-reconcile compares every item's cached amount with the sum of its
// ledger lines and, with -fix, resets drifted amounts to the ledger sum.
// When redis is configured only one instance runs at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/mmdatafocus/stockroom_backend/models"
)

const lockKey = "lock:ledger-reconcile"

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup always happens: 0 clean,
// 1 failure, 2 lock held elsewhere, 3 drift found without -fix.
func run() int {
	fix := flag.Bool("fix", false, "Reset drifted cached amounts to the ledger sum")
	timeout := flag.Duration("timeout", 10*time.Minute, "Abort after this long")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		return 1
	}
	config.ConnectRedisWithRetry(ctx)
	logger := config.GetLogger()

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, lockKey, *timeout, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			fmt.Fprintln(os.Stderr, "another ledger-reconcile is running")
			return 2
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "obtain lock: %v\n", err)
			return 1
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				config.LogWarn(logger, "ledger-reconcile", "main", "release lock", lockKey, err)
			}
		}()
	}

	// direct database access already implies operator rights
	operator := models.Session{AccountId: models.SentinelAccountId, Login: "ledger-reconcile", Privileged: true}
	inv := models.NewInventory(models.NewTxProvider(db), logger)

	var (
		drift []models.Drift
		err   error
	)
	if *fix {
		drift, err = inv.RepairDrift(ctx, operator)
	} else {
		drift, err = inv.Reconcile(ctx, operator)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		return 1
	}

	for _, d := range drift {
		fmt.Printf("item=%d name=%q cur_amount=%d ledger_amount=%d\n", d.ItemId, d.Name, d.CurAmount, d.LedgerAmount)
	}
	switch {
	case len(drift) == 0:
		fmt.Println("no drift")
	case *fix:
		fmt.Printf("repaired %d items\n", len(drift))
	default:
		fmt.Printf("%d items drifted; rerun with -fix to repair\n", len(drift))
		return 3
	}
	return 0
}
