package handler

import (
	"github.com/cuemby/ledgerd/pkg/metrics"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/storage"
)

// withTx is the shared effective-transaction discipline: if the caller
// supplied an outer transaction, use it and leave committing or
// aborting to whoever owns it; otherwise begin a private transaction,
// run fn, and commit on success or abort on failure. Read-only callers
// always abort their private transaction, never commit.
func withTx(store *storage.Store, outer *storage.Tx, writable bool, fn func(tx *storage.Tx) error) error {
	tx := outer
	owned := false
	if tx == nil {
		var err error
		tx, err = store.Begin(nil, writable)
		if err != nil {
			metrics.StorageTxnFailuresTotal.WithLabelValues("begin").Inc()
			return statuscode.Wrap(statuscode.TxnBeginFailure, err)
		}
		owned = true
	}

	timer := metrics.NewTimer()
	err := fn(tx)

	if !owned {
		return err
	}
	defer timer.ObserveDurationVec(metrics.StorageTxnDuration, txMode(writable))

	if err != nil || !writable {
		tx.Abort()
		return err
	}

	if cerr := tx.Commit(); cerr != nil {
		metrics.StorageTxnFailuresTotal.WithLabelValues("commit").Inc()
		return statuscode.Wrap(statuscode.TxnCommitFailure, cerr)
	}
	return nil
}

func txMode(writable bool) string {
	if writable {
		return "write"
	}
	return "read"
}
