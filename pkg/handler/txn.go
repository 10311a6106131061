package handler

import (
	"errors"

	"github.com/cuemby/ledgerd/pkg/capability"
	"github.com/cuemby/ledgerd/pkg/context"
	"github.com/cuemby/ledgerd/pkg/metrics"
	"github.com/cuemby/ledgerd/pkg/record"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/storage"
)

func readTransactionNode(tx *storage.Tx, bucket storage.Bucket, key record.UUID) (*record.TransactionNode, error) {
	val, err := tx.Get(bucket, key[:])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, statuscode.Wrap(statuscode.GetFailure, err)
	}
	node := &record.TransactionNode{}
	if uerr := node.UnmarshalBinary(val); uerr != nil {
		return nil, statuscode.Wrap(statuscode.InvalidStoredTransactionNode, uerr)
	}
	return node, nil
}

func writeTransactionNode(tx *storage.Tx, bucket storage.Bucket, node *record.TransactionNode, noOverwrite bool) error {
	data, err := node.MarshalBinary()
	if err != nil {
		return err
	}
	if perr := tx.Put(bucket, node.Key[:], data, noOverwrite); perr != nil {
		return statuscode.Wrap(statuscode.PutFailure, perr)
	}
	return nil
}

func isSentinel(id record.UUID) bool {
	return id == record.ZeroUUID || id == record.FFUUID
}

// TxnGetFirst implements pq_txn_first_read as a two-phase read: the
// start sentinel is read (and its transaction aborted) to locate the
// oldest entry's key, then that entry is read under a second
// transaction. A single transaction would observe the same result
// since the service is single-writer.
func TxnGetFirst(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.PQTxnFirstRead) {
		return statuscode.NotAuthorized, nil, nil
	}

	store := child.Root().Store()

	var firstKey record.UUID
	status := statuscode.Success
	err := withTx(store, nil, false, func(tx *storage.Tx) error {
		start, gerr := readTransactionNode(tx, storage.BucketPQ, record.ZeroUUID)
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return gerr
		}
		firstKey = start.Next
		if firstKey == record.FFUUID {
			// Drained queue: the start sentinel points straight at the
			// end sentinel.
			status = statuscode.NotFound
		}
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	if status != statuscode.Success {
		return status, nil, nil
	}

	var reply []byte
	err = withTx(store, nil, false, func(tx *storage.Tx) error {
		node, gerr := readTransactionNode(tx, storage.BucketPQ, firstKey)
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return gerr
		}
		data, merr := node.MarshalBinary()
		if merr != nil {
			return merr
		}
		reply = data
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	return status, reply, nil
}

// TxnGet implements pq_txn_read. payload is {16-byte txn_id}.
func TxnGet(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.PQTxnRead) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < 16 {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	var id record.UUID
	copy(id[:], payload[:16])

	var reply []byte
	status := statuscode.Success
	err := withTx(child.Root().Store(), nil, false, func(tx *storage.Tx) error {
		node, gerr := readTransactionNode(tx, storage.BucketPQ, id)
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return gerr
		}
		data, merr := node.MarshalBinary()
		if merr != nil {
			return merr
		}
		reply = data
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	return status, reply, nil
}

// CanonizedTxnGet implements txn_get (not to be confused with pq's
// txn_get/pq_txn_read): it reads a canonized transaction out of the txn
// bucket rather than the process queue. payload is {16-byte txn_id}.
func CanonizedTxnGet(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.TxnRead) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < 16 {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	var id record.UUID
	copy(id[:], payload[:16])

	var reply []byte
	status := statuscode.Success
	err := withTx(child.Root().Store(), nil, false, func(tx *storage.Tx) error {
		node, gerr := readTransactionNode(tx, storage.BucketTxn, id)
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return gerr
		}
		data, merr := node.MarshalBinary()
		if merr != nil {
			return merr
		}
		reply = data
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	return status, reply, nil
}

// DropPQEntry removes a transaction from the process queue and patches
// its neighbors' prev/next, bypassing any capability check. It is
// exported so pkg/canon can reuse it while folding a block's child
// transactions. Both neighbors always exist as records -- an interior
// node's prev/next is either another interior node or a sentinel.
func DropPQEntry(tx *storage.Tx, txnID record.UUID) error {
	node, err := readTransactionNode(tx, storage.BucketPQ, txnID)
	if err != nil {
		return err
	}

	prev, perr := readTransactionNode(tx, storage.BucketPQ, node.Prev)
	if perr != nil {
		return perr
	}
	prev.Next = node.Next
	if werr := writeTransactionNode(tx, storage.BucketPQ, prev, false); werr != nil {
		return werr
	}

	next, nerr := readTransactionNode(tx, storage.BucketPQ, node.Next)
	if nerr != nil {
		return nerr
	}
	next.Prev = node.Prev
	if werr := writeTransactionNode(tx, storage.BucketPQ, next, false); werr != nil {
		return werr
	}

	if derr := tx.Del(storage.BucketPQ, txnID[:]); derr != nil {
		return statuscode.Wrap(statuscode.DelFailure, derr)
	}
	return nil
}

// TxnDrop implements pq_txn_drop. Sentinels may never be dropped.
func TxnDrop(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.PQTxnDrop) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < 16 {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	var id record.UUID
	copy(id[:], payload[:16])
	if isSentinel(id) {
		return statuscode.NotFound, nil, nil
	}

	status := statuscode.Success
	err := withTx(child.Root().Store(), nil, true, func(tx *storage.Tx) error {
		derr := DropPQEntry(tx, id)
		if errors.Is(derr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		return derr
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	if status == statuscode.Success {
		metrics.TxnDroppedTotal.Inc()
		metrics.PQDepth.Dec()
	}
	return status, nil, nil
}

// TxnPromote implements pq_txn_promote: sets state to attested.
func TxnPromote(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.PQTxnPromote) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < 16 {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	var id record.UUID
	copy(id[:], payload[:16])
	if isSentinel(id) {
		return statuscode.NotFound, nil, nil
	}

	status := statuscode.Success
	err := withTx(child.Root().Store(), nil, true, func(tx *storage.Tx) error {
		node, gerr := readTransactionNode(tx, storage.BucketPQ, id)
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return gerr
		}
		node.State = record.TxnAttested
		return writeTransactionNode(tx, storage.BucketPQ, node, false)
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	return status, nil, nil
}

// txnSubmitHeaderSize is sizeof(txn_id) + sizeof(artifact_id).
const txnSubmitHeaderSize = 16 + 16

// TxnSubmit implements pq_txn_submit. payload is
// {16-byte txn_id, 16-byte artifact_id, cert bytes...}. It appends to
// the pq tail with state=submitted, creating both sentinels if the
// queue was empty.
func TxnSubmit(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.PQTxnSubmit) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < txnSubmitHeaderSize {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	var txnID, artifactID record.UUID
	copy(txnID[:], payload[0:16])
	copy(artifactID[:], payload[16:32])
	certData := payload[32:]

	err := withTx(child.Root().Store(), nil, true, func(tx *storage.Tx) error {
		return submitPQEntry(tx, txnID, artifactID, certData)
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	metrics.TxnSubmittedTotal.Inc()
	metrics.PQDepth.Inc()
	return statuscode.Success, nil, nil
}

func submitPQEntry(tx *storage.Tx, txnID, artifactID record.UUID, cert []byte) error {
	newNode := &record.TransactionNode{
		Key:        txnID,
		ArtifactID: artifactID,
		State:      record.TxnSubmitted,
		Cert:       cert,
	}

	end, err := readTransactionNode(tx, storage.BucketPQ, record.FFUUID)
	if errors.Is(err, storage.ErrNotFound) {
		// Empty queue: create both sentinels around the new node.
		newNode.Prev = record.ZeroUUID
		newNode.Next = record.FFUUID
		if werr := writeTransactionNode(tx, storage.BucketPQ, newNode, true); werr != nil {
			return werr
		}

		start := &record.TransactionNode{Key: record.ZeroUUID, Next: txnID}
		if werr := writeTransactionNode(tx, storage.BucketPQ, start, false); werr != nil {
			return werr
		}
		endNode := &record.TransactionNode{Key: record.FFUUID, Prev: txnID}
		return writeTransactionNode(tx, storage.BucketPQ, endNode, false)
	}
	if err != nil {
		return err
	}

	oldTailID := end.Prev
	oldTail, terr := readTransactionNode(tx, storage.BucketPQ, oldTailID)
	if terr != nil {
		return terr
	}
	oldTail.Next = txnID
	if werr := writeTransactionNode(tx, storage.BucketPQ, oldTail, false); werr != nil {
		return werr
	}

	newNode.Prev = oldTailID
	newNode.Next = record.FFUUID
	if werr := writeTransactionNode(tx, storage.BucketPQ, newNode, true); werr != nil {
		return werr
	}

	end.Prev = txnID
	return writeTransactionNode(tx, storage.BucketPQ, end, false)
}
