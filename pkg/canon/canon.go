package canon

import (
	"errors"
	"fmt"

	"github.com/cuemby/ledgerd/pkg/capability"
	"github.com/cuemby/ledgerd/pkg/cert"
	"github.com/cuemby/ledgerd/pkg/context"
	"github.com/cuemby/ledgerd/pkg/handler"
	"github.com/cuemby/ledgerd/pkg/metrics"
	"github.com/cuemby/ledgerd/pkg/record"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/storage"
)

// Canonizer runs block_make against a configured certificate parser.
// The parser is an interface so the real crypto-suite parser can be
// wired in without touching this package.
type Canonizer struct {
	Parser cert.Parser
}

// New builds a Canonizer using the given parser.
func New(parser cert.Parser) *Canonizer {
	return &Canonizer{Parser: parser}
}

// blockMakePayloadHeaderSize is sizeof(block_id).
const blockMakePayloadHeaderSize = 16

// Make implements block_make. payload is {16-byte block_id, raw block
// certificate bytes...}. Preconditions are checked in a fixed order;
// the first failure aborts the whole storage transaction and leaves the
// database unchanged.
func (c *Canonizer) Make(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	timer := metrics.NewTimer()
	status, reply, err := c.make(child, payload)
	if status == statuscode.Success && err == nil {
		timer.ObserveDuration(metrics.BlockMakeDuration)
		metrics.BlocksCanonizedTotal.Inc()
	} else {
		metrics.BlockMakeFailuresTotal.WithLabelValues(fmt.Sprintf("%d", status)).Inc()
	}
	return status, reply, err
}

func (c *Canonizer) make(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	// 1. Caller holds block_write.
	if !child.Caps().IsSet(capability.BlockWrite) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < blockMakePayloadHeaderSize {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	var blockID record.UUID
	copy(blockID[:], payload[:16])
	rawCert := payload[16:]

	// 2. Parse the block certificate.
	fields, perr := c.Parser.ParseBlock(rawCert)
	if perr != nil {
		return statuscode.ParserInitFailure, nil, nil
	}

	tx, err := child.Root().Store().Begin(nil, true)
	if err != nil {
		return statuscode.TxnBeginFailure, nil, nil
	}

	status, mkErr := makeInTx(tx, c.Parser, blockID, rawCert, fields)
	if mkErr != nil {
		tx.Abort()
		return statuscode.From(mkErr), nil, nil
	}
	if status != statuscode.Success {
		tx.Abort()
		return status, nil, nil
	}
	if cerr := tx.Commit(); cerr != nil {
		return statuscode.TxnCommitFailure, nil, nil
	}

	metrics.ChainHeight.Set(float64(*fields.BlockHeight))
	metrics.PQDepth.Sub(float64(len(fields.WrappedTransactions)))
	return statuscode.Success, nil, nil
}

func makeInTx(tx *storage.Tx, parser cert.Parser, blockID record.UUID, rawCert []byte, fields cert.BlockFields) (statuscode.Code, error) {
	// 3. Locate the end sentinel.
	end, endErr := readBlockNode(tx, record.FFUUID)
	chainEmpty := errors.Is(endErr, storage.ErrNotFound)
	if endErr != nil && !chainEmpty {
		return 0, endErr
	}

	// 4. Height constraint.
	var expectedHeight uint64 = 1
	if !chainEmpty {
		expectedHeight = end.BlockHeight + 1
	}
	if fields.BlockHeight == nil {
		return statuscode.MissingBlockHeight, nil
	}
	if *fields.BlockHeight != expectedHeight {
		return statuscode.InvalidBlockHeight, nil
	}

	// 5. Previous-block constraint.
	expectedPrev := record.RootBlockUUID
	if !chainEmpty {
		expectedPrev = end.Prev
	}
	if fields.PreviousBlockUUID == nil {
		return statuscode.MissingPreviousBlockUUID, nil
	}
	if record.UUID(*fields.PreviousBlockUUID) != expectedPrev {
		return statuscode.InvalidPreviousBlockUUID, nil
	}

	// 6. Block-UUID sanity.
	if fields.BlockUUID == nil {
		return statuscode.MissingBlockUUID, nil
	}
	certBlockID := record.UUID(*fields.BlockUUID)
	if certBlockID != blockID {
		return statuscode.InvalidBlockUUID, nil
	}
	if certBlockID == record.RootBlockUUID || certBlockID == record.ZeroUUID || certBlockID == record.FFUUID {
		return statuscode.InvalidBlockUUID, nil
	}

	// 7. Child transactions.
	if len(fields.WrappedTransactions) == 0 {
		return statuscode.NoChildTransactions, nil
	}
	firstTxnFields, ferr := parser.ParseTransaction(fields.WrappedTransactions[0])
	if ferr != nil {
		return statuscode.MissingChildTransactionUUID, nil
	}
	if firstTxnFields.TransactionID == nil {
		return statuscode.MissingChildTransactionUUID, nil
	}
	firstTransactionID := record.UUID(*firstTxnFields.TransactionID)

	// a. Insert the new block node and its height index entry.
	newBlock := &record.BlockNode{
		Key:                blockID,
		Prev:               expectedPrev,
		Next:               record.FFUUID,
		FirstTransactionID: firstTransactionID,
		BlockHeight:        expectedHeight,
		Cert:               rawCert,
	}
	if werr := writeBlockNode(tx, newBlock, true); werr != nil {
		return 0, werr
	}
	heightVal := make([]byte, 16)
	copy(heightVal, blockID[:])
	if perr := tx.Put(storage.BucketHeight, record.HeightKey(expectedHeight), heightVal, true); perr != nil {
		return 0, statuscode.Wrap(statuscode.PutFailure, perr)
	}

	// b. Sentinel/tail linkage.
	if chainEmpty {
		start := &record.BlockNode{Key: record.ZeroUUID, Next: blockID}
		if werr := writeBlockNode(tx, start, false); werr != nil {
			return 0, werr
		}
		newEnd := &record.BlockNode{Key: record.FFUUID, Prev: blockID, BlockHeight: expectedHeight}
		if werr := writeBlockNode(tx, newEnd, false); werr != nil {
			return 0, werr
		}
	} else {
		prevTail, perr := readBlockNode(tx, expectedPrev)
		if perr != nil {
			return 0, perr
		}
		prevTail.Next = blockID
		if werr := writeBlockNode(tx, prevTail, false); werr != nil {
			return 0, werr
		}
		end.Prev = blockID
		end.BlockHeight = expectedHeight
		if werr := writeBlockNode(tx, end, false); werr != nil {
			return 0, werr
		}
	}

	// c. Fold each wrapped child transaction.
	for i, wrapped := range fields.WrappedTransactions {
		txnFields := firstTxnFields
		if i > 0 {
			var terr error
			txnFields, terr = parser.ParseTransaction(wrapped)
			if terr != nil {
				return statuscode.MissingChildTransactionUUID, nil
			}
		}
		status, cerr := foldChildTransaction(tx, blockID, expectedHeight, txnFields)
		if cerr != nil {
			return 0, cerr
		}
		if status != statuscode.Success {
			return status, nil
		}
	}

	return statuscode.Success, nil
}

func foldChildTransaction(tx *storage.Tx, blockID record.UUID, blockHeight uint64, fields cert.TxnFields) (statuscode.Code, error) {
	if fields.TransactionID == nil {
		return statuscode.MissingChildTransactionUUID, nil
	}
	if fields.PreviousTransactionID == nil {
		return statuscode.MissingChildPreviousTransactionUUID, nil
	}
	if fields.ArtifactID == nil {
		return statuscode.MissingChildArtifactUUID, nil
	}
	if fields.NewState == nil {
		return statuscode.MissingChildState, nil
	}

	txnID := record.UUID(*fields.TransactionID)
	prevTxnID := record.UUID(*fields.PreviousTransactionID)
	artifactID := record.UUID(*fields.ArtifactID)
	newState := *fields.NewState

	node := &record.TransactionNode{
		Key:        txnID,
		Prev:       prevTxnID,
		Next:       record.ZeroUUID,
		ArtifactID: artifactID,
		BlockID:    blockID,
		State:      record.TxnCanonized,
	}
	if werr := writeTxnNode(tx, storage.BucketTxn, node, true); werr != nil {
		return 0, werr
	}

	if derr := handler.DropPQEntry(tx, txnID); derr != nil && !errors.Is(derr, storage.ErrNotFound) {
		return 0, derr
	}

	if prevTxnID != record.ZeroUUID {
		predecessor, gerr := readTxnNode(tx, storage.BucketTxn, prevTxnID)
		if gerr != nil {
			return 0, gerr
		}
		predecessor.Next = txnID
		if werr := writeTxnNode(tx, storage.BucketTxn, predecessor, false); werr != nil {
			return 0, werr
		}
	}

	if status, aerr := upsertArtifactRecord(tx, artifactID, txnID, blockHeight, newState); aerr != nil || status != statuscode.Success {
		return status, aerr
	}

	return statuscode.Success, nil
}

func upsertArtifactRecord(tx *storage.Tx, artifactID, txnID record.UUID, blockHeight uint64, newState uint32) (statuscode.Code, error) {
	val, err := tx.Get(storage.BucketArtifact, artifactID[:])
	if errors.Is(err, storage.ErrNotFound) {
		rec := &record.ArtifactRecord{
			Key:          artifactID,
			TxnFirst:     txnID,
			TxnLatest:    txnID,
			HeightFirst:  blockHeight,
			HeightLatest: blockHeight,
			StateLatest:  newState,
		}
		data, merr := rec.MarshalBinary()
		if merr != nil {
			return 0, merr
		}
		if perr := tx.Put(storage.BucketArtifact, artifactID[:], data, false); perr != nil {
			return 0, statuscode.Wrap(statuscode.PutFailure, perr)
		}
		return statuscode.Success, nil
	}
	if err != nil {
		return 0, statuscode.Wrap(statuscode.GetFailure, err)
	}

	rec := &record.ArtifactRecord{}
	if uerr := rec.UnmarshalBinary(val); uerr != nil {
		return statuscode.InvalidArtifactNodeSize, nil
	}
	rec.TxnLatest = txnID
	rec.HeightLatest = blockHeight
	rec.StateLatest = newState
	data, merr := rec.MarshalBinary()
	if merr != nil {
		return 0, merr
	}
	if perr := tx.Put(storage.BucketArtifact, artifactID[:], data, false); perr != nil {
		return 0, statuscode.Wrap(statuscode.PutFailure, perr)
	}
	return statuscode.Success, nil
}

func readBlockNode(tx *storage.Tx, key record.UUID) (*record.BlockNode, error) {
	val, err := tx.Get(storage.BucketBlock, key[:])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, statuscode.Wrap(statuscode.GetFailure, err)
	}
	node := &record.BlockNode{}
	if uerr := node.UnmarshalBinary(val); uerr != nil {
		return nil, statuscode.Wrap(statuscode.InvalidStoredBlockNode, uerr)
	}
	return node, nil
}

func writeBlockNode(tx *storage.Tx, node *record.BlockNode, noOverwrite bool) error {
	data, err := node.MarshalBinary()
	if err != nil {
		return err
	}
	if perr := tx.Put(storage.BucketBlock, node.Key[:], data, noOverwrite); perr != nil {
		return statuscode.Wrap(statuscode.PutFailure, perr)
	}
	return nil
}

func readTxnNode(tx *storage.Tx, bucket storage.Bucket, key record.UUID) (*record.TransactionNode, error) {
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

func writeTxnNode(tx *storage.Tx, bucket storage.Bucket, node *record.TransactionNode, noOverwrite bool) error {
	data, err := node.MarshalBinary()
	if err != nil {
		return err
	}
	if perr := tx.Put(bucket, node.Key[:], data, noOverwrite); perr != nil {
		return statuscode.Wrap(statuscode.PutFailure, perr)
	}
	return nil
}
