package handler_test

import (
	"encoding/binary"
	"testing"

	"github.com/cuemby/ledgerd/pkg/canon"
	"github.com/cuemby/ledgerd/pkg/capability"
	"github.com/cuemby/ledgerd/pkg/cert"
	"github.com/cuemby/ledgerd/pkg/context"
	"github.com/cuemby/ledgerd/pkg/handler"
	"github.com/cuemby/ledgerd/pkg/record"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/stretchr/testify/require"
)

func newTestChild(t *testing.T) *context.ChildContext {
	t.Helper()
	rc, err := context.NewRootContext(capability.InitTrue(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	child, _, err := rc.CreateChild(capability.InitTrue())
	require.NoError(t, err)
	return child
}

func submitPayload(txnID, artifactID record.UUID, cert []byte) []byte {
	buf := append(append([]byte{}, txnID[:]...), artifactID[:]...)
	return append(buf, cert...)
}

func submit(t *testing.T, child *context.ChildContext, txnID, artifactID record.UUID) {
	t.Helper()
	status, _, err := handler.TxnSubmit(child, submitPayload(txnID, artifactID, []byte("cert")))
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)
}

func pqNode(t *testing.T, child *context.ChildContext, id record.UUID) (*record.TransactionNode, statuscode.Code) {
	t.Helper()
	status, payload, err := handler.TxnGet(child, id[:])
	require.NoError(t, err)
	if status != statuscode.Success {
		return nil, status
	}
	node := &record.TransactionNode{}
	require.NoError(t, node.UnmarshalBinary(payload))
	return node, status
}

func TestSubmitDropOrdering(t *testing.T) {
	child := newTestChild(t)

	a := record.UUID{0x0a}
	b := record.UUID{0x0b}
	c := record.UUID{0x0c}
	artifact := record.UUID{0xaa}
	submit(t, child, a, artifact)
	submit(t, child, b, artifact)
	submit(t, child, c, artifact)

	status, payload, err := handler.TxnGetFirst(child, nil)
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)
	first := &record.TransactionNode{}
	require.NoError(t, first.UnmarshalBinary(payload))
	require.Equal(t, a, first.Key)
	require.Equal(t, record.ZeroUUID, first.Prev)
	require.Equal(t, b, first.Next)

	status, _, err = handler.TxnDrop(child, b[:])
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)

	_, status = pqNode(t, child, b)
	require.Equal(t, statuscode.NotFound, status)

	nodeA, status := pqNode(t, child, a)
	require.Equal(t, statuscode.Success, status)
	require.Equal(t, c, nodeA.Next)

	nodeC, status := pqNode(t, child, c)
	require.Equal(t, statuscode.Success, status)
	require.Equal(t, a, nodeC.Prev)
}

func TestGetFirstOnDrainedQueue(t *testing.T) {
	child := newTestChild(t)

	id := record.UUID{0x0a}
	submit(t, child, id, record.UUID{0xaa})

	// Dropping the only entry leaves just the two sentinels behind;
	// the queue must then read as empty, not as a sentinel entry.
	status, _, err := handler.TxnDrop(child, id[:])
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)

	status, payload, err := handler.TxnGetFirst(child, nil)
	require.NoError(t, err)
	require.Equal(t, statuscode.NotFound, status)
	require.Nil(t, payload)
}

func TestSubmitRequiresCapability(t *testing.T) {
	rc, err := context.NewRootContext(capability.InitTrue(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	mask := capability.InitTrue()
	mask.Clear(capability.PQTxnSubmit)
	restricted, _, err := rc.CreateChild(mask)
	require.NoError(t, err)

	status, _, err := handler.TxnSubmit(restricted, submitPayload(record.UUID{1}, record.UUID{2}, nil))
	require.NoError(t, err)
	require.Equal(t, statuscode.NotAuthorized, status)

	// The queue must be unchanged: still empty.
	reader, _, err := rc.CreateChild(capability.InitTrue())
	require.NoError(t, err)
	status, _, err = handler.TxnGetFirst(reader, nil)
	require.NoError(t, err)
	require.Equal(t, statuscode.NotFound, status)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	child := newTestChild(t)
	id := record.UUID{1}
	submit(t, child, id, record.UUID{2})

	status, _, err := handler.TxnSubmit(child, submitPayload(id, record.UUID{2}, nil))
	require.NoError(t, err)
	require.Equal(t, statuscode.PutFailure, status)
}

func TestDropAndPromoteRejectSentinels(t *testing.T) {
	child := newTestChild(t)
	submit(t, child, record.UUID{1}, record.UUID{2})

	for _, id := range []record.UUID{record.ZeroUUID, record.FFUUID} {
		status, _, err := handler.TxnDrop(child, id[:])
		require.NoError(t, err)
		require.Equal(t, statuscode.NotFound, status)

		status, _, err = handler.TxnPromote(child, id[:])
		require.NoError(t, err)
		require.Equal(t, statuscode.NotFound, status)
	}
}

func TestPromoteSetsAttested(t *testing.T) {
	child := newTestChild(t)
	id := record.UUID{1}
	submit(t, child, id, record.UUID{2})

	status, _, err := handler.TxnPromote(child, id[:])
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)

	node, status := pqNode(t, child, id)
	require.Equal(t, statuscode.Success, status)
	require.Equal(t, record.TxnAttested, node.State)
}

func TestGlobalSettingRoundTripAndTruncation(t *testing.T) {
	child := newTestChild(t)

	setPayload := append(record.GlobalKey(7), []byte("0123456789")...)
	status, _, err := handler.GlobalSettingSet(child, setPayload)
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)

	getPayload := func(maxSize uint32) []byte {
		buf := append([]byte{}, record.GlobalKey(7)...)
		size := make([]byte, 4)
		binary.BigEndian.PutUint32(size, maxSize)
		return append(buf, size...)
	}

	status, payload, err := handler.GlobalSettingGet(child, getPayload(64))
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)
	require.Equal(t, []byte("0123456789"), payload)

	status, payload, err = handler.GlobalSettingGet(child, getPayload(4))
	require.NoError(t, err)
	require.Equal(t, statuscode.WouldTruncate, status)
	require.Equal(t, uint32(10), binary.BigEndian.Uint32(payload))
}

func TestLatestBlockIDEmptyChain(t *testing.T) {
	child := newTestChild(t)
	status, _, err := handler.LatestBlockID(child, nil)
	require.NoError(t, err)
	require.Equal(t, statuscode.NotFound, status)
}

func TestCanonizationEndToEnd(t *testing.T) {
	child := newTestChild(t)

	txnID := record.UUID{0xb8, 0x4e, 0x5b, 0xe9}
	artifactID := record.UUID{0xf2, 0x66, 0xf1, 0x55}
	blockID := record.UUID{0x96, 0x1e, 0xdd, 0x16}

	submit(t, child, txnID, artifactID)
	status, _, err := handler.TxnPromote(child, txnID[:])
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)

	txnCert := cert.NewBuilder().
		TransactionID(txnID).
		PreviousTransactionID(record.ZeroUUID).
		ArtifactID(artifactID).
		NewState(3).
		Bytes()
	blockCert := cert.NewBuilder().
		BlockHeight(1).
		PreviousBlockUUID(record.RootBlockUUID).
		BlockUUID(blockID).
		WrapTransaction(txnCert).
		Bytes()

	canonizer := canon.New(cert.DefaultParser{})
	status, _, err = canonizer.Make(child, append(append([]byte{}, blockID[:]...), blockCert...))
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)

	status, payload, err := handler.LatestBlockID(child, nil)
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)
	require.Equal(t, blockID[:], payload)

	heightPayload := make([]byte, 8)
	binary.BigEndian.PutUint64(heightPayload, 1)
	status, payload, err = handler.BlockIDByHeight(child, heightPayload)
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)
	require.Equal(t, blockID[:], payload)

	status, payload, err = handler.ArtifactGet(child, artifactID[:])
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)
	rec := &record.ArtifactRecord{}
	require.NoError(t, rec.UnmarshalBinary(payload))
	require.Equal(t, txnID, rec.TxnFirst)
	require.Equal(t, txnID, rec.TxnLatest)
	require.Equal(t, uint64(1), rec.HeightFirst)
	require.Equal(t, uint64(1), rec.HeightLatest)
	require.Equal(t, uint32(3), rec.StateLatest)

	// Canonized: gone from the process queue, present in txn.
	status, _, err = handler.TxnGet(child, txnID[:])
	require.NoError(t, err)
	require.Equal(t, statuscode.NotFound, status)

	status, payload, err = handler.CanonizedTxnGet(child, txnID[:])
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)
	node := &record.TransactionNode{}
	require.NoError(t, node.UnmarshalBinary(payload))
	require.Equal(t, record.TxnCanonized, node.State)
	require.Equal(t, blockID, node.BlockID)
	require.Equal(t, artifactID, node.ArtifactID)

	status, payload, err = handler.BlockGet(child, blockID[:])
	require.NoError(t, err)
	require.Equal(t, statuscode.Success, status)
	block := &record.BlockNode{}
	require.NoError(t, block.UnmarshalBinary(payload))
	require.Equal(t, uint64(1), block.BlockHeight)
	require.Equal(t, txnID, block.FirstTransactionID)
	require.Equal(t, record.RootBlockUUID, block.Prev)
}
