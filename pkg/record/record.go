package record

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// UUID is a 16-byte identifier used for block, transaction, and artifact
// keys throughout the store.
type UUID [16]byte

// NewUUID generates a fresh random identifier for a new block,
// transaction, or artifact.
func NewUUID() UUID {
	return UUID(uuid.New())
}

var (
	// ZeroUUID is the "start" sentinel key.
	ZeroUUID UUID
	// FFUUID is the "end" sentinel key.
	FFUUID = func() UUID {
		var u UUID
		for i := range u {
			u[i] = 0xFF
		}
		return u
	}()
)

// RootBlockUUID is the well-known previous-block UUID for the first
// block in an otherwise empty chain. It is also a reserved value that no
// real block UUID may equal.
var RootBlockUUID = UUID{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
}

// TxnState is the lifecycle state of a transaction.
type TxnState uint32

const (
	TxnSubmitted TxnState = iota
	TxnAttested
	TxnCanonized
)

// blockNodeHeaderSize is sizeof(key+prev+next+first_transaction_id) +
// sizeof(block_height) + sizeof(block_cert_size).
const blockNodeHeaderSize = 16*4 + 8 + 8

// BlockNode is the fixed header stored ahead of a block's raw certificate
// in the block bucket.
type BlockNode struct {
	Key               UUID
	Prev              UUID
	Next              UUID
	FirstTransactionID UUID
	BlockHeight       uint64
	Cert              []byte
}

// MarshalBinary encodes the node header followed by the raw certificate.
func (n *BlockNode) MarshalBinary() ([]byte, error) {
	buf := make([]byte, blockNodeHeaderSize+len(n.Cert))
	off := 0
	off += copy(buf[off:], n.Key[:])
	off += copy(buf[off:], n.Prev[:])
	off += copy(buf[off:], n.Next[:])
	off += copy(buf[off:], n.FirstTransactionID[:])
	binary.BigEndian.PutUint64(buf[off:], n.BlockHeight)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(len(n.Cert)))
	off += 8
	copy(buf[off:], n.Cert)
	return buf, nil
}

// UnmarshalBinary decodes a stored block node value. It reports
// statuscode-flavored corruption via a plain error; callers translate it
// to InvalidStoredBlockNode.
func (n *BlockNode) UnmarshalBinary(data []byte) error {
	if len(data) < blockNodeHeaderSize {
		return fmt.Errorf("record: block node value too short: %d bytes", len(data))
	}
	off := 0
	copy(n.Key[:], data[off:off+16])
	off += 16
	copy(n.Prev[:], data[off:off+16])
	off += 16
	copy(n.Next[:], data[off:off+16])
	off += 16
	copy(n.FirstTransactionID[:], data[off:off+16])
	off += 16
	n.BlockHeight = binary.BigEndian.Uint64(data[off:])
	off += 8
	certSize := binary.BigEndian.Uint64(data[off:])
	off += 8
	if uint64(len(data)-off) != certSize {
		return fmt.Errorf("record: block cert size mismatch: header says %d, have %d", certSize, len(data)-off)
	}
	n.Cert = append([]byte(nil), data[off:]...)
	return nil
}

// transactionNodeHeaderSize is sizeof(key+prev+next+artifact_id+block_id)
// + sizeof(txn_cert_size) + sizeof(txn_state).
const transactionNodeHeaderSize = 16*5 + 8 + 4

// TransactionNode is the fixed header stored ahead of a transaction's raw
// certificate in the txn or pq buckets.
type TransactionNode struct {
	Key        UUID
	Prev       UUID
	Next       UUID
	ArtifactID UUID
	BlockID    UUID
	State      TxnState
	Cert       []byte
}

func (n *TransactionNode) MarshalBinary() ([]byte, error) {
	buf := make([]byte, transactionNodeHeaderSize+len(n.Cert))
	off := 0
	off += copy(buf[off:], n.Key[:])
	off += copy(buf[off:], n.Prev[:])
	off += copy(buf[off:], n.Next[:])
	off += copy(buf[off:], n.ArtifactID[:])
	off += copy(buf[off:], n.BlockID[:])
	binary.BigEndian.PutUint64(buf[off:], uint64(len(n.Cert)))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(n.State))
	off += 4
	copy(buf[off:], n.Cert)
	return buf, nil
}

func (n *TransactionNode) UnmarshalBinary(data []byte) error {
	if len(data) < transactionNodeHeaderSize {
		return fmt.Errorf("record: transaction node value too short: %d bytes", len(data))
	}
	off := 0
	copy(n.Key[:], data[off:off+16])
	off += 16
	copy(n.Prev[:], data[off:off+16])
	off += 16
	copy(n.Next[:], data[off:off+16])
	off += 16
	copy(n.ArtifactID[:], data[off:off+16])
	off += 16
	copy(n.BlockID[:], data[off:off+16])
	off += 16
	certSize := binary.BigEndian.Uint64(data[off:])
	off += 8
	n.State = TxnState(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if uint64(len(data)-off) != certSize {
		return fmt.Errorf("record: txn cert size mismatch: header says %d, have %d", certSize, len(data)-off)
	}
	n.Cert = append([]byte(nil), data[off:]...)
	return nil
}

// ArtifactRecordSize is the fixed on-disk size of an ArtifactRecord. Any
// stored value of a different size is corruption (InvalidArtifactNodeSize).
const ArtifactRecordSize = 80

// ArtifactRecord summarizes an artifact's first/latest canonized
// transaction, first/latest block height, and latest state. It is
// fixed-size; the trailing bytes are reserved for layout alignment and
// always zero.
type ArtifactRecord struct {
	Key          UUID
	TxnFirst     UUID
	TxnLatest    UUID
	HeightFirst  uint64
	HeightLatest uint64
	StateLatest  uint32
}

func (a *ArtifactRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ArtifactRecordSize)
	off := 0
	off += copy(buf[off:], a.Key[:])
	off += copy(buf[off:], a.TxnFirst[:])
	off += copy(buf[off:], a.TxnLatest[:])
	binary.BigEndian.PutUint64(buf[off:], a.HeightFirst)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], a.HeightLatest)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], a.StateLatest)
	// remaining bytes stay zero (reserved)
	return buf, nil
}

func (a *ArtifactRecord) UnmarshalBinary(data []byte) error {
	if len(data) != ArtifactRecordSize {
		return fmt.Errorf("record: artifact record size mismatch: want %d, have %d", ArtifactRecordSize, len(data))
	}
	off := 0
	copy(a.Key[:], data[off:off+16])
	off += 16
	copy(a.TxnFirst[:], data[off:off+16])
	off += 16
	copy(a.TxnLatest[:], data[off:off+16])
	off += 16
	a.HeightFirst = binary.BigEndian.Uint64(data[off:])
	off += 8
	a.HeightLatest = binary.BigEndian.Uint64(data[off:])
	off += 8
	a.StateLatest = binary.BigEndian.Uint32(data[off:])
	return nil
}

// GlobalKey encodes a global-setting key as an 8-byte big-endian value.
func GlobalKey(key uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, key)
	return buf
}

// HeightKey encodes a block height as an 8-byte big-endian value.
func HeightKey(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return buf
}
