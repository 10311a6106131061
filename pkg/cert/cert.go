package cert

import (
	"encoding/binary"
	"fmt"
)

// FieldID identifies one field in the tag-length-value certificate
// encoding used by Builder and Parser.
type FieldID uint16

const (
	FieldBlockHeight FieldID = iota + 1
	FieldPreviousBlockUUID
	FieldBlockUUID
	FieldWrappedTransaction // repeated

	FieldTransactionID
	FieldPreviousTransactionID
	FieldArtifactID
	FieldNewState
)

// BlockFields is the set of fields pkg/canon reads from a candidate
// block certificate.
type BlockFields struct {
	BlockHeight        *uint64
	PreviousBlockUUID  *[16]byte
	BlockUUID          *[16]byte
	WrappedTransactions [][]byte
}

// TxnFields is the set of fields pkg/canon reads from one wrapped
// transaction certificate inside a block.
type TxnFields struct {
	TransactionID         *[16]byte
	PreviousTransactionID *[16]byte
	ArtifactID            *[16]byte
	NewState              *uint32
}

// Parser parses raw certificate bytes into typed fields. The production
// binary would wire this to the real crypto suite/certificate parser;
// this package's DefaultParser is a deterministic stand-in.
type Parser interface {
	ParseBlock(raw []byte) (BlockFields, error)
	ParseTransaction(raw []byte) (TxnFields, error)
}

// DefaultParser decodes the tag-length-value format produced by Builder.
type DefaultParser struct{}

func decodeFields(raw []byte) (map[FieldID][]byte, error) {
	fields := make(map[FieldID][]byte)
	off := 0
	for off < len(raw) {
		if off+4 > len(raw) {
			return nil, fmt.Errorf("cert: truncated field header at offset %d", off)
		}
		id := FieldID(binary.BigEndian.Uint16(raw[off:]))
		length := int(binary.BigEndian.Uint16(raw[off+2:]))
		off += 4
		if off+length > len(raw) {
			return nil, fmt.Errorf("cert: truncated field value at offset %d", off)
		}
		val := raw[off : off+length]
		off += length

		if id == FieldWrappedTransaction {
			// Repeated field: accumulate by packing length-prefixed
			// chunks behind a synthetic slot per occurrence index isn't
			// needed here; callers use decodeWrapped for this field.
			fields[id] = append(fields[id], packChunk(val)...)
			continue
		}
		fields[id] = val
	}
	return fields, nil
}

func packChunk(val []byte) []byte {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(val)))
	return append(hdr, val...)
}

func decodeWrapped(packed []byte) [][]byte {
	var out [][]byte
	off := 0
	for off < len(packed) {
		l := int(binary.BigEndian.Uint32(packed[off:]))
		off += 4
		out = append(out, packed[off:off+l])
		off += l
	}
	return out
}

func uuidField(fields map[FieldID][]byte, id FieldID) (*[16]byte, error) {
	v, ok := fields[id]
	if !ok {
		return nil, nil
	}
	if len(v) != 16 {
		return nil, fmt.Errorf("cert: field %d has wrong length %d, want 16", id, len(v))
	}
	var u [16]byte
	copy(u[:], v)
	return &u, nil
}

// ParseBlock implements Parser.
func (DefaultParser) ParseBlock(raw []byte) (BlockFields, error) {
	fields, err := decodeFields(raw)
	if err != nil {
		return BlockFields{}, err
	}

	var out BlockFields
	if v, ok := fields[FieldBlockHeight]; ok {
		if len(v) != 8 {
			return BlockFields{}, fmt.Errorf("cert: block height field has wrong length %d", len(v))
		}
		h := binary.BigEndian.Uint64(v)
		out.BlockHeight = &h
	}
	if out.PreviousBlockUUID, err = uuidField(fields, FieldPreviousBlockUUID); err != nil {
		return BlockFields{}, err
	}
	if out.BlockUUID, err = uuidField(fields, FieldBlockUUID); err != nil {
		return BlockFields{}, err
	}
	if packed, ok := fields[FieldWrappedTransaction]; ok {
		out.WrappedTransactions = decodeWrapped(packed)
	}
	return out, nil
}

// ParseTransaction implements Parser.
func (DefaultParser) ParseTransaction(raw []byte) (TxnFields, error) {
	fields, err := decodeFields(raw)
	if err != nil {
		return TxnFields{}, err
	}

	var out TxnFields
	if out.TransactionID, err = uuidField(fields, FieldTransactionID); err != nil {
		return TxnFields{}, err
	}
	if out.PreviousTransactionID, err = uuidField(fields, FieldPreviousTransactionID); err != nil {
		return TxnFields{}, err
	}
	if out.ArtifactID, err = uuidField(fields, FieldArtifactID); err != nil {
		return TxnFields{}, err
	}
	if v, ok := fields[FieldNewState]; ok {
		if len(v) != 4 {
			return TxnFields{}, fmt.Errorf("cert: new state field has wrong length %d", len(v))
		}
		s := binary.BigEndian.Uint32(v)
		out.NewState = &s
	}
	return out, nil
}
