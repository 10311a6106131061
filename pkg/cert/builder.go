package cert

import "encoding/binary"

// Builder constructs certificates in the tag-length-value format
// DefaultParser understands. It exists for tests that need deterministic
// fixture certificates, mirroring the role of the test helper
// certificate builders in the original project's test suite.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) addField(id FieldID, val []byte) *Builder {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint16(hdr, uint16(id))
	binary.BigEndian.PutUint16(hdr[2:], uint16(len(val)))
	b.buf = append(b.buf, hdr...)
	b.buf = append(b.buf, val...)
	return b
}

// BlockHeight sets the block height field.
func (b *Builder) BlockHeight(h uint64) *Builder {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, h)
	return b.addField(FieldBlockHeight, v)
}

// PreviousBlockUUID sets the previous-block-UUID field.
func (b *Builder) PreviousBlockUUID(u [16]byte) *Builder {
	return b.addField(FieldPreviousBlockUUID, u[:])
}

// BlockUUID sets the block-UUID field.
func (b *Builder) BlockUUID(u [16]byte) *Builder {
	return b.addField(FieldBlockUUID, u[:])
}

// WrapTransaction appends one child transaction certificate.
func (b *Builder) WrapTransaction(txnCert []byte) *Builder {
	return b.addField(FieldWrappedTransaction, txnCert)
}

// TransactionID sets the transaction-ID field.
func (b *Builder) TransactionID(u [16]byte) *Builder {
	return b.addField(FieldTransactionID, u[:])
}

// PreviousTransactionID sets the previous-transaction-ID field.
func (b *Builder) PreviousTransactionID(u [16]byte) *Builder {
	return b.addField(FieldPreviousTransactionID, u[:])
}

// ArtifactID sets the artifact-ID field.
func (b *Builder) ArtifactID(u [16]byte) *Builder {
	return b.addField(FieldArtifactID, u[:])
}

// NewState sets the new-artifact-state field.
func (b *Builder) NewState(s uint32) *Builder {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, s)
	return b.addField(FieldNewState, v)
}

// Bytes returns the encoded certificate.
func (b *Builder) Bytes() []byte { return b.buf }
