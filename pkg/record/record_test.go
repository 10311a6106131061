package record

import (
	"bytes"
	"testing"
)

func uuidFrom(b byte) UUID {
	var u UUID
	for i := range u {
		u[i] = b
	}
	return u
}

func TestBlockNodeRoundTrip(t *testing.T) {
	want := &BlockNode{
		Key:                uuidFrom(0x01),
		Prev:               uuidFrom(0x02),
		Next:               FFUUID,
		FirstTransactionID: uuidFrom(0x03),
		BlockHeight:        42,
		Cert:               []byte("pretend-certificate-bytes"),
	}
	data, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	got := &BlockNode{}
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if got.Key != want.Key || got.Prev != want.Prev || got.Next != want.Next ||
		got.FirstTransactionID != want.FirstTransactionID || got.BlockHeight != want.BlockHeight ||
		!bytes.Equal(got.Cert, want.Cert) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestBlockNodeUnmarshalSizeMismatch(t *testing.T) {
	n := &BlockNode{Key: uuidFrom(1), Cert: []byte("abc")}
	data, _ := n.MarshalBinary()
	// Truncate to corrupt the declared cert size.
	if err := n.UnmarshalBinary(data[:len(data)-1]); err == nil {
		t.Fatal("expected error on truncated block node")
	}
}

func TestTransactionNodeRoundTrip(t *testing.T) {
	want := &TransactionNode{
		Key:        uuidFrom(0x10),
		Prev:       ZeroUUID,
		Next:       uuidFrom(0x11),
		ArtifactID: uuidFrom(0x12),
		BlockID:    uuidFrom(0x13),
		State:      TxnCanonized,
		Cert:       []byte("txn-cert"),
	}
	data, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	got := &TransactionNode{}
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.Key != want.Key || got.State != want.State || !bytes.Equal(got.Cert, want.Cert) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestArtifactRecordRoundTrip(t *testing.T) {
	want := &ArtifactRecord{
		Key:          uuidFrom(0x20),
		TxnFirst:     uuidFrom(0x21),
		TxnLatest:    uuidFrom(0x22),
		HeightFirst:  1,
		HeightLatest: 9,
		StateLatest:  uint32(TxnCanonized),
	}
	data, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(data) != ArtifactRecordSize {
		t.Fatalf("MarshalBinary size = %d, want %d", len(data), ArtifactRecordSize)
	}

	got := &ArtifactRecord{}
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestArtifactRecordWrongSize(t *testing.T) {
	var a ArtifactRecord
	if err := a.UnmarshalBinary(make([]byte, ArtifactRecordSize-1)); err == nil {
		t.Fatal("expected error for undersized artifact record")
	}
	if err := a.UnmarshalBinary(make([]byte, ArtifactRecordSize+1)); err == nil {
		t.Fatal("expected error for oversized artifact record")
	}
}
