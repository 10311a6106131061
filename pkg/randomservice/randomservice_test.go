package randomservice

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/wire"
)

func requestPayload(offset, size uint32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:], offset)
	binary.BigEndian.PutUint32(buf[4:], size)
	return buf
}

func TestDispatchReadsFromSource(t *testing.T) {
	source := bytes.NewReader([]byte("0123456789abcdef"))
	svc := New(source)

	status, _, payload := svc.Dispatch(wire.MethodGetRandomBytes, requestPayload(4, 6))
	if status != statuscode.Success {
		t.Fatalf("status = %v, want Success", status)
	}
	if string(payload) != "456789" {
		t.Errorf("payload = %q, want %q", payload, "456789")
	}
}

func TestDispatchRejectsZeroSize(t *testing.T) {
	svc := New(bytes.NewReader(make([]byte, 32)))
	status, _, _ := svc.Dispatch(wire.MethodGetRandomBytes, requestPayload(0, 0))
	if status != statuscode.InvalidSize {
		t.Fatalf("status = %v, want InvalidSize", status)
	}
}

func TestDispatchRejectsOversizedRequest(t *testing.T) {
	svc := New(bytes.NewReader(make([]byte, 4096)))
	status, _, _ := svc.Dispatch(wire.MethodGetRandomBytes, requestPayload(0, 1025))
	if status != statuscode.InvalidSize {
		t.Fatalf("status = %v, want InvalidSize", status)
	}
}

func TestDispatchShortReadFails(t *testing.T) {
	source := bytes.NewReader([]byte("short"))
	svc := New(source)
	status, _, _ := svc.Dispatch(wire.MethodGetRandomBytes, requestPayload(0, 100))
	if status != statuscode.ReadFailed {
		t.Fatalf("status = %v, want ReadFailed", status)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	svc := New(bytes.NewReader(make([]byte, 32)))
	status, _, _ := svc.Dispatch(wire.MethodBlockRead, requestPayload(0, 8))
	if status != statuscode.RequestPacketBad {
		t.Fatalf("status = %v, want RequestPacketBad", status)
	}
}

func TestDispatchShortPayload(t *testing.T) {
	svc := New(bytes.NewReader(make([]byte, 32)))
	status, _, _ := svc.Dispatch(wire.MethodGetRandomBytes, []byte{1, 2, 3})
	if status != statuscode.RequestPacketInvalidSize {
		t.Fatalf("status = %v, want RequestPacketInvalidSize", status)
	}
}
