package eventloop

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/wire"
)

func TestServeConnRoundTrip(t *testing.T) {
	client, server := net.Pipe()

	calls := 0
	closed := false
	handle := func(method wire.Method, payload []byte) (statuscode.Code, uint32, []byte) {
		calls++
		if method != wire.MethodGlobalSettingRead {
			t.Errorf("method = %v, want %v", method, wire.MethodGlobalSettingRead)
		}
		return statuscode.Success, 7, []byte("ok")
	}
	loop := NewWithHandler(nil, func() (Handler, func()) {
		return handle, func() { closed = true }
	})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		loop.ServeConn(server, stop)
		close(done)
	}()

	frame := make([]byte, 4+4+2)
	binary.BigEndian.PutUint32(frame[0:], 4+2)
	binary.BigEndian.PutUint32(frame[4:], uint32(wire.MethodGlobalSettingRead))
	copy(frame[8:], "hi")

	writeErr := make(chan error, 1)
	go func() { _, err := client.Write(frame); writeErr <- err }()
	if err := <-writeErr; err != nil {
		t.Fatalf("write request: %v", err)
	}

	respSize := make([]byte, 4)
	if _, err := readFull(client, respSize); err != nil {
		t.Fatalf("read response size: %v", err)
	}
	size := binary.BigEndian.Uint32(respSize)
	body := make([]byte, size)
	if _, err := readFull(client, body); err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if respMethod := binary.BigEndian.Uint32(body[0:]); respMethod != uint32(wire.MethodGlobalSettingRead) {
		t.Errorf("response method = %d, want %d", respMethod, wire.MethodGlobalSettingRead)
	}
	if offset := binary.BigEndian.Uint32(body[4:]); offset != 7 {
		t.Errorf("response offset = %d, want 7", offset)
	}
	if status := binary.BigEndian.Uint32(body[8:]); status != uint32(statuscode.Success) {
		t.Errorf("response status = %d, want success", status)
	}
	if string(body[12:]) != "ok" {
		t.Errorf("response payload = %q, want %q", body[12:], "ok")
	}

	close(stop)
	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return after stop")
	}

	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if !closed {
		t.Fatal("expected per-connection closer to run")
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
