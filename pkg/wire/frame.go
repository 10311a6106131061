package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/ledgerd/pkg/statuscode"
)

// maxFrameSize bounds a single frame's payload to guard against a
// corrupt or hostile size prefix driving an unbounded allocation.
const maxFrameSize = 16 << 20

// Request is a decoded request frame.
type Request struct {
	Method  Method
	Payload []byte
}

// ReadRequest reads and decodes one request frame from r.
func ReadRequest(r io.Reader) (*Request, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size < 4 {
		return nil, statuscode.Wrap(statuscode.RequestPacketInvalidSize, fmt.Errorf("frame size %d smaller than method field", size))
	}
	if size > maxFrameSize {
		return nil, statuscode.Wrap(statuscode.RequestPacketInvalidSize, fmt.Errorf("frame size %d exceeds limit", size))
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	method := Method(binary.BigEndian.Uint32(body[:4]))
	return &Request{Method: method, Payload: body[4:]}, nil
}

// WriteResponse encodes and writes one response frame to w.
func WriteResponse(w io.Writer, method Method, offset uint32, status statuscode.Code, payload []byte) error {
	size := 4 + 4 + 4 + uint32(len(payload))
	buf := make([]byte, 4+size)
	binary.BigEndian.PutUint32(buf[0:], size)
	binary.BigEndian.PutUint32(buf[4:], uint32(method))
	binary.BigEndian.PutUint32(buf[8:], offset)
	binary.BigEndian.PutUint32(buf[12:], uint32(status))
	copy(buf[16:], payload)

	_, err := w.Write(buf)
	return err
}

// DecodeChildPrefix decodes the {u32 child_index, ...} prefix carried by
// every request payload that targets a child context, returning the
// index and the remaining handler-specific bytes.
func DecodeChildPrefix(payload []byte) (childIndex uint32, rest []byte, err error) {
	if len(payload) < 4 {
		return 0, nil, statuscode.Wrap(statuscode.ChildContextBadIndex, fmt.Errorf("payload too short for child index"))
	}
	childIndex = binary.BigEndian.Uint32(payload[:4])
	return childIndex, payload[4:], nil
}
