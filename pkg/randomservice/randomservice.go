package randomservice

import (
	"encoding/binary"
	"io"

	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/wire"
)

const (
	minSize = 1
	maxSize = 1024

	requestPayloadSize = 4 + 4 // {u32 offset, u32 size}
)

// Service answers get_random_bytes requests by reading from Source.
// Production wiring points Source at /dev/urandom; tests use an
// in-memory deterministic reader.
type Service struct {
	Source io.ReaderAt
}

// New returns a Service reading from source.
func New(source io.ReaderAt) *Service {
	return &Service{Source: source}
}

// Dispatch implements the single-method handler shape pkg/eventloop
// drives a connection with. It has the same signature as
// eventloop.Handler without importing that package, keeping this
// package's dependency surface to pkg/wire and pkg/statuscode alone.
func (s *Service) Dispatch(method wire.Method, payload []byte) (statuscode.Code, uint32, []byte) {
	if method != wire.MethodGetRandomBytes {
		return statuscode.RequestPacketBad, 0, nil
	}
	return s.getRandomBytes(payload)
}

func (s *Service) getRandomBytes(payload []byte) (statuscode.Code, uint32, []byte) {
	if len(payload) < requestPayloadSize {
		return statuscode.RequestPacketInvalidSize, 0, nil
	}
	offset := binary.BigEndian.Uint32(payload[0:4])
	size := binary.BigEndian.Uint32(payload[4:8])

	if size < minSize || size > maxSize {
		return statuscode.InvalidSize, 0, nil
	}

	buf := make([]byte, size)
	n, err := s.Source.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return statuscode.ReadFailed, 0, nil
	}
	if uint32(n) != size {
		return statuscode.ReadFailed, 0, nil
	}

	return statuscode.Success, 0, buf
}
