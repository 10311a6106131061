package dispatch

import (
	"encoding/binary"

	"github.com/cuemby/ledgerd/pkg/canon"
	"github.com/cuemby/ledgerd/pkg/capability"
	"github.com/cuemby/ledgerd/pkg/context"
	"github.com/cuemby/ledgerd/pkg/events"
	"github.com/cuemby/ledgerd/pkg/handler"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/wire"
)

// HandlerFunc is the shape shared by every child-targeted C2/C3 handler.
type HandlerFunc func(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error)

// Session holds the one root context a connection may create and
// dispatches every request frame it receives to the right handler. It is
// not safe for concurrent use; the event loop that owns a connection
// drives it from a single goroutine.
type Session struct {
	dataDir string
	canon   *canon.Canonizer
	root    *context.RootContext
	table   map[wire.Method]HandlerFunc

	// Events, if set, receives a lifecycle event after each successful
	// mutation dispatched through this session.
	Events *events.Broker
}

// NewSession builds a dispatch session for one connection. dataDir is
// the environment directory used when the client sends
// root_context_create; canonizer backs block_write.
func NewSession(dataDir string, canonizer *canon.Canonizer) *Session {
	s := &Session{dataDir: dataDir, canon: canonizer}
	s.table = map[wire.Method]HandlerFunc{
		wire.MethodGlobalSettingRead:      handler.GlobalSettingGet,
		wire.MethodGlobalSettingWrite:     handler.GlobalSettingSet,
		wire.MethodBlockIDLatestRead:      handler.LatestBlockID,
		wire.MethodBlockRead:              handler.BlockGet,
		wire.MethodBlockIDByHeightRead:    handler.BlockIDByHeight,
		wire.MethodBlockWrite:             canonizer.Make,
		wire.MethodArtifactRead:           handler.ArtifactGet,
		wire.MethodTransactionRead:        handler.CanonizedTxnGet,
		wire.MethodPQTransactionSubmit:    handler.TxnSubmit,
		wire.MethodPQTransactionFirstRead: handler.TxnGetFirst,
		wire.MethodPQTransactionRead:      handler.TxnGet,
		wire.MethodPQTransactionDrop:      handler.TxnDrop,
		wire.MethodPQTransactionPromote:   handler.TxnPromote,
	}
	return s
}

// Close releases the session's root context, if one was created.
func (s *Session) Close() error {
	if s.root == nil {
		return nil
	}
	return s.root.Close()
}

// Dispatch routes one decoded request to its handler and returns the
// fields the caller (pkg/eventloop) encodes into the response frame.
// offset carries the child-context index for handlers that use one, 0
// otherwise. Unknown methods yield RequestPacketBad -- a non-fatal
// protocol error that leaves the connection open.
func (s *Session) Dispatch(method wire.Method, payload []byte) (status statuscode.Code, offset uint32, respPayload []byte, err error) {
	switch method {
	case wire.MethodRootContextCreate:
		return s.rootContextCreate(payload)
	case wire.MethodRootContextReduceCaps:
		return s.rootContextReduceCaps(payload)
	case wire.MethodChildContextCreate:
		return s.childContextCreate(payload)
	case wire.MethodChildContextClose:
		return s.childContextClose(payload)
	}

	handlerFn, ok := s.table[method]
	if !ok {
		return statuscode.RequestPacketBad, 0, nil, nil
	}
	if s.root == nil {
		return statuscode.NotAuthorized, 0, nil, nil
	}

	idx, rest, derr := wire.DecodeChildPrefix(payload)
	if derr != nil {
		return statuscode.From(derr), 0, nil, nil
	}
	if idx >= context.MaxChildContexts {
		return statuscode.ChildContextBadIndex, idx, nil, nil
	}
	child := s.root.Child(idx)
	if child == nil {
		return statuscode.ChildContextInvalid, idx, nil, nil
	}

	hStatus, hPayload, hErr := handlerFn(child, rest)
	s.publishForMethod(method, hStatus, rest)
	return hStatus, idx, hPayload, hErr
}

// publishForMethod emits the lifecycle event, if any, associated with a
// successfully dispatched mutating method. The event's subject is the
// UUID (or setting key) leading the request payload.
func (s *Session) publishForMethod(method wire.Method, status statuscode.Code, payload []byte) {
	if s.Events == nil || status != statuscode.Success {
		return
	}
	var eventType events.EventType
	subjectLen := 16
	switch method {
	case wire.MethodBlockWrite:
		eventType = events.EventBlockCanonized
	case wire.MethodPQTransactionSubmit:
		eventType = events.EventTxnSubmitted
	case wire.MethodPQTransactionDrop:
		eventType = events.EventTxnDropped
	case wire.MethodPQTransactionPromote:
		eventType = events.EventTxnPromoted
	case wire.MethodGlobalSettingWrite:
		eventType = events.EventGlobalSettingSet
		subjectLen = 8
	default:
		return
	}
	var subject []byte
	if len(payload) >= subjectLen {
		subject = append([]byte(nil), payload[:subjectLen]...)
	}
	s.Events.PublishType(eventType, subject)
}

func (s *Session) rootContextCreate(payload []byte) (statuscode.Code, uint32, []byte, error) {
	if len(payload) < 8 {
		return statuscode.RequestPacketInvalidSize, 0, nil, nil
	}
	caps := capability.Set(binary.BigEndian.Uint64(payload[:8]))

	root, rerr := context.NewRootContext(caps, s.dataDir)
	if rerr != nil {
		return statuscode.From(rerr), 0, nil, nil
	}
	s.root = root
	return statuscode.Success, 0, nil, nil
}

func (s *Session) rootContextReduceCaps(payload []byte) (statuscode.Code, uint32, []byte, error) {
	if s.root == nil {
		return statuscode.NotAuthorized, 0, nil, nil
	}
	if len(payload) < 8 {
		return statuscode.RequestPacketInvalidSize, 0, nil, nil
	}
	mask := capability.Set(binary.BigEndian.Uint64(payload[:8]))
	if rerr := s.root.ReduceCaps(mask); rerr != nil {
		return statuscode.From(rerr), 0, nil, nil
	}
	return statuscode.Success, 0, nil, nil
}

func (s *Session) childContextCreate(payload []byte) (statuscode.Code, uint32, []byte, error) {
	if s.root == nil {
		return statuscode.NotAuthorized, 0, nil, nil
	}
	if len(payload) < 8 {
		return statuscode.RequestPacketInvalidSize, 0, nil, nil
	}
	mask := capability.Set(binary.BigEndian.Uint64(payload[:8]))

	_, idx, cerr := s.root.CreateChild(mask)
	if cerr != nil {
		return statuscode.From(cerr), 0, nil, nil
	}
	return statuscode.Success, idx, nil, nil
}

func (s *Session) childContextClose(payload []byte) (statuscode.Code, uint32, []byte, error) {
	if s.root == nil {
		return statuscode.NotAuthorized, 0, nil, nil
	}
	idx, _, derr := wire.DecodeChildPrefix(payload)
	if derr != nil {
		return statuscode.From(derr), 0, nil, nil
	}
	if idx >= context.MaxChildContexts {
		return statuscode.ChildContextBadIndex, idx, nil, nil
	}
	child := s.root.Child(idx)
	if child == nil {
		return statuscode.ChildContextInvalid, idx, nil, nil
	}
	if cerr := child.Close(); cerr != nil {
		return statuscode.From(cerr), idx, nil, nil
	}
	if s.Events != nil {
		s.Events.PublishType(events.EventChildContextClosed, nil)
	}
	return statuscode.Success, idx, nil, nil
}
