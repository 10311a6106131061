package handler

import (
	"encoding/binary"
	"errors"

	"github.com/cuemby/ledgerd/pkg/capability"
	"github.com/cuemby/ledgerd/pkg/context"
	"github.com/cuemby/ledgerd/pkg/record"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/storage"
)

// LatestBlockID implements latest_block_id: read the end sentinel and
// return its Prev, the most recently canonized block's key.
func LatestBlockID(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.BlockIDLatestRead) {
		return statuscode.NotAuthorized, nil, nil
	}

	var reply []byte
	status := statuscode.Success
	err := withTx(child.Root().Store(), nil, false, func(tx *storage.Tx) error {
		end, gerr := readBlockNode(tx, record.FFUUID)
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return gerr
		}
		reply = append([]byte(nil), end.Prev[:]...)
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	return status, reply, nil
}

// BlockGet implements block_get. payload is {16-byte block_id}. The
// reply is the marshaled block node header followed by its raw
// certificate.
func BlockGet(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.BlockRead) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < 16 {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	var id record.UUID
	copy(id[:], payload[:16])

	var reply []byte
	status := statuscode.Success
	err := withTx(child.Root().Store(), nil, false, func(tx *storage.Tx) error {
		node, gerr := readBlockNode(tx, id)
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return gerr
		}
		data, merr := node.MarshalBinary()
		if merr != nil {
			return merr
		}
		reply = data
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	return status, reply, nil
}

// BlockIDByHeight implements block_id_by_height. payload is {u64 height}.
func BlockIDByHeight(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.BlockIDByHeightRead) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < 8 {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	height := binary.BigEndian.Uint64(payload[:8])

	if cached, ok := child.Root().CachedBlockIDForHeight(height); ok {
		id := cached
		return statuscode.Success, id[:], nil
	}

	var reply []byte
	status := statuscode.Success
	err := withTx(child.Root().Store(), nil, false, func(tx *storage.Tx) error {
		val, gerr := tx.Get(storage.BucketHeight, record.HeightKey(height))
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return statuscode.Wrap(statuscode.GetFailure, gerr)
		}
		if len(val) != 16 {
			status = statuscode.InvalidIndexEntry
			return nil
		}
		reply = val
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	if status == statuscode.Success && reply != nil {
		var id record.UUID
		copy(id[:], reply)
		child.Root().CacheBlockIDForHeight(height, id)
	}
	return status, reply, nil
}

// readBlockNode fetches and decodes the block node at key, translating
// a codec failure into InvalidStoredBlockNode.
func readBlockNode(tx *storage.Tx, key record.UUID) (*record.BlockNode, error) {
	val, err := tx.Get(storage.BucketBlock, key[:])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, statuscode.Wrap(statuscode.GetFailure, err)
	}
	node := &record.BlockNode{}
	if uerr := node.UnmarshalBinary(val); uerr != nil {
		return nil, statuscode.Wrap(statuscode.InvalidStoredBlockNode, uerr)
	}
	return node, nil
}
