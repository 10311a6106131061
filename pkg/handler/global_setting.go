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

// globalSettingGetPayloadSize is sizeof(key u64) + sizeof(max_size u32).
const globalSettingGetPayloadSize = 8 + 4

// GlobalSettingGet implements global_setting_get. payload is
// {u64 key, u32 max_size}. On success the reply is the stored value, up
// to max_size bytes; if the stored value is larger, the reply is
// WouldTruncate with a 4-byte required-size payload.
func GlobalSettingGet(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.GlobalSettingRead) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < globalSettingGetPayloadSize {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	key := binary.BigEndian.Uint64(payload[0:8])
	maxSize := binary.BigEndian.Uint32(payload[8:12])

	var reply []byte
	status := statuscode.Success
	err := withTx(child.Root().Store(), nil, false, func(tx *storage.Tx) error {
		val, gerr := tx.Get(storage.BucketGlobal, record.GlobalKey(key))
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return statuscode.Wrap(statuscode.GetFailure, gerr)
		}
		if uint32(len(val)) > maxSize {
			status = statuscode.WouldTruncate
			reply = make([]byte, 4)
			binary.BigEndian.PutUint32(reply, uint32(len(val)))
			return nil
		}
		reply = val
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	return status, reply, nil
}

// GlobalSettingSet implements global_setting_set: overwrite key with the
// bytes following it in payload, committing its own transaction.
func GlobalSettingSet(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.GlobalSettingWrite) {
		return statuscode.NotAuthorized, nil, nil
	}
	if len(payload) < 8 {
		return statuscode.RequestPacketInvalidSize, nil, nil
	}
	key := binary.BigEndian.Uint64(payload[0:8])
	val := payload[8:]

	err := withTx(child.Root().Store(), nil, true, func(tx *storage.Tx) error {
		if perr := tx.Put(storage.BucketGlobal, record.GlobalKey(key), val, false); perr != nil {
			return statuscode.Wrap(statuscode.PutFailure, perr)
		}
		return nil
	})
	if err != nil {
		return statuscode.From(err), nil, nil
	}
	return statuscode.Success, nil, nil
}
