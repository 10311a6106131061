package handler

import (
	"errors"

	"github.com/cuemby/ledgerd/pkg/capability"
	"github.com/cuemby/ledgerd/pkg/context"
	"github.com/cuemby/ledgerd/pkg/record"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/storage"
)

// ArtifactGet implements artifact_get. payload is {16-byte artifact_id}.
func ArtifactGet(child *context.ChildContext, payload []byte) (statuscode.Code, []byte, error) {
	if !child.Caps().IsSet(capability.ArtifactRead) {
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
		rec, gerr := readArtifactRecord(tx, id)
		if errors.Is(gerr, storage.ErrNotFound) {
			status = statuscode.NotFound
			return nil
		}
		if gerr != nil {
			return gerr
		}
		data, merr := rec.MarshalBinary()
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

func readArtifactRecord(tx *storage.Tx, id record.UUID) (*record.ArtifactRecord, error) {
	val, err := tx.Get(storage.BucketArtifact, id[:])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, statuscode.Wrap(statuscode.GetFailure, err)
	}
	rec := &record.ArtifactRecord{}
	if uerr := rec.UnmarshalBinary(val); uerr != nil {
		return nil, statuscode.Wrap(statuscode.InvalidArtifactNodeSize, uerr)
	}
	return rec, nil
}
