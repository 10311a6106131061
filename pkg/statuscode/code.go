package statuscode

import (
	"errors"
	"fmt"
)

// Code is an application-level status reported in a response frame's
// status field. Zero is always success; every other value is part of
// the wire ABI and must not be renumbered.
type Code uint32

const (
	Success Code = 0

	// Authorization.
	NotAuthorized Code = 100

	// Resource.
	OutOfMemory               Code = 110
	OutOfChildInstances       Code = 111
	ChildContextBadIndex      Code = 112
	ChildContextInvalid       Code = 113
	ChildContextCreateFailure Code = 114
	ChildContextMaxReached    Code = 115

	// Storage.
	TxnBeginFailure      Code = 120
	GetFailure           Code = 121
	PutFailure           Code = 122
	DelFailure           Code = 123
	EnvCreateFailure     Code = 124
	EnvOpenFailure       Code = 125
	EnvSetMapsizeFailure Code = 126
	EnvSetMaxdbsFailure  Code = 127
	DBIOpenFailure       Code = 128
	TxnCommitFailure     Code = 129

	// Not found / truncation.
	NotFound      Code = 140
	WouldTruncate Code = 141

	// Corruption.
	InvalidStoredBlockNode       Code = 150
	InvalidStoredTransactionNode Code = 151
	InvalidArtifactNodeSize      Code = 152
	InvalidIndexEntry            Code = 153

	// Protocol.
	RequestPacketBad         Code = 160
	RequestPacketInvalidSize Code = 161
	IPCWriteDataFailure      Code = 162

	// Canonization.
	MissingBlockHeight                  Code = 170
	InvalidBlockHeight                  Code = 171
	MissingPreviousBlockUUID            Code = 172
	InvalidPreviousBlockUUID            Code = 173
	MissingBlockUUID                    Code = 174
	InvalidBlockUUID                    Code = 175
	NoChildTransactions                 Code = 176
	MissingChildTransactionUUID         Code = 177
	MissingChildPreviousTransactionUUID Code = 178
	MissingChildArtifactUUID            Code = 179
	MissingChildState                   Code = 180
	ParserInitFailure                   Code = 181
	ParserOptionsInitFailure            Code = 182
	CryptoSuiteInitFailure              Code = 183

	// Random service.
	InvalidSize Code = 190
	ReadFailed  Code = 191
)

// StatusError wraps a Code with the underlying cause, so handlers can
// return a normal Go error while the dispatcher still recovers the wire
// status to place in the response frame.
type StatusError struct {
	Code Code
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Wrap builds a StatusError, or returns nil if err is nil.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &StatusError{Code: code, Err: err}
}

// From extracts the Code from err if it (or something it wraps) is a
// *StatusError, otherwise it returns GetFailure as a conservative
// default for unexpected errors.
func From(err error) Code {
	if err == nil {
		return Success
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return GetFailure
}
