/*
Package wire implements the data service's length-prefixed request and
response framing and the stable method-code table. Every multi-byte
integer is big-endian.

Request frame:  { u32 size, u32 method, payload[size-4] }
Response frame: { u32 size, u32 method, u32 offset, u32 status, payload[size-12] }

size is the length of everything after itself. offset carries a
child-context index for handlers that use one, and is zero otherwise.
*/
package wire
