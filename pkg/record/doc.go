/*
Package record implements the fixed-layout on-disk records stored in the
block, txn, and artifact buckets (see pkg/storage). Every multi-byte
integer is big-endian, matching the wire framing in pkg/wire so a single
mental model covers both the network and disk encodings.
*/
package record
