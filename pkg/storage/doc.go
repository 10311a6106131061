/*
Package storage wraps a transactional embedded key-value store (bbolt)
behind the engine contract the data service is written against: open
and close an environment, begin/commit/abort (and nest) transactions,
and perform typed get/put/del against named sub-databases.

bbolt models databases as buckets inside a single file rather than as
separate named environments, and its transactions do not nest the way
MDB_txn does. Store reproduces the effect the handlers need --
"begin a transaction that sees a parent's uncommitted writes" -- by
having a nested Begin share its parent's live *bolt.Tx: reads and writes
go through the same underlying transaction, and only the outermost Tx
actually commits or aborts it. This is the single deliberate adaptation
boundary between the MDBX-shaped contract and bbolt's API; see
DESIGN.md.
*/
package storage
