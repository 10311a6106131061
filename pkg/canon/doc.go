// Package canon implements the block_make canonization algorithm: the
// single routine that atomically folds a candidate block certificate and
// its wrapped child transactions into canonical chain state. Every
// precondition and mutation below runs inside one storage transaction;
// any failure aborts it and the database is left unchanged.
package canon
