/*
Package context implements the root and child context lifecycle: a root
context owns the storage environment and the full capability set; up to
1024 child contexts, each carrying a reduced capability mask, are
allocated from a fixed-size free-list pool.

This is unrelated to the standard library's context.Context -- it models
the service's root_context/child_context API objects, which predate and
have nothing to do with cancellation contexts.
*/
package context
