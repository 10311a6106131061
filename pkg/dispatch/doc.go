// Package dispatch maps wire method codes to their handlers. It
// validates the child-context prefix carried by every child-targeted
// request, manages the one root context a connection owns, and treats
// unknown methods as a non-fatal protocol error.
package dispatch
