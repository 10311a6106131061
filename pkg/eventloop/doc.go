// Package eventloop implements the service's request/response loop.
// The original design is a single-threaded, non-blocking loop driven by
// raw socket readiness callbacks; Go's net package does not expose that
// callback shape, so this package stands in with short read and accept
// deadlines polled in a plain for-loop -- the same "suspension points:
// socket-ready, signal delivery" discipline, built from deadlines
// instead of an epoll callback. Every connection is served to
// completion before the next is accepted: one thread per service
// process, no internal preemption.
package eventloop
