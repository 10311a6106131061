// Package randomservice implements the companion random service:
// a single-method data plane that reads size bytes at offset from an
// io.ReaderAt and returns them, reusing pkg/wire and pkg/eventloop
// verbatim to demonstrate that the framed request/response pattern is
// not specific to the data service.
package randomservice
