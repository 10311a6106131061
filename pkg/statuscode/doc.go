/*
Package statuscode enumerates the status codes returned in the status
field of every response frame (see pkg/wire), plus the error taxonomy
handlers use internally to decide whether a failure is reported on the
wire (most cases) or is fatal to the connection (framing/write failures
only).
*/
package statuscode
