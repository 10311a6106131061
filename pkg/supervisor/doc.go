// Package supervisor wraps the two file descriptors ledgerd and randomd
// inherit from whatever process starts them: a data/control socket and
// a log sink. The supervisor process itself -- restart policy,
// descriptor numbering convention, health polling -- lives elsewhere;
// this package only gives cmd/ledgerd and cmd/randomd a way to pick the
// descriptors up when they are present.
package supervisor
