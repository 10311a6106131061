package supervisor

import (
	"fmt"
	"net"
	"os"
)

// Well-known inherited descriptor numbers. fd 0-2 are stdio; a
// supervising process that execs ledgerd/randomd with extra files open
// passes the data socket at 3 and the log sink at 4.
const (
	dataSocketFD = 3
	logSinkFD    = 4
)

// Sockets holds the two descriptors a supervisor may hand to a service
// process.
type Sockets struct {
	Data *os.File
	Log  *os.File
}

// ConnectFDs wraps file descriptors 3 and 4 as *os.File, matching
// whatever convention the supervising process uses to pass them down.
// It does not validate that either descriptor is open; a closed or
// absent fd surfaces as an error the first time it's used.
func ConnectFDs() *Sockets {
	return &Sockets{
		Data: os.NewFile(dataSocketFD, "data-socket"),
		Log:  os.NewFile(logSinkFD, "log-socket"),
	}
}

// DataListener adapts the inherited data socket into a net.Listener,
// for a supervisor that passes down an already-bound, already-listening
// socket rather than a connected stream.
func (s *Sockets) DataListener() (net.Listener, error) {
	if s.Data == nil {
		return nil, fmt.Errorf("supervisor: no data socket inherited at fd %d", dataSocketFD)
	}
	l, err := net.FileListener(s.Data)
	if err != nil {
		return nil, fmt.Errorf("supervisor: data socket at fd %d is not a listener: %v", dataSocketFD, err)
	}
	return l, nil
}
