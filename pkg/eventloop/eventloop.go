package eventloop

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cuemby/ledgerd/pkg/canon"
	"github.com/cuemby/ledgerd/pkg/dispatch"
	"github.com/cuemby/ledgerd/pkg/events"
	"github.com/cuemby/ledgerd/pkg/log"
	"github.com/cuemby/ledgerd/pkg/metrics"
	"github.com/cuemby/ledgerd/pkg/statuscode"
	"github.com/cuemby/ledgerd/pkg/wire"
)

const pollInterval = 200 * time.Millisecond

// deadlineListener is satisfied by *net.TCPListener and *net.UnixListener,
// the two listener types ledgerd actually binds.
type deadlineListener interface {
	SetDeadline(t time.Time) error
}

// Handler serves one decoded request frame and returns the fields
// encoded into the response frame.
type Handler func(method wire.Method, payload []byte) (status statuscode.Code, offset uint32, respPayload []byte)

// Loop serves one service socket: it accepts connections one at a time
// and drives each to completion before accepting the next, keeping the
// service single-threaded with a single active connection.
type Loop struct {
	listener net.Listener
	newConn  func() (Handler, func())
}

// New builds a Loop that serves the data-service dispatch table over
// listener, backed by the environment at dataDir. A fresh
// dispatch.Session is created per connection and closed when the
// connection ends, per the conn -> session -> children -> root -> store
// release chain.
func New(listener net.Listener, dataDir string, canonizer *canon.Canonizer, broker *events.Broker) *Loop {
	return &Loop{
		listener: listener,
		newConn: func() (Handler, func()) {
			session := dispatch.NewSession(dataDir, canonizer)
			session.Events = broker
			handle := func(method wire.Method, payload []byte) (statuscode.Code, uint32, []byte) {
				status, offset, respPayload, _ := session.Dispatch(method, payload)
				return status, offset, respPayload
			}
			return handle, func() { _ = session.Close() }
		},
	}
}

// NewWithHandler builds a Loop around a caller-supplied per-connection
// handler and closer factory. The random service uses this to plug in
// get_random_bytes without depending on the data service's dispatch
// table.
func NewWithHandler(listener net.Listener, newHandler func() (Handler, func())) *Loop {
	return &Loop{listener: listener, newConn: newHandler}
}

// Run accepts and serves connections until SIGHUP, SIGTERM, or SIGQUIT
// is delivered, or the listener closes out from under it. It never
// returns a non-nil error for an orderly shutdown.
func (l *Loop) Run() error {
	setNonblocking(l.listener)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	stop := make(chan struct{})
	go func() {
		sig := <-sigCh
		log.Logger.Info().Str("signal", sig.String()).Msg("eventloop: signal received, exiting")
		close(stop)
	}()

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if dl, ok := l.listener.(deadlineListener); ok {
			_ = dl.SetDeadline(time.Now().Add(pollInterval))
		}
		conn, err := l.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		l.ServeConn(conn, stop)
	}
}

// ServeConn drives one connection: read a frame, dispatch it, write the
// response, repeat until the connection closes, a framing error occurs,
// or stop fires.
func (l *Loop) ServeConn(conn net.Conn, stop <-chan struct{}) {
	defer conn.Close()

	handle, closeConn := l.newConn()
	defer closeConn()
	connLog := log.WithConn(conn.RemoteAddr().String())

	for {
		select {
		case <-stop:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(pollInterval))
		req, err := wire.ReadRequest(conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				return
			}
			connLog.Warn().Err(err).Msg("frame decode failed, closing connection")
			return
		}

		timer := metrics.NewTimer()
		status, offset, respPayload := handle(req.Method, req.Payload)
		timer.ObserveDurationVec(metrics.RequestDuration, methodLabel(req.Method))
		metrics.RequestsTotal.WithLabelValues(methodLabel(req.Method), statusLabel(status)).Inc()

		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if werr := wire.WriteResponse(conn, req.Method, offset, status, respPayload); werr != nil {
			connLog.Warn().Err(werr).Msg("response write failed, closing connection")
			return
		}
	}
}

// syscallListener is implemented by *net.TCPListener and *net.UnixListener.
type syscallListener interface {
	SyscallConn() (syscall.RawConn, error)
}

// setNonblocking puts the listener's underlying fd in non-blocking mode
// directly via golang.org/x/sys/unix. Go's runtime already arms the
// netpoller non-blocking under the hood, so this is redundant in
// practice; it's kept explicit because it's the one point in the loop
// that names the non-blocking-socket discipline the original single-
// threaded event loop depends on. Best-effort: a listener that doesn't
// expose a raw fd (or a failed Control call) is left as-is.
func setNonblocking(l net.Listener) {
	sl, ok := l.(syscallListener)
	if !ok {
		return
	}
	rc, err := sl.SyscallConn()
	if err != nil {
		return
	}
	_ = rc.Control(func(fd uintptr) {
		_ = unix.SetNonblock(int(fd), true)
	})
}

func methodLabel(m wire.Method) string {
	return fmt.Sprintf("%d", m)
}

func statusLabel(c statuscode.Code) string {
	if c == statuscode.Success {
		return "success"
	}
	return fmt.Sprintf("%d", c)
}
