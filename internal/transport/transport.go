// Package transport accepts TCP (optionally TLS) connections and surfaces
// them as ordered, reliable byte streams to the session runtime, with
// configurable timeouts and a distinct error class for abrupt disconnects
// versus idle timeouts. It mirrors the teacher's NFS adapter accept loop:
// an accept loop that starts one goroutine per connection and does not cap
// how many run at once, a sync.Map of live connections for
// interrupting blocking reads at shutdown, and a WaitGroup-gated graceful
// drain with a force-close fallback.
package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrIdleTimeout is returned by Conn.Read when the connection has been idle
// longer than its configured read timeout.
var ErrIdleTimeout = errors.New("transport: connection idle timeout")

// ErrAbruptDisconnect classifies a read/write failure that was not a clean
// close and not an idle timeout — the peer vanished mid-exchange.
var ErrAbruptDisconnect = errors.New("transport: abrupt disconnect")

// Config configures one listening socket.
type Config struct {
	BindAddress       string
	Port              int
	ConnectionTimeout time.Duration
	ReadTimeout       time.Duration
	TLS               *TLSConfig
	// HandshakeFilterEnabled toggles the EBCDIC/IBM pre-connection byte
	// filter in front of the FPDU codec (disabled by default, per listener).
	HandshakeFilterEnabled bool
}

// Listener wraps a net.Listener with the accept-loop bookkeeping the
// session runtime needs: a count of live connections, trackable live
// connections, and a two-phase (graceful then forced) shutdown. It does not
// limit the number of concurrent connections.
type Listener struct {
	cfg      Config
	tlsConf  *tls.Config
	listener net.Listener

	activeConns sync.WaitGroup
	connCount   atomic.Int32
	connections sync.Map // remote addr -> net.Conn

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New builds a Listener from cfg but does not yet bind a socket.
func New(cfg Config) (*Listener, error) {
	var tlsConf *tls.Config
	if cfg.TLS != nil {
		var err error
		tlsConf, err = BuildTLSConfig(*cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("transport: building tls config: %w", err)
		}
	}
	return &Listener{cfg: cfg, tlsConf: tlsConf, shutdown: make(chan struct{})}, nil
}

// Listen binds the configured address and starts accepting. Accept runs
// until Close, handing each accepted connection to
// handle in its own goroutine.
func (l *Listener) Listen(handle func(*Conn)) error {
	addr := fmt.Sprintf("%s:%d", l.cfg.BindAddress, l.cfg.Port)
	raw, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listening on %s: %w", addr, err)
	}
	if l.tlsConf != nil {
		raw = tls.NewListener(raw, l.tlsConf)
	}
	l.listener = raw

	for {
		tcpConn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
				return nil
			default:
				return fmt.Errorf("transport: accept: %w", err)
			}
		}

		l.activeConns.Add(1)
		l.connCount.Add(1)
		remote := tcpConn.RemoteAddr().String()
		l.connections.Store(remote, tcpConn)

		conn := &Conn{
			raw:               tcpConn,
			readTimeout:       l.cfg.ReadTimeout,
			connectionTimeout: l.cfg.ConnectionTimeout,
		}
		if l.cfg.HandshakeFilterEnabled {
			if err := applyHandshakeFilter(conn); err != nil {
				l.connections.Delete(remote)
				l.connCount.Add(-1)
				l.activeConns.Done()
				_ = tcpConn.Close()
				continue
			}
		}

		go func() {
			defer func() {
				l.connections.Delete(remote)
				l.connCount.Add(-1)
				l.activeConns.Done()
			}()
			handle(conn)
		}()
	}
}

// ActiveConnections reports the number of currently live connections.
func (l *Listener) ActiveConnections() int32 { return l.connCount.Load() }

// Close begins shutdown: stop accepting, interrupt blocked reads with a
// short deadline, then wait up to drainTimeout for in-flight connections to
// finish before forcibly closing whatever remains.
func (l *Listener) Close(drainTimeout time.Duration) error {
	var err error
	l.shutdownOnce.Do(func() {
		close(l.shutdown)
		if l.listener != nil {
			_ = l.listener.Close()
		}
		l.interruptBlockingReads()

		done := make(chan struct{})
		go func() {
			l.activeConns.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(drainTimeout):
			remaining := l.connCount.Load()
			l.forceCloseAll()
			err = fmt.Errorf("transport: shutdown timeout exceeded, %d connections force-closed", remaining)
		}
	})
	return err
}

func (l *Listener) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)
	l.connections.Range(func(_, v any) bool {
		if conn, ok := v.(net.Conn); ok {
			_ = conn.SetReadDeadline(deadline)
		}
		return true
	})
}

func (l *Listener) forceCloseAll() {
	l.connections.Range(func(k, v any) bool {
		if conn, ok := v.(net.Conn); ok {
			_ = conn.Close()
		}
		l.connections.Delete(k)
		return true
	})
}

// Conn is the blocking byte-stream interface the session runtime reads and
// writes FPDUs through. It enforces the configured idle-read timeout and
// classifies the resulting error as ErrIdleTimeout or ErrAbruptDisconnect
// rather than surfacing the raw net.Error.
type Conn struct {
	raw               net.Conn
	readTimeout       time.Duration
	connectionTimeout time.Duration
	// pending holds bytes already pulled off the wire by the handshake
	// filter (the matched CONNECT header) that Read must return before
	// resuming ordinary reads from raw.
	pending []byte
}

// NewConn wraps an already-established net.Conn the same way Listen does,
// for callers (engine tests, primarily) that need a *Conn without going
// through a real TCP accept loop.
func NewConn(raw net.Conn, readTimeout, connectionTimeout time.Duration) *Conn {
	return &Conn{raw: raw, readTimeout: readTimeout, connectionTimeout: connectionTimeout}
}

func (c *Conn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	n, err := c.raw.Read(p)
	if err != nil {
		return n, classify(err)
	}
	return n, nil
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.connectionTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.connectionTimeout))
	}
	n, err := c.raw.Write(p)
	if err != nil {
		return n, classify(err)
	}
	return n, nil
}

func (c *Conn) Close() error         { return c.raw.Close() }
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrIdleTimeout, err)
	}
	if errors.Is(err, net.ErrClosed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAbruptDisconnect, err)
}
