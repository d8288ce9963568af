// Package listener runs and supervises the server's TCP/TLS listening
// sockets. A ListenerInstance owns one configured PeSIT-E listening port;
// the Supervisor keeps a { serverId -> *ListenerInstance } map and starts
// or stops instances in response to cluster leadership changes.
package listener

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/metrics"
	"github.com/horssit/pesitd/internal/transport"
)

// HandlerFunc runs one accepted connection end to end. It owns conn until
// the session ends (normal close, idle timeout, or abrupt disconnect) and
// never returns early while the connection is still usable.
type HandlerFunc func(ctx context.Context, serverID string, conn *transport.Conn)

// Config describes one listening port and its maintenance policy.
type Config struct {
	ServerID string
	NodeID   string

	AutoStart bool

	ReceiveDir string // must exist at start; missing directory aborts start
	SendDir    string // missing directory is only a warning

	Transport transport.Config

	DrainTimeout time.Duration

	// GCInterval/GCRetention govern the cooperative journal GC timer; zero
	// GCInterval disables it.
	GCInterval  time.Duration
	GCRetention time.Duration

	// StaleSessionInterval governs the defensive stale-session reaper;
	// zero disables it. It closes any tracked connection older than
	// StaleSessionTimeout, measured from connect time, whether idle or not.
	StaleSessionInterval time.Duration
	StaleSessionTimeout  time.Duration
}

// Status is a point-in-time snapshot of a ListenerInstance.
type Status struct {
	ServerID          string
	Running           bool
	ActiveConnections int32
}

// ListenerInstance runs the accept loop for one configured server id and
// its cooperative maintenance timers. It mirrors the teacher's NFS adapter
// two-phase shutdown: stop accepting, drain with a bounded wait, then force
// close whatever remains.
type ListenerInstance struct {
	cfg     Config
	journal journal.Journal
	metrics metrics.Metrics
	handle  HandlerFunc

	mu        sync.Mutex
	running   bool
	transport *transport.Listener
	stopTimers chan struct{}
	timersWG   sync.WaitGroup

	sessions sync.Map // remote addr -> *trackedSession
}

type trackedSession struct {
	conn        *transport.Conn
	connectedAt time.Time
}

// NewListenerInstance builds a stopped ListenerInstance. Start must be
// called to actually bind and begin accepting.
func NewListenerInstance(cfg Config, j journal.Journal, m metrics.Metrics, handle HandlerFunc) *ListenerInstance {
	return &ListenerInstance{cfg: cfg, journal: j, metrics: m, handle: handle}
}

// Start validates directories, binds the listening socket, and begins
// accepting connections and running maintenance timers. It returns once the
// socket is bound; the accept loop itself runs in the background.
func (li *ListenerInstance) Start(ctx context.Context) error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.running {
		return fmt.Errorf("listener %s: already running", li.cfg.ServerID)
	}

	if li.cfg.ReceiveDir != "" {
		if info, err := os.Stat(li.cfg.ReceiveDir); err != nil || !info.IsDir() {
			return fmt.Errorf("listener %s: receive directory %q unusable: %w", li.cfg.ServerID, li.cfg.ReceiveDir, err)
		}
	}
	if li.cfg.SendDir != "" {
		if info, err := os.Stat(li.cfg.SendDir); err != nil || !info.IsDir() {
			logger.Warn("send directory unusable, continuing", "server_id", li.cfg.ServerID, "dir", li.cfg.SendDir, "error", err)
		}
	}

	t, err := transport.New(li.cfg.Transport)
	if err != nil {
		return fmt.Errorf("listener %s: %w", li.cfg.ServerID, err)
	}
	li.transport = t
	li.stopTimers = make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- li.transport.Listen(func(conn *transport.Conn) {
			li.trackAndHandle(ctx, conn)
		})
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listener %s: %w", li.cfg.ServerID, err)
	case <-time.After(50 * time.Millisecond):
		// Listen didn't fail immediately (port conflict, bad address); the
		// accept loop is presumed live. Any later fatal error is logged.
		go func() {
			if err := <-errCh; err != nil {
				logger.Error("listener accept loop exited", "server_id", li.cfg.ServerID, "error", err)
			}
		}()
	}

	li.running = true
	li.startTimers()
	logger.Info("listener started", "server_id", li.cfg.ServerID, "bind", li.cfg.Transport.BindAddress, "port", li.cfg.Transport.Port)
	if li.metrics != nil {
		li.metrics.SetActiveSessions(li.cfg.ServerID, 0)
	}
	return nil
}

func (li *ListenerInstance) trackAndHandle(ctx context.Context, conn *transport.Conn) {
	id := conn.RemoteAddr().String()
	ts := &trackedSession{conn: conn, connectedAt: time.Now()}
	li.sessions.Store(id, ts)
	defer li.sessions.Delete(id)
	li.handle(ctx, li.cfg.ServerID, conn)
}

// Stop begins a graceful shutdown of the accept loop and maintenance
// timers, forcibly closing whatever connections are still open once
// cfg.DrainTimeout elapses. In-flight transfers owned by this listener are
// left for the caller to mark interrupted via the journal.
func (li *ListenerInstance) Stop() error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if !li.running {
		return nil
	}
	li.running = false
	close(li.stopTimers)
	li.timersWG.Wait()

	drain := li.cfg.DrainTimeout
	if drain <= 0 {
		drain = 5 * time.Second
	}
	err := li.transport.Close(drain)
	logger.Info("listener stopped", "server_id", li.cfg.ServerID)
	return err
}

// Status reports whether this instance is running and how many connections
// it currently holds open.
func (li *ListenerInstance) Status() Status {
	li.mu.Lock()
	running := li.running
	t := li.transport
	li.mu.Unlock()
	var active int32
	if t != nil {
		active = t.ActiveConnections()
	}
	return Status{ServerID: li.cfg.ServerID, Running: running, ActiveConnections: active}
}

func (li *ListenerInstance) startTimers() {
	if li.cfg.GCInterval > 0 {
		li.timersWG.Add(1)
		go li.runGCTimer()
	}
	if li.cfg.StaleSessionInterval > 0 {
		li.timersWG.Add(1)
		go li.runStaleSessionReaper()
	}
}

func (li *ListenerInstance) runGCTimer() {
	defer li.timersWG.Done()
	ticker := time.NewTicker(li.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-li.stopTimers:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-li.cfg.GCRetention)
			n, err := li.journal.GCTerminalTransfers(context.Background(), cutoff)
			if err != nil {
				logger.Warn("journal gc failed", "server_id", li.cfg.ServerID, "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("journal gc swept terminal transfers", "server_id", li.cfg.ServerID, "count", n)
			}
		}
	}
}

// runStaleSessionReaper is a defensive backstop: the transport layer's own
// read timeout should already close idle sockets, but a session blocked on
// something other than a raw read (e.g. a stuck handler) would not notice.
// This timer force-closes any tracked connection older than
// StaleSessionTimeout. It keys off connection age rather than true
// per-session last-activity because that finer-grained signal lives in the
// session runtime's own Context.Touch bookkeeping, not here.
func (li *ListenerInstance) runStaleSessionReaper() {
	defer li.timersWG.Done()
	ticker := time.NewTicker(li.cfg.StaleSessionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-li.stopTimers:
			return
		case <-ticker.C:
			now := time.Now()
			li.sessions.Range(func(key, value any) bool {
				ts := value.(*trackedSession)
				if now.Sub(ts.connectedAt) > li.cfg.StaleSessionTimeout {
					logger.Warn("reaping stale session", "server_id", li.cfg.ServerID, "remote", key)
					_ = ts.conn.Close()
					li.sessions.Delete(key)
				}
				return true
			})
		}
	}
}
