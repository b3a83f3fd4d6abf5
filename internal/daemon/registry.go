package daemon

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// sendBufferSize bounds the per-client outbound queue. A client that falls
// this many frames behind is considered dead and unregistered.
const sendBufferSize = 16

// writeTimeout caps a single frame write so one stuck peer cannot pin its
// writer goroutine forever.
const writeTimeout = 5 * time.Second

// clientConn is one attached peer: a connection handle plus its outbound
// queue. Frames are enqueued by the broadcast path and drained by a
// dedicated writer goroutine, so a slow client never blocks the daemon.
type clientConn struct {
	id     uuid.UUID
	conn   net.Conn
	sendCh chan []byte

	quit     chan struct{}
	stopOnce sync.Once

	// flush asks the writer to drain the queue and then close. Used for
	// one-shot clients whose final frame must reach the wire.
	flush     chan struct{}
	flushOnce sync.Once
}

// enqueue appends a frame to the outbound queue without blocking. It returns
// false when the queue is full, which the registry treats as a dead client.
func (c *clientConn) enqueue(frame []byte) bool {
	select {
	case c.sendCh <- frame:
		return true
	case <-c.quit:
		return false
	default:
		return false
	}
}

// close tears the connection down exactly once. Closing the conn also
// unblocks the connection's reader goroutine.
func (c *clientConn) close() {
	c.stopOnce.Do(func() {
		close(c.quit)
		c.conn.Close()
	})
}

// beginFlush signals the writer goroutine to drain and close.
func (c *clientConn) beginFlush() {
	c.flushOnce.Do(func() {
		close(c.flush)
	})
}

// Registry tracks currently attached clients. The accept loop registers,
// any per-client loop (or a failed delivery) unregisters; both paths are
// safe under concurrent access. The registry is a set, not a sequence.
type Registry struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*clientConn
	writers sync.WaitGroup
	log     zerolog.Logger
}

// NewRegistry creates an empty client registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[uuid.UUID]*clientConn),
		log:     log,
	}
}

// Register adds a connection and starts its writer goroutine. A client that
// disconnects and reconnects is a brand-new client with a fresh id.
func (r *Registry) Register(conn net.Conn) *clientConn {
	c := &clientConn{
		id:     uuid.New(),
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		quit:   make(chan struct{}),
		flush:  make(chan struct{}),
	}

	r.mu.Lock()
	r.clients[c.id] = c
	r.mu.Unlock()

	r.writers.Add(1)
	go func() {
		defer r.writers.Done()
		r.writeLoop(c)
	}()

	r.log.Debug().Str("client", c.id.String()).Int("attached", r.Len()).Msg("client registered")
	return c
}

// Unregister removes a client and closes its connection. Unknown ids are
// ignored so the disconnect paths (read failure, write failure, once-close)
// can race without harm.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	r.log.Debug().Str("client", id.String()).Int("attached", r.Len()).Msg("client unregistered")
}

// Len returns the number of attached clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// snapshot returns the current client set. Broadcast iterates over this
// copy so registry mutations during delivery are safe.
func (r *Registry) snapshot() []*clientConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*clientConn, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Broadcast delivers a frame to every currently registered client.
// Delivery is best effort per client: a full queue drops the client and
// never delays the others or surfaces an error to the caller.
func (r *Registry) Broadcast(frame []byte) {
	for _, c := range r.snapshot() {
		if !c.enqueue(frame) {
			r.log.Warn().Str("client", c.id.String()).Msg("client not keeping up, dropping")
			r.Unregister(c.id)
		}
	}
}

// SendTo delivers a frame to a single client, if still registered.
func (r *Registry) SendTo(id uuid.UUID, frame []byte) {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if !c.enqueue(frame) {
		r.Unregister(id)
	}
}

// UnregisterAfterFlush removes a client from the set but lets its writer
// drain queued frames before the connection closes. Used for `once` clients
// whose single snapshot must still reach the wire.
func (r *Registry) UnregisterAfterFlush(id uuid.UUID) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	c.beginFlush()
	r.log.Debug().Str("client", id.String()).Msg("client released after flush")
}

// CloseAll pushes a final frame to every client and tears all of them down
// once their queues have drained. Used on daemon shutdown, after the
// listener has stopped accepting.
func (r *Registry) CloseAll(finalFrame []byte) {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[uuid.UUID]*clientConn)
	r.mu.Unlock()

	for _, c := range clients {
		if finalFrame != nil {
			c.enqueue(finalFrame)
		}
		c.beginFlush()
	}
}

// Wait blocks until every writer goroutine has exited. Called during
// shutdown so final frames reach the wire before the process exits.
func (r *Registry) Wait() {
	r.writers.Wait()
}

// writeLoop drains a client's outbound queue. On the first write failure the
// client is unregistered; detection therefore happens within one broadcast
// attempt of the peer going away.
func (r *Registry) writeLoop(c *clientConn) {
	write := func(frame []byte) bool {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := c.conn.Write(frame); err != nil {
			r.log.Debug().Str("client", c.id.String()).Err(err).Msg("write failed, dropping client")
			c.close()
			r.Unregister(c.id)
			return false
		}
		return true
	}

	for {
		select {
		case <-c.quit:
			return
		case frame := <-c.sendCh:
			if !write(frame) {
				return
			}
		case <-c.flush:
			// Drain whatever is queued, then close for good.
			for {
				select {
				case frame := <-c.sendCh:
					if !write(frame) {
						return
					}
				default:
					c.close()
					return
				}
			}
		}
	}
}
