package daemon

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pomod-sh/pomod/internal/protocol"
)

// registerPipe registers one end of an in-memory connection and returns the
// peer end for assertions.
func registerPipe(t *testing.T, r *Registry) (*clientConn, net.Conn) {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		peer.Close()
	})
	return r.Register(server), peer
}

func TestRegisterUnregister(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	a, _ := registerPipe(t, r)
	b, _ := registerPipe(t, r)
	if got := r.Len(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}
	if a.id == b.id {
		t.Fatal("expected distinct client ids")
	}

	r.Unregister(a.id)
	if got := r.Len(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	// Racing disconnect paths call Unregister repeatedly.
	r.Unregister(a.id)
	r.Unregister(uuid.New())
	if got := r.Len(); got != 1 {
		t.Fatalf("expected 1 client after duplicate unregister, got %d", got)
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	_, peerA := registerPipe(t, r)
	_, peerB := registerPipe(t, r)

	r.Broadcast([]byte("tick\n"))

	for _, peer := range []net.Conn{peerA, peerB} {
		line, err := protocol.NewReader(peer).ReadLine()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(line) != "tick" {
			t.Errorf("expected %q, got %q", "tick", string(line))
		}
	}
}

func TestEnqueueFullQueueReturnsFalse(t *testing.T) {
	// No writer goroutine: the queue fills and stays full.
	c := &clientConn{
		id:     uuid.New(),
		sendCh: make(chan []byte, sendBufferSize),
		quit:   make(chan struct{}),
		flush:  make(chan struct{}),
	}

	for i := 0; i < sendBufferSize; i++ {
		if !c.enqueue([]byte("x\n")) {
			t.Fatalf("enqueue %d failed below capacity", i)
		}
	}
	if c.enqueue([]byte("x\n")) {
		t.Error("enqueue succeeded on a full queue")
	}
}

func TestBroadcastDropsDeadClient(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	_, peerA := registerPipe(t, r)
	_, peerB := registerPipe(t, r)

	// Peer B goes away; its writer fails on the next delivery and the
	// registry forgets it without disturbing peer A.
	peerB.Close()
	r.Broadcast([]byte("tick\n"))

	line, err := protocol.NewReader(peerA).ReadLine()
	if err != nil {
		t.Fatalf("surviving client read failed: %v", err)
	}
	if string(line) != "tick" {
		t.Errorf("expected %q, got %q", "tick", string(line))
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("expected dead client to be dropped, have %d clients", got)
	}
}

func TestUnregisterAfterFlushDeliversQueuedFrames(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	c, peer := registerPipe(t, r)

	r.SendTo(c.id, []byte("final\n"))
	r.UnregisterAfterFlush(c.id)

	reader := protocol.NewReader(peer)
	line, err := reader.ReadLine()
	if err != nil {
		t.Fatalf("queued frame lost: %v", err)
	}
	if string(line) != "final" {
		t.Errorf("expected %q, got %q", "final", string(line))
	}

	if _, err := reader.ReadLine(); err != io.EOF {
		t.Errorf("expected connection closed after flush, got %v", err)
	}
	if got := r.Len(); got != 0 {
		t.Errorf("expected empty registry, have %d clients", got)
	}
}

func TestCloseAllSendsFinalFrame(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	_, peerA := registerPipe(t, r)
	_, peerB := registerPipe(t, r)

	r.CloseAll([]byte("bye\n"))

	for _, peer := range []net.Conn{peerA, peerB} {
		reader := protocol.NewReader(peer)
		line, err := reader.ReadLine()
		if err != nil {
			t.Fatalf("final frame lost: %v", err)
		}
		if string(line) != "bye" {
			t.Errorf("expected %q, got %q", "bye", string(line))
		}
		if _, err := reader.ReadLine(); err != io.EOF {
			t.Errorf("expected connection closed, got %v", err)
		}
	}

	r.Wait()
	if got := r.Len(); got != 0 {
		t.Errorf("expected empty registry after CloseAll, have %d clients", got)
	}
}
