package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/wirectl/internal/testutil/testlog"
)

// recordingHandler collects notifications for assertions.
type recordingHandler struct {
	mu          sync.Mutex
	messages    []string
	connects    atomic.Int64
	disconnects atomic.Int64
	gone        chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{gone: make(chan struct{}, 8)}
}

func (h *recordingHandler) OnConnect(*Conn) {
	h.connects.Add(1)
}

func (h *recordingHandler) OnMessage(_ *Conn, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) OnDisconnect(*Conn) {
	h.disconnects.Add(1)
	h.gone <- struct{}{}
}

func (h *recordingHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.messages))
	copy(out, h.messages)
	return out
}

func pipeConn(t *testing.T, cfg ConnConfig, h Handler) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c, err := NewConn(server, cfg, h)
	if err != nil {
		t.Fatalf("new conn: %v", err)
	}
	t.Cleanup(func() {
		c.Disconnect()
		_ = client.Close()
	})
	return c, client
}

func TestReadOneFramesAcrossReads(t *testing.T) {
	testlog.Start(t)
	c, client := pipeConn(t, DefaultConnConfig(), nil)

	go func() {
		_, _ = client.Write([]byte("hello\nwor"))
		_, _ = client.Write([]byte("ld\n"))
	}()

	msg, ok := c.ReadOne()
	if !ok || msg != "hello" {
		t.Fatalf("first read msg=%q ok=%v", msg, ok)
	}
	msg, ok = c.ReadOne()
	if !ok || msg != "world" {
		t.Fatalf("second read msg=%q ok=%v", msg, ok)
	}
}

func TestReadOneDrainsBurstWithoutMoreReads(t *testing.T) {
	testlog.Start(t)
	c, client := pipeConn(t, DefaultConnConfig(), nil)

	go func() {
		_, _ = client.Write([]byte("a\nb\n"))
	}()

	for _, want := range []string{"a", "b"} {
		msg, ok := c.ReadOne()
		if !ok || msg != want {
			t.Fatalf("msg=%q ok=%v want=%q", msg, ok, want)
		}
	}
}

func TestOversizeFrameDisconnects(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHandler()
	c, client := pipeConn(t, ConnConfig{MaxMessageSize: 5}, h)

	go func() {
		_, _ = client.Write([]byte("toolong"))
	}()

	msg, ok := c.ReadOne()
	if ok {
		t.Fatalf("unexpected message %q", msg)
	}
	if c.Connected() {
		t.Fatalf("conn should be disconnected")
	}
	if got := h.disconnects.Load(); got != 1 {
		t.Fatalf("disconnect notifications=%d", got)
	}
}

func TestPeerEOFDisconnectsSilently(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHandler()
	c, client := pipeConn(t, DefaultConnConfig(), h)

	_ = client.Close()
	if msg, ok := c.ReadOne(); ok {
		t.Fatalf("unexpected message %q", msg)
	}
	if c.Connected() {
		t.Fatalf("conn should be disconnected")
	}
	if got := h.disconnects.Load(); got != 1 {
		t.Fatalf("disconnect notifications=%d", got)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHandler()
	c, client := pipeConn(t, DefaultConnConfig(), h)

	c.Disconnect()
	c.Disconnect()
	_ = client.Close()
	c.Disconnect()

	if got := h.disconnects.Load(); got != 1 {
		t.Fatalf("disconnect notifications=%d", got)
	}
}

func TestSendAppendsDelimiter(t *testing.T) {
	testlog.Start(t)
	c, client := pipeConn(t, DefaultConnConfig(), nil)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := client.Read(buf)
		got <- buf[:n]
	}()

	if err := c.Send("ping"); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case b := <-got:
		if string(b) != "ping\n" {
			t.Fatalf("wire bytes=%q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for wire bytes")
	}
}

func TestSendAfterDisconnect(t *testing.T) {
	testlog.Start(t)
	c, _ := pipeConn(t, DefaultConnConfig(), nil)

	c.Disconnect()
	if err := c.Send("late"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestSendRejectsDelimiterPayload(t *testing.T) {
	testlog.Start(t)
	c, _ := pipeConn(t, DefaultConnConfig(), nil)

	if err := c.Send("two\nframes"); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestSendTimeoutOnBlockedPeer(t *testing.T) {
	testlog.Start(t)
	// net.Pipe writes block until the peer reads; with nobody reading the
	// configured timeout must bound the Send call.
	c, _ := pipeConn(t, ConnConfig{SendTimeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	err := c.Send("stuck")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("send did not respect timeout")
	}
}

func TestListenDeliversInOrder(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHandler()
	c, client := pipeConn(t, DefaultConnConfig(), h)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Listen()
	}()

	go func() {
		_, _ = client.Write([]byte("a\nb\nc\n"))
		_ = client.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listen loop did not exit")
	}
	got := h.snapshot()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected messages: %v", got)
	}
	if got := h.disconnects.Load(); got != 1 {
		t.Fatalf("disconnect notifications=%d", got)
	}
}

func TestStopListeningHaltsLoop(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHandler()
	c, client := pipeConn(t, DefaultConnConfig(), h)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Listen()
	}()

	// Prove the loop is running before cancelling it.
	go func() {
		_, _ = client.Write([]byte("ready\n"))
	}()
	waitFor(t, 2*time.Second, func() bool { return len(h.snapshot()) == 1 }, "first frame delivered")

	c.StopListening()
	// The loop is blocked in a read; the next frame wakes it so it can
	// observe the cancellation. That frame is not delivered.
	go func() {
		_, _ = client.Write([]byte("wakeup\n"))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listen loop did not exit after stop")
	}
	if got := h.snapshot(); len(got) != 1 || got[0] != "ready" {
		t.Fatalf("unexpected messages after stop: %v", got)
	}
	if !c.Connected() {
		t.Fatalf("stop listening must not disconnect")
	}
}

// gatedHandler parks the listen loop inside the message notification until
// the test releases it, pinning the loop at a known point.
type gatedHandler struct {
	*recordingHandler
	gate chan struct{}
}

func (h *gatedHandler) OnMessage(c *Conn, msg string) {
	h.recordingHandler.OnMessage(c, msg)
	<-h.gate
}

func TestListenRestartReplacesPriorLoop(t *testing.T) {
	testlog.Start(t)
	h := &gatedHandler{recordingHandler: newRecordingHandler(), gate: make(chan struct{})}
	c, client := pipeConn(t, DefaultConnConfig(), h)

	prior := make(chan struct{})
	go func() {
		defer close(prior)
		c.Listen()
	}()

	go func() {
		_, _ = client.Write([]byte("first\n"))
	}()
	waitFor(t, 2*time.Second, func() bool { return len(h.snapshot()) == 1 }, "first frame delivered")

	// The old loop is parked in the handler. A restarted Listen begins by
	// replacing the cancellation signal; once the handler returns, the old
	// loop must observe the cancel and exit instead of reading again.
	restarted := c.beginListen()
	close(h.gate)

	select {
	case <-prior:
	case <-time.After(2 * time.Second):
		t.Fatalf("prior listen loop did not exit after restart")
	}
	if restarted.Err() != nil {
		t.Fatalf("replacement signal already cancelled: %v", restarted.Err())
	}
	if !c.Connected() {
		t.Fatalf("restart must not disconnect")
	}

	// A fresh loop takes over delivery on the same conn.
	go c.Listen()
	go func() {
		_, _ = client.Write([]byte("second\n"))
	}()
	waitFor(t, 2*time.Second, func() bool {
		got := h.snapshot()
		return len(got) == 2 && got[1] == "second"
	}, "replacement loop delivers")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestSinceLastMessageTracksParsedFrames(t *testing.T) {
	testlog.Start(t)
	c, client := pipeConn(t, DefaultConnConfig(), nil)

	go func() {
		_, _ = client.Write([]byte("tick\n"))
	}()
	if _, ok := c.ReadOne(); !ok {
		t.Fatalf("expected message")
	}
	if idle := c.SinceLastMessage(); idle > time.Minute {
		t.Fatalf("unexpected idle duration: %v", idle)
	}
}

func TestNewConnValidatesConfig(t *testing.T) {
	testlog.Start(t)
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	if _, err := NewConn(server, ConnConfig{MaxMessageSize: -1}, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unexpected err: %v", err)
	}
}
