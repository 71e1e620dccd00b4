package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/wirectl/internal/observability"
	"github.com/danmuck/wirectl/internal/wire"
)

const readChunkSize = 4 * 1024

// Conn is one live peer with its own framing state. Server-side conns are
// built by AcceptOne with a registry-assigned id; client-side conns come
// from NewConn with id 0. A conn is Connected from construction until the
// single teardown, which is triggered by Disconnect, peer EOF, a transport
// read error, or a frame-size violation.
type Conn struct {
	id          uint64
	sock        net.Conn
	dec         *wire.Decoder
	handler     Handler
	sendTimeout time.Duration
	delim       byte

	remoteHost string
	remotePort int

	connected atomic.Bool
	lastMsg   atomic.Int64

	sendMu  sync.Mutex
	readBuf []byte

	listenMu     sync.Mutex
	listenCancel context.CancelFunc

	closeOnce sync.Once
	onClosed  func(*Conn)

	// metricsLabel is set for server-owned conns only.
	metricsLabel string
}

// NewConn wraps an established socket for client-side use.
func NewConn(sock net.Conn, cfg ConnConfig, h Handler) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dec, err := wire.NewDecoder(cfg.MaxMessageSize, cfg.Delimiter)
	if err != nil {
		return nil, err
	}
	return newConn(0, sock, dec, h, cfg)
}

func newConn(id uint64, sock net.Conn, dec *wire.Decoder, h Handler, cfg ConnConfig) (*Conn, error) {
	if h == nil {
		h = NopHandler{}
	}
	c := &Conn{
		id:          id,
		sock:        sock,
		dec:         dec,
		handler:     h,
		sendTimeout: cfg.SendTimeout,
		delim:       cfg.Delimiter,
		readBuf:     make([]byte, readChunkSize),
	}
	c.remoteHost, c.remotePort = splitRemote(sock.RemoteAddr())
	c.connected.Store(true)
	c.lastMsg.Store(time.Now().UnixNano())
	return c, nil
}

func splitRemote(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// ID is the registry-assigned connection id, 0 for client-side conns.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr is the peer host without the port.
func (c *Conn) RemoteAddr() string {
	return c.remoteHost
}

// RemotePort is the peer's source port.
func (c *Conn) RemotePort() int {
	return c.remotePort
}

// Connected reports liveness; false is terminal.
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// SinceLastMessage is the time since the last parsed frame, measured from
// construction when nothing has arrived yet.
func (c *Conn) SinceLastMessage() time.Duration {
	return time.Since(time.Unix(0, c.lastMsg.Load()))
}

// Send writes one delimiter-terminated frame. The payload must not contain
// the delimiter byte; it would silently split into two frames on the peer.
// A configured send timeout bounds the socket write.
func (c *Conn) Send(msg string) error {
	for i := 0; i < len(msg); i++ {
		if msg[i] == c.delim {
			return ErrInvalidMessage
		}
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}

	payload := make([]byte, 0, len(msg)+1)
	payload = append(payload, msg...)
	payload = append(payload, c.delim)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendTimeout > 0 {
		_ = c.sock.SetWriteDeadline(time.Now().Add(c.sendTimeout))
		defer func() { _ = c.sock.SetWriteDeadline(time.Time{}) }()
	}
	if _, err := c.sock.Write(payload); err != nil {
		return fmt.Errorf("transport: send conn_id=%d: %w", c.id, err)
	}
	return nil
}

// ReadOne blocks until one complete frame arrives and returns it.
// On EOF, a transport read error, or a frame-size violation it tears the
// connection down and returns ("", false); read failures are never
// surfaced as errors.
func (c *Conn) ReadOne() (string, bool) {
	for {
		frame, ok, err := c.dec.Next()
		if err != nil {
			c.Disconnect()
			return "", false
		}
		if ok {
			c.lastMsg.Store(time.Now().UnixNano())
			if c.metricsLabel != "" {
				observability.RecordMessage(c.metricsLabel, len(frame))
			}
			return string(frame), true
		}

		n, rerr := c.sock.Read(c.readBuf)
		if n > 0 {
			if err := c.dec.Append(c.readBuf[:n]); err != nil {
				c.Disconnect()
				return "", false
			}
			continue
		}
		if rerr != nil {
			c.Disconnect()
			return "", false
		}
	}
}

// Listen runs ReadOne in a loop and pushes each frame to the handler until
// the connection drops or StopListening is called. Starting a new loop
// replaces the previous cancellation signal; the old loop winds down on
// its own and callers must not assume it has already stopped.
func (c *Conn) Listen() {
	ctx := c.beginListen()
	for {
		if ctx.Err() != nil {
			return
		}
		msg, ok := c.ReadOne()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.handler.OnMessage(c, msg)
	}
}

func (c *Conn) beginListen() context.Context {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()
	if c.listenCancel != nil {
		c.listenCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.listenCancel = cancel
	return ctx
}

// StopListening asks the active listen loop to exit. The signal is
// cooperative: a loop blocked in a socket read keeps blocking until bytes
// arrive or the socket closes.
func (c *Conn) StopListening() {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()
	if c.listenCancel != nil {
		c.listenCancel()
		c.listenCancel = nil
	}
}

// Disconnect tears the connection down exactly once: cancels the listen
// loop, shuts both socket directions, and fires the disconnect
// notification. Closing the socket is what unblocks an in-flight read, so
// this is safe to call concurrently with a running listen loop and safe to
// call again after the peer already closed.
func (c *Conn) Disconnect() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.StopListening()
		if tc, ok := c.sock.(*net.TCPConn); ok {
			_ = tc.CloseRead()
			_ = tc.CloseWrite()
		}
		_ = c.sock.Close()
		if c.onClosed != nil {
			c.onClosed(c)
		}
		c.handler.OnDisconnect(c)
	})
}
