package transport

// Handler receives transport notifications. Connect fires from the server
// accept loop, message fires from a connection's listen loop in parse
// order, and disconnect fires at most once per connection regardless of
// which path tore it down. Implementations must tolerate concurrent calls
// for different connections.
type Handler interface {
	OnConnect(c *Conn)
	OnMessage(c *Conn, msg string)
	OnDisconnect(c *Conn)
}

// NopHandler is an embeddable Handler that ignores every notification.
type NopHandler struct{}

func (NopHandler) OnConnect(*Conn) {}

func (NopHandler) OnMessage(*Conn, string) {}

func (NopHandler) OnDisconnect(*Conn) {}
