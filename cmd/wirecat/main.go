package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/danmuck/wirectl/internal/transport"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: wirecat <host:port>")
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "wirecat: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string) error {
	sock, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	conn, err := transport.NewConn(sock, transport.DefaultConnConfig(), printHandler{})
	if err != nil {
		_ = sock.Close()
		return err
	}
	defer conn.Disconnect()

	go conn.Listen()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := conn.Send(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// printHandler writes received frames to stdout and exits on teardown.
type printHandler struct {
	transport.NopHandler
}

func (printHandler) OnMessage(_ *transport.Conn, msg string) {
	fmt.Println(msg)
}

func (printHandler) OnDisconnect(*transport.Conn) {
	fmt.Fprintln(os.Stderr, "wirecat: disconnected")
	os.Exit(0)
}
