package transport

import (
	"context"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultDialer builds a Dialer with TCP keep-alive enabled, grounded
// on the load-test client's connection setup: cloud load balancers
// drop idle connections without it.
func DefaultDialer(handshakeTimeout time.Duration) Dialer {
	d := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			nd := &net.Dialer{Timeout: handshakeTimeout, KeepAlive: 30 * time.Second}
			conn, err := nd.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				tcpConn.SetKeepAlive(true)
				tcpConn.SetKeepAlivePeriod(30 * time.Second)
			}
			return conn, nil
		},
	}
	return func(ctx context.Context, url string) (*websocket.Conn, error) {
		conn, _, err := d.DialContext(ctx, url, nil)
		return conn, err
	}
}
