package reconnect

import (
	"context"
	"net"
	"time"
)

// DialChecker considers the host online when a dial to Address succeeds
type DialChecker struct {
	Network string // "udp" or "tcp"
	Address string
	Timeout time.Duration
}

// Online implements OnlineChecker
func (c DialChecker) Online(ctx context.Context) bool {
	if c.Address == "" {
		return true
	}
	network := c.Network
	if network == "" {
		network = "udp"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, network, c.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
