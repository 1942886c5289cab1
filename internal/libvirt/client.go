package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocket is the qemu:///system daemon socket.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"
	// DefaultTimeout bounds the socket dial.
	DefaultTimeout = 5 * time.Second
)

// Conn owns one go-libvirt RPC connection. Consumers take the raw
// *libvirt.Libvirt through Libvirt() and declare their own narrow
// interfaces over it.
type Conn struct {
	libvirt *libvirt.Libvirt
	socket  string
}

// Connect dials the local libvirt daemon. Empty socketPath and zero timeout
// fall back to DefaultSocket and DefaultTimeout.
func Connect(socketPath string, timeout time.Duration) (*Conn, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Conn{libvirt: l, socket: socketPath}, nil
}

// ConnectWithContext is Connect that gives up when ctx is done. A connection
// that completes after cancellation is closed.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connection cancelled: %w", err)
	}

	type result struct {
		conn *Conn
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, timeout)
		resultCh <- result{conn: c, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-resultCh; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.conn, res.err
	}
}

// Close disconnects. It is safe to call on a nil or closed Conn.
func (c *Conn) Close() error {
	if c == nil || c.libvirt == nil {
		return nil
	}
	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}
	return nil
}

// Libvirt returns the underlying RPC client.
func (c *Conn) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Socket is the path this connection was dialed on.
func (c *Conn) Socket() string {
	return c.socket
}

// Ping checks the connection with a cheap RPC.
func (c *Conn) Ping() error {
	if c == nil || c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}
	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}
	return nil
}

// FormatVersion renders libvirt's packed version number
// (major*1000000 + minor*1000 + release) as "major.minor.release".
func FormatVersion(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v/1000)%1000, v%1000)
}
