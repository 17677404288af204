package proxy

import (
	"context"
	"net"
	"time"

	xproxy "golang.org/x/net/proxy"
)

type (
	Dialer        = xproxy.Dialer
	ContextDialer = xproxy.ContextDialer
)

var (
	Direct             = xproxy.Direct
	FromURL            = xproxy.FromURL
	FromEnvironment    = xproxy.FromEnvironment
	RegisterDialerType = xproxy.RegisterDialerType
)

// NewContextDialer upgrades d to a ContextDialer. Dialers without a context
// aware Dial are raced against ctx.
func NewContextDialer(d Dialer) ContextDialer {
	if xd, ok := d.(ContextDialer); ok {
		return xd
	}
	return contextDialer{d}
}

type contextDialer struct {
	Dialer
}

func (d contextDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if ctx.Done() == nil {
		return d.Dial(network, addr)
	}
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := d.Dial(network, addr)
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// SetupContextForConn bounds the blocking I/O on conn by ctx until the
// returned func is called. The func replaces *err with ctx.Err() when the
// failure was caused by ctx.
func SetupContextForConn(ctx context.Context, conn net.Conn) func(*error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	return func(err *error) {
		stop()
		if ctxErr := ctx.Err(); ctxErr != nil && err != nil && *err != nil {
			*err = ctxErr
		}
		_ = conn.SetDeadline(time.Time{})
	}
}
