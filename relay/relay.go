//go:build unix

package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wwqgtxx/fdsplice/config"
	"github.com/wwqgtxx/fdsplice/logger"
	"github.com/wwqgtxx/fdsplice/proxy"
	"github.com/wwqgtxx/fdsplice/task"
	"github.com/wwqgtxx/fdsplice/taskio"
)

const (
	DialTimeout     = 8 * time.Second
	KeepAlivePeriod = 30 * time.Second
)

// Relay accepts connections on BindAddress and splices each one with a fresh
// connection to TargetAddress.
type Relay struct {
	bindAddress   string
	targetAddress string
	bufferSize    int
	waitTimeout   time.Duration

	dialer   proxy.ContextDialer
	proxy    string
	splicer  *taskio.Splicer
	logger   *zap.Logger
	sessions sync.WaitGroup
}

func New(cfg config.RelayConfig, sc config.SpliceConfig, splicer *taskio.Splicer, l *zap.Logger) (*Relay, error) {
	dialer, proxyStr, err := proxy.FromProxyString(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	if splicer == nil {
		splicer = &taskio.Splicer{}
	}
	return &Relay{
		bindAddress:   cfg.BindAddress,
		targetAddress: cfg.TargetAddress,
		bufferSize:    sc.BufferSize,
		waitTimeout:   sc.WaitTimeoutDuration(),
		dialer:        dialer,
		proxy:         proxyStr,
		splicer:       splicer,
		logger:        logger.OrNop(l).With(zap.String("bind", cfg.BindAddress)),
	}, nil
}

func (r *Relay) Target() string {
	return r.targetAddress
}

func (r *Relay) Proxy() string {
	return r.proxy
}

func (r *Relay) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", r.bindAddress)
	if err != nil {
		return err
	}
	return r.Serve(ctx, ln)
}

// Serve handles connections from ln until ctx is done, then closes ln and
// waits for the running sessions to end.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	r.logger.Info("New Relay Listening on", zap.Stringer("addr", ln.Addr()),
		zap.String("target", r.targetAddress), zap.String("proxy", r.proxy))
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer r.sessions.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				r.logger.Warn("accept", zap.Error(err))
				continue
			}
			_ = ln.Close()
			return err
		}
		r.sessions.Add(1)
		go func() {
			defer r.sessions.Done()
			r.handle(ctx, conn)
		}()
	}
}

func (r *Relay) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r.logger.Info("Incoming --> ", zap.Stringer("remote", conn.RemoteAddr()),
		zap.String("target", r.targetAddress), zap.String("proxy", r.proxy))

	target, err := r.dial(ctx)
	if err != nil {
		r.logger.Warn("dial", zap.String("target", r.targetAddress), zap.Error(err))
		return
	}
	defer target.Close()

	err = r.Tunnel(ctx, conn, target)
	switch {
	case errors.Is(err, taskio.ErrCanceled):
		r.logger.Debug("tunnel canceled", zap.Stringer("remote", conn.RemoteAddr()))
	default:
		var se *taskio.SpliceError
		if errors.As(err, &se) {
			r.logger.Debug("tunnel closed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			return
		}
		r.logger.Warn("tunnel", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
	}
}

func (r *Relay) dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	return r.dialer.DialContext(ctx, "tcp", r.targetAddress)
}

// Tunnel splices client and target until one side is finished or ctx is
// done. The connections stay open; the caller closes them.
func (r *Relay) Tunnel(ctx context.Context, client, target net.Conn) error {
	setKeepAlive(client)
	setKeepAlive(target)

	cfd, err := dupConn(client)
	if err != nil {
		return err
	}
	defer unix.Close(cfd)
	tfd, err := dupConn(target)
	if err != nil {
		return err
	}
	defer unix.Close(tfd)

	t, err := task.New(r.waitTimeout)
	if err != nil {
		return err
	}
	defer t.Close()
	for _, fd := range []int{cfd, tfd} {
		if err := t.AddFD(fd, task.EventRead|task.EventWrite); err != nil {
			return fmt.Errorf("register fd: %w", err)
		}
	}

	yielder, stop := task.ContextYielder(ctx, t)
	defer stop()
	return r.splicer.Splice(t, cfd, cfd, tfd, tfd, r.bufferSize, yielder)
}

// dupConn returns a non-blocking duplicate of the descriptor behind c.
func dupConn(c net.Conn) (int, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("%T has no raw descriptor", c)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	var dupErr error
	err = raw.Control(func(s uintptr) {
		fd, dupErr = taskio.Dup(int(s))
	})
	if err != nil {
		return -1, err
	}
	return fd, dupErr
}

func setKeepAlive(c net.Conn) {
	if conn, ok := c.(interface{ SetKeepAlive(keepalive bool) error }); ok {
		_ = conn.SetKeepAlive(true)
	}
	if conn, ok := c.(interface{ SetKeepAlivePeriod(d time.Duration) error }); ok {
		_ = conn.SetKeepAlivePeriod(KeepAlivePeriod)
	}
}
