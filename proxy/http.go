// Copyright 2017 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

func init() {
	RegisterDialerType("http", newHTTPDialer)
}

func newHTTPDialer(proxyURL *url.URL, forward Dialer) (Dialer, error) {
	return &httpDialer{
		addr:    proxyAddr(proxyURL),
		auth:    basicAuth(proxyURL.User),
		forward: NewContextDialer(forward),
	}, nil
}

// proxyAddr returns the host:port of u, filling in the scheme's default port.
func proxyAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func basicAuth(user *url.Userinfo) string {
	if user == nil {
		return ""
	}
	password, ok := user.Password()
	if !ok {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user.Username()+":"+password))
}

// httpDialer opens a tunnel to addr with an HTTP CONNECT request.
type httpDialer struct {
	addr    string
	auth    string
	forward ContextDialer
}

func (d *httpDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *httpDialer) DialContext(ctx context.Context, network, addr string) (conn net.Conn, err error) {
	conn, err = d.forward.DialContext(ctx, network, d.addr)
	if err != nil {
		return nil, err
	}
	done := SetupContextForConn(ctx, conn)
	defer done(&err)
	if err = d.connect(conn, addr); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *httpDialer) connect(conn net.Conn, addr string) error {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if d.auth != "" {
		req.Header.Set("Proxy-Authorization", d.auth)
	}
	if err := req.Write(conn); err != nil {
		return err
	}

	// The proxy does not speak before the request, so the buffered reader
	// cannot swallow tunnel bytes.
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy: CONNECT %s: %s", addr, strings.TrimSpace(resp.Status))
	}
	return nil
}
