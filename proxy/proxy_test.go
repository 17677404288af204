package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/nettest"
)

// serveConnect accepts one connection, answers the CONNECT request with
// status and, on success, echoes the tunnel bytes back.
func serveConnect(t *testing.T, ln net.Listener, status string) <-chan *http.Request {
	t.Helper()
	reqs := make(chan *http.Request, 1)
	go func() {
		defer close(reqs)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		reqs <- req
		if _, err := io.WriteString(conn, "HTTP/1.1 "+status+"\r\n\r\n"); err != nil {
			return
		}
		if status[0] == '2' {
			_, _ = io.Copy(conn, br)
		}
	}()
	return reqs
}

func TestHTTPConnect(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	reqs := serveConnect(t, ln, "200 Connection established")

	dialer, proxyStr, err := FromProxyString("http://user:secret@" + ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	if want := "http://" + ln.Addr().String(); proxyStr != want {
		t.Fatalf("proxy string = %q, want %q", proxyStr, want)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := dialer.DialContext(ctx, "tcp", "target.example:8080")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	req := <-reqs
	if req.Method != http.MethodConnect || req.Host != "target.example:8080" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Host)
	}
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:secret"))
	if got := req.Header.Get("Proxy-Authorization"); got != wantAuth {
		t.Fatalf("Proxy-Authorization = %q", got)
	}

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	msg := []byte("through the tunnel")
	if _, err := conn.Write(msg); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(msg))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestHTTPConnectRejected(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	serveConnect(t, ln, "403 Forbidden")

	dialer, _, err := FromProxyString("http://" + ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn, err := dialer.DialContext(context.Background(), "tcp", "target.example:8080")
	if err == nil {
		conn.Close()
		t.Fatal("dial succeeded through a rejecting proxy")
	}
	if !strings.Contains(err.Error(), "403 Forbidden") {
		t.Fatalf("err = %v", err)
	}
}

func TestFromProxyStringInvalid(t *testing.T) {
	if _, _, err := FromProxyString("://bad"); err == nil {
		t.Fatal("invalid url accepted")
	}
	if _, _, err := FromProxyString("gopher://127.0.0.1:70"); err == nil {
		t.Fatal("unknown scheme accepted")
	}
}

func TestProxyAddr(t *testing.T) {
	for _, tt := range []struct {
		in, want string
	}{
		{"http://proxy:3128", "proxy:3128"},
		{"http://proxy", "proxy:80"},
		{"https://proxy", "proxy:443"},
		{"http://[::1]", "[::1]:80"},
	} {
		u, err := url.Parse(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got := proxyAddr(u); got != tt.want {
			t.Errorf("proxyAddr(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	if got := basicAuth(nil); got != "" {
		t.Errorf("no user: %q", got)
	}
	if got := basicAuth(url.User("user")); got != "" {
		t.Errorf("user without password: %q", got)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:secret"))
	if got := basicAuth(url.UserPassword("user", "secret")); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

type slowDialer struct{ release chan struct{} }

func (d slowDialer) Dial(network, addr string) (net.Conn, error) {
	<-d.release
	return nil, io.EOF
}

func TestContextDialerCancel(t *testing.T) {
	d := slowDialer{release: make(chan struct{})}
	defer close(d.release)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewContextDialer(d).DialContext(ctx, "tcp", "x:1"); err != context.Canceled {
		t.Fatalf("err = %v", err)
	}
}

func TestSetupContextForConnCancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := SetupContextForConn(ctx, a)
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := a.Read(make([]byte, 1))
	done(&err)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
