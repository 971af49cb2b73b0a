package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestOpenOnErrorPolicy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		open bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"wrapped deadline", &url.Error{Op: "Head", URL: "http://x", Err: context.DeadlineExceeded}, false},
		{"cancelled", context.Canceled, false},
		{"net timeout", &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}, false},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"connection reset", &url.Error{Op: "Head", URL: "http://x", Err: syscall.ECONNRESET}, true},
		{"eof", io.EOF, true},
		{"malformed response", errors.New(`net/http: HTTP/1.x transport connection broken: malformed HTTP response "SSH-2.0-OpenSSH_9.6"`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, openOnError(tt.err))
		})
	}
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestHTTPCheckerOpenOnHTTPResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.Listener.Addr().String())
	assert.True(t, NewHTTPChecker().Check(context.Background(), host, port, time.Second))
}

func TestHTTPCheckerOpenOnNonHTTPGreeting(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = fmt.Fprint(conn, "SSH-2.0-OpenSSH_9.6\r\n")
			_ = conn.Close()
		}
	}()

	host, port := splitHostPort(t, ln.Addr().String())
	assert.True(t, NewHTTPChecker().Check(context.Background(), host, port, time.Second))
}

func TestHTTPCheckerRefusedCountsAsOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port := splitHostPort(t, ln.Addr().String())
	require.NoError(t, ln.Close())

	assert.True(t, NewHTTPChecker().Check(context.Background(), host, port, time.Second),
		"a refusal is an answer, so the port is reported open")
}

func TestHTTPCheckerSilentPeerTimesOutClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var mu sync.Mutex
	var held []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn)
			mu.Unlock()
		}
	}()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			_ = c.Close()
		}
	}()

	host, port := splitHostPort(t, ln.Addr().String())
	start := time.Now()
	open := NewHTTPChecker().Check(context.Background(), host, port, 150*time.Millisecond)
	assert.False(t, open)
	assert.Less(t, time.Since(start), 2*time.Second, "checker must not block past its deadline")
}

func TestHTTPCheckerZeroTimeoutIsClosed(t *testing.T) {
	assert.False(t, NewHTTPChecker().Check(context.Background(), "127.0.0.1", 80, 0))
}

func TestPortCatalogIsACopy(t *testing.T) {
	ports := PortCatalog()
	require.Len(t, ports, 14)
	ports[0] = 1
	assert.Equal(t, 21, PortCatalog()[0])
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "SSH", ServiceName(22))
	assert.Equal(t, "JetDirect", ServiceName(9100))
	assert.Equal(t, "TCP 7", ServiceName(7))
}
