package scan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// portCatalog is the fixed set of TCP ports probed on every host.
var portCatalog = []int{21, 22, 23, 80, 443, 445, 554, 1723, 3389, 5000, 8080, 8443, 8888, 9100}

var knownServiceNames = map[int]string{
	21:   "FTP",
	22:   "SSH",
	23:   "Telnet",
	80:   "HTTP",
	443:  "HTTPS",
	445:  "SMB",
	554:  "RTSP",
	1723: "PPTP",
	3389: "RDP",
	5000: "UPnP/WS",
	8080: "HTTP Alt",
	8443: "HTTPS Alt",
	8888: "HTTP Alt",
	9100: "JetDirect",
}

// PortCatalog returns a copy of the probed port list.
func PortCatalog() []int {
	out := make([]int, len(portCatalog))
	copy(out, portCatalog)
	return out
}

// ServiceName returns a short label for a catalog port.
func ServiceName(port int) string {
	if name := knownServiceNames[port]; name != "" {
		return name
	}
	return fmt.Sprintf("TCP %d", port)
}

// Checker tests whether something listens on host:port. Implementations
// must return within timeout and must not panic.
type Checker interface {
	Check(ctx context.Context, host string, port int, timeout time.Duration) bool
}

// HTTPChecker probes a port with a bare HEAD request.
//
// A timeout means closed. Every other failure (refused, reset, a non-HTTP
// greeting, a TLS alert) means open: something on the other side answered.
// A refusing host is therefore reported as open too; that is the accepted
// cost of the heuristic.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTPChecker returns a checker that never reuses connections and never
// follows redirects.
func NewHTTPChecker() *HTTPChecker {
	transport := &http.Transport{
		Proxy:             nil,
		DialContext:       (&net.Dialer{}).DialContext,
		DisableKeepAlives: true,
	}
	return &HTTPChecker{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Check implements Checker.
func (c *HTTPChecker) Check(ctx context.Context, host string, port int, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return openOnError(err)
	}
	_ = resp.Body.Close()
	return true
}

// openOnError maps a failed probe onto a port state.
func openOnError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return true
}
