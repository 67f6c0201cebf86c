package proxy

import (
	"net"
	"testing"
	"time"

	"load-balancer/internal/backend"
	"load-balancer/internal/pool"
	"load-balancer/internal/router"
	"load-balancer/internal/stats"
)

// echoTargetBackend starts a TCP server that replies with a fixed HTTP
// response embedding whatever request-target it received, so tests can
// assert on the rewritten path (S2 in spec.md §8).
func echoTargetBackend(t *testing.T) (addr string, close func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 8*1024)
				n, _ := c.Read(buf)
				target := extractTarget(buf[:n])
				body := "target=" + target
				c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body))
			}(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func extractTarget(raw []byte) string {
	end := 0
	for end < len(raw) && raw[end] != '\n' {
		end++
	}
	line := string(raw[:end])
	fields := splitFields(line)
	if len(fields) >= 2 {
		return fields[1]
	}
	return ""
}

func splitFields(s string) []string {
	var fields []string
	cur := ""
	for _, r := range s {
		if r == ' ' || r == '\r' {
			if cur != "" {
				fields = append(fields, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		fields = append(fields, cur)
	}
	return fields
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func hostPort(addr string) (string, int) {
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	for _, r := range portStr {
		port = port*10 + int(r-'0')
	}
	return host, port
}

func dialAndSend(t *testing.T, ln net.Listener, raw string) []byte {
	t.Helper()
	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer clientConn.Close()
	clientConn.Write([]byte(raw))
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16*1024)
	n, _ := clientConn.Read(buf)
	return buf[:n]
}

func newTestProxyListener(t *testing.T, table *router.Table) (net.Listener, *stats.Counters) {
	t.Helper()
	counters := &stats.Counters{}
	p := New(counters, stats.NewActivityLog(10), func() *router.Table { return table })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go p.HandleConn(conn)
		}
	}()
	return ln, counters
}

func TestProxy_404WhenNoServiceMatches(t *testing.T) {
	table := router.NewTable(nil)
	ln, counters := newTestProxyListener(t, table)
	defer ln.Close()

	resp := dialAndSend(t, ln, "GET /nope HTTP/1.1\r\nHost: x\r\n\r\n")
	if !containsStatus(resp, "404") {
		t.Fatalf("expected 404 response, got %q", resp)
	}
	if got := counters.FailedRequests(); got != 1 {
		t.Fatalf("expected failedRequests=1, got %d", got)
	}
}

func TestProxy_RewritesTargetBeforeForwarding(t *testing.T) {
	backendAddr, closeBackend := echoTargetBackend(t)
	defer closeBackend()
	host, port := hostPort(backendAddr)

	be := backend.New("catalog-1", host, port, 3, 30*time.Second)
	svc := pool.New("/catalog/", pool.RoundRobin, []*backend.Backend{be})
	table := router.NewTable([]*pool.ServicePool{svc})

	ln, _ := newTestProxyListener(t, table)
	defer ln.Close()

	resp := dialAndSend(t, ln, "GET /catalog/list.html HTTP/1.1\r\nHost: x\r\n\r\n")
	if !containsStatus(resp, "200") {
		t.Fatalf("expected 200 response, got %q", resp)
	}
	if !containsBody(resp, "target=/list.html") {
		t.Fatalf("expected upstream target to be rewritten to /list.html, got %q", resp)
	}
}

func TestProxy_503WhenNoHealthyBackend(t *testing.T) {
	be := backend.New("dead-1", "127.0.0.1", 1, 1, time.Hour)
	be.RecordFailure(time.Now()) // trips DOWN with maxFails=1
	svc := pool.New("/y/", pool.RoundRobin, []*backend.Backend{be})
	table := router.NewTable([]*pool.ServicePool{svc})

	ln, counters := newTestProxyListener(t, table)
	defer ln.Close()

	resp := dialAndSend(t, ln, "GET /y/thing HTTP/1.1\r\nHost: x\r\n\r\n")
	if !containsStatus(resp, "503") {
		t.Fatalf("expected 503 response, got %q", resp)
	}
	if got := counters.FailedRequests(); got != 1 {
		t.Fatalf("expected failedRequests=1, got %d", got)
	}
}

func TestProxy_502WhenAllAttemptsFail(t *testing.T) {
	// Port with nothing listening: dial will fail immediately.
	ln0, port := func() (net.Listener, int) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		p := ln.Addr().(*net.TCPAddr).Port
		ln.Close()
		return ln, p
	}()
	_ = ln0

	be := backend.New("dead-1", "127.0.0.1", port, 100, time.Hour) // won't trip DOWN within 3 attempts
	svc := pool.New("/z/", pool.RoundRobin, []*backend.Backend{be})
	table := router.NewTable([]*pool.ServicePool{svc})

	ln, counters := newTestProxyListener(t, table)
	defer ln.Close()

	resp := dialAndSend(t, ln, "GET /z/thing HTTP/1.1\r\nHost: x\r\n\r\n")
	if !containsStatus(resp, "502") {
		t.Fatalf("expected 502 response, got %q", resp)
	}
	if got := counters.FailedRequests(); got != maxAttempts {
		t.Fatalf("expected failedRequests=%d, got %d", maxAttempts, got)
	}
	if got := be.ActiveConnections(); got != 0 {
		t.Fatalf("expected active connections to return to 0 after failed attempts, got %d", got)
	}
}

func TestProxy_HealthEndpoint(t *testing.T) {
	table := router.NewTable(nil)
	ln, _ := newTestProxyListener(t, table)
	defer ln.Close()

	resp := dialAndSend(t, ln, "GET /health HTTP/1.1\r\nHost: x\r\n\r\n")
	if !containsStatus(resp, "200") || !containsBody(resp, "healthy") {
		t.Fatalf("expected 200 healthy response, got %q", resp)
	}
}

func containsStatus(resp []byte, code string) bool {
	return bytesContains(resp, []byte(" "+code+" ")) || bytesContains(resp, []byte(" "+code+"\r\n"))
}

func containsBody(resp []byte, needle string) bool {
	return bytesContains(resp, []byte(needle))
}

func bytesContains(haystack, needle []byte) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
