// Package proxy implements the per-connection request pipeline
// (spec.md §4.6): frame the request, route it, rewrite its path and
// headers, forward it to a selected backend with retry, and relay the
// response byte-for-byte back to the client.
package proxy

import (
	"log"
	"net"
	"strings"
	"time"

	"load-balancer/internal/backend"
	"load-balancer/internal/httpframing"
	"load-balancer/internal/router"
	"load-balancer/internal/stats"
)

const (
	maxAttempts    = 3
	forwardTimeout = 60 * time.Second
)

// Proxy holds everything one accepted client connection needs to be
// routed and forwarded.
type Proxy struct {
	Counters *stats.Counters
	Activity *stats.ActivityLog
	Table    func() *router.Table // indirection lets a config reload swap the live table
}

// New creates a Proxy over the given counters, activity log, and table
// accessor.
func New(counters *stats.Counters, activity *stats.ActivityLog, table func() *router.Table) *Proxy {
	return &Proxy{Counters: counters, Activity: activity, Table: table}
}

func (p *Proxy) record(level stats.ActivityLevel, message string) {
	if p.Activity != nil {
		p.Activity.Record(level, message)
	}
}

// HandleConn runs the full pipeline for one accepted client connection
// and always closes it before returning.
func (p *Proxy) HandleConn(conn net.Conn) {
	defer conn.Close()

	clientAddr := clientIP(conn.RemoteAddr().String())

	buf := make([]byte, httpframing.MaxHeadSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}
	p.Counters.IncTotalRequests()

	req, err := httpframing.Parse(buf[:n])
	if err != nil {
		return
	}

	if handled := p.serveWellKnown(conn, req); handled {
		return
	}

	table := p.Table()
	svc := table.Match(req.Target)
	if svc == nil {
		writeStatus(conn, 404, "Service not found")
		p.Counters.IncFailedRequests()
		msg := "404 " + req.Method + " " + req.Target + " from " + clientAddr
		log.Printf("proxy: %s", msg)
		p.record(stats.LevelWarning, msg)
		return
	}

	rewriteTarget(req, svc.PathPrefix)

	responded := false
	for attempt := 0; attempt < maxAttempts; attempt++ {
		be := svc.Select(clientAddr)
		if be == nil {
			writeStatus(conn, 503, "No healthy backends")
			p.Counters.IncFailedRequests()
			msg := "503 " + req.Method + " " + req.Target + " from " + clientAddr
			log.Printf("proxy: %s", msg)
			p.record(stats.LevelError, msg)
			responded = true
			break
		}

		be.BeginRequest()
		ok := p.forward(conn, req, be, clientAddr)
		be.EndRequest()

		if ok {
			be.RecordSuccess()
			msg := "200 " + req.Method + " " + req.Target + " -> " + be.Name + " from " + clientAddr
			log.Printf("proxy: %s", msg)
			p.record(stats.LevelSuccess, msg)
			responded = true
			break
		}

		be.RecordFailure(time.Now())
		p.Counters.IncFailedRequests()
		msg := "502 " + req.Method + " " + req.Target + " -> " + be.Name + " from " + clientAddr
		log.Printf("proxy: %s", msg)
		p.record(stats.LevelWarning, msg)
	}

	if !responded {
		writeStatus(conn, 502, "Backend error")
	}
}

// serveWellKnown short-circuits routing for /health and the landing
// page (spec.md §4.6 step 4).
func (p *Proxy) serveWellKnown(conn net.Conn, req *httpframing.Request) bool {
	switch req.Target {
	case "/health":
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\nhealthy\n"))
		return true
	case "/", "/index.html":
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nConnection: close\r\n\r\n" + landingPageHTML))
		return true
	}
	return false
}

// rewriteTarget strips the matched prefix and prepends "/", per
// spec.md §4.6 step 6.
func rewriteTarget(req *httpframing.Request, prefix string) {
	rest := strings.TrimPrefix(req.Target, prefix)
	req.Target = "/" + rest
}

// forward implements the forward() contract of spec.md §4.6: fresh
// upstream socket, header injection, request write, response relay.
func (p *Proxy) forward(clientConn net.Conn, req *httpframing.Request, be *backend.Backend, clientAddr string) bool {
	upstream, err := net.DialTimeout("tcp", be.Addr(), forwardTimeout)
	if err != nil {
		return false
	}
	defer upstream.Close()
	_ = upstream.SetDeadline(time.Now().Add(forwardTimeout))

	req.SetHeader("X-Real-IP", clientAddr)
	req.SetHeader("X-Forwarded-For", clientAddr)
	req.SetHeader("X-Forwarded-Proto", "http")
	req.SetHeader("Connection", "close")

	out := req.Serialize()
	written, err := upstream.Write(out)
	if err != nil {
		return false
	}
	p.Counters.AddBytesUp(int64(written))

	response := readAll(upstream)
	p.Counters.AddBytesDown(int64(len(response)))

	if len(response) == 0 {
		return false
	}
	clientConn.Write(response)
	return true
}

// readAll reads from conn until half-close or error.
func readAll(conn net.Conn) []byte {
	var out []byte
	buf := make([]byte, 8*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			return out
		}
	}
}

func writeStatus(conn net.Conn, code int, body string) {
	status := map[int]string{
		404: "404 Not Found",
		502: "502 Bad Gateway",
		503: "503 Service Unavailable",
	}[code]
	conn.Write([]byte("HTTP/1.1 " + status + "\r\nConnection: close\r\n\r\n" + body))
}

// clientIP strips the port from a RemoteAddr() string, falling back to
// the raw string if it has no port.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

const landingPageHTML = `<!DOCTYPE html>
<html>
<head><title>Load Balancer</title></head>
<body>
<h1>Load Balancer</h1>
<p>See <a href="/health">/health</a> for a liveness check.</p>
</body>
</html>`
