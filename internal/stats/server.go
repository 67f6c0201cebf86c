package stats

import (
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"load-balancer/internal/httpframing"
)

// Server serves one HTML or Prometheus-exposition response per
// connection accepted on the stats listener (spec.md §4.7,
// SPEC_FULL.md §4.10). Requests are not parsed beyond picking out the
// request target, since only /metrics needs to dispatch differently
// from the default HTML snapshot.
type Server struct {
	Counters *Counters
	Prom     *PromMetrics
	Activity *ActivityLog
	promLast *Counters

	// Views returns a fresh snapshot of every registered service and
	// its backends; supplied by the supervisor, which alone knows the
	// current Router table generation.
	Views func() []ServiceView
}

// NewServer wires a Server around the given counters, Prometheus
// registry handle, and activity log.
func NewServer(counters *Counters, prom *PromMetrics, activity *ActivityLog, views func() []ServiceView) *Server {
	return &Server{
		Counters: counters,
		Prom:     prom,
		Activity: activity,
		promLast: &Counters{},
		Views:    views,
	}
}

// HandleConn reads one request (best-effort; an unparsable or absent
// request still yields the default HTML snapshot), writes exactly one
// response, and closes conn.
func (s *Server) HandleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, httpframing.MaxHeadSize)
	n, _ := conn.Read(buf)

	target := ""
	if n > 0 {
		if req, err := httpframing.Parse(buf[:n]); err == nil {
			target = req.Target
		}
	}

	views := s.Views()

	if target == "/metrics" {
		conn.Write([]byte("HTTP/1.1 200 OK\r\n"))
		s.Prom.Refresh(s.Counters, views, s.promLast)
		rec := httptest.NewRecorder()
		promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		for k, vv := range rec.Header() {
			for _, v := range vv {
				conn.Write([]byte(k + ": " + v + "\r\n"))
			}
		}
		conn.Write([]byte("Connection: close\r\n\r\n"))
		conn.Write(rec.Body.Bytes())
		return
	}

	body := Snapshot(s.Counters, views, s.Activity.Recent(20))
	conn.Write([]byte("HTTP/1.1 200 OK\r\n"))
	conn.Write([]byte("Content-Type: text/html\r\n"))
	conn.Write([]byte("Connection: close\r\n\r\n"))
	conn.Write([]byte(body))
}
