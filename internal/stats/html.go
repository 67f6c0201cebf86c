package stats

import (
	"fmt"
	"strings"
)

// Snapshot renders the operational HTML page spec.md §4.7 describes:
// the four counters, derived success rate, and one table per
// ServicePool listing each backend's name, address, health, in-flight
// count, and consecutive-failure count.
func Snapshot(c *Counters, services []ServiceView, recent []Activity) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html><html><head><title>Load Balancer Stats</title>")
	b.WriteString("<style>body{font-family:Arial;margin:20px;}table{border-collapse:collapse;width:100%;margin:20px 0;}")
	b.WriteString("th,td{border:1px solid #ddd;padding:8px;text-align:left;}th{background-color:#4CAF50;color:white;}")
	b.WriteString(".healthy{color:green;}.unhealthy{color:red;}</style></head><body>")

	b.WriteString("<h1>Load Balancer Statistics</h1>")

	b.WriteString("<h2>Overall Statistics</h2>")
	b.WriteString("<table><tr><th>Metric</th><th>Value</th></tr>")
	fmt.Fprintf(&b, "<tr><td>Total Requests</td><td>%d</td></tr>", c.TotalRequests())
	fmt.Fprintf(&b, "<tr><td>Failed Requests</td><td>%d</td></tr>", c.FailedRequests())
	fmt.Fprintf(&b, "<tr><td>Success Rate</td><td>%.2f%%</td></tr>", c.SuccessRate()*100)
	fmt.Fprintf(&b, "<tr><td>Bytes Up</td><td>%d</td></tr>", c.TotalBytesUp())
	fmt.Fprintf(&b, "<tr><td>Bytes Down</td><td>%d</td></tr>", c.TotalBytesDown())
	b.WriteString("</table>")

	b.WriteString("<h2>Services and Backends</h2>")
	for _, svc := range services {
		fmt.Fprintf(&b, "<h3>%s (%s)</h3>", htmlEscape(svc.PathPrefix), htmlEscape(svc.Policy))
		b.WriteString("<table><tr><th>Name</th><th>Address</th><th>Health</th><th>Active Connections</th><th>Consecutive Failures</th></tr>")
		for _, be := range svc.Backends {
			healthClass, healthText := "unhealthy", "DOWN"
			if be.Healthy {
				healthClass, healthText = "healthy", "UP"
			}
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td class=\"%s\">%s</td><td>%d</td><td>%d</td></tr>",
				htmlEscape(be.Name), htmlEscape(be.Addr), healthClass, healthText,
				be.ActiveConnections, be.ConsecutiveFailures)
		}
		b.WriteString("</table>")
	}

	b.WriteString("<h2>Recent Activity</h2>")
	b.WriteString("<table><tr><th>Time</th><th>Level</th><th>Message</th></tr>")
	for _, a := range recent {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>",
			a.Timestamp.Format("15:04:05"), htmlEscape(string(a.Level)), htmlEscape(a.Message))
	}
	b.WriteString("</table>")

	b.WriteString("</body></html>")
	return b.String()
}

func htmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}

// ServiceView and BackendView are read-only snapshots handed to the
// HTML/metrics renderers, decoupling them from the pool/backend package
// internals.
type ServiceView struct {
	PathPrefix string
	Policy     string
	Backends   []BackendView
}

type BackendView struct {
	Name                string
	Addr                string
	Healthy             bool
	ActiveConnections   int64
	ConsecutiveFailures int64
}
