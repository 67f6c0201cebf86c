// Package httpframing implements the lax request-head parse/serialize
// described in spec.md §4.4: a single buffered read, split on the
// request line and header block, with the remainder forwarded as an
// opaque body tail. No Content-Length or Transfer-Encoding handling;
// response bytes are never parsed, only relayed.
package httpframing

import (
	"bytes"
	"fmt"
	"strings"
)

// MaxHeadSize bounds the initial read from the client socket.
const MaxHeadSize = 8 * 1024

// Request is a parsed request line, header map, and raw body tail.
type Request struct {
	Method  string
	Target  string
	Version string
	Headers map[string]string
	Body    []byte
}

// Parse extracts the request line, headers up to the first blank line,
// and the remaining bytes as the body tail. raw is expected to be at
// most MaxHeadSize bytes (the caller enforces the read cap).
func Parse(raw []byte) (*Request, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("httpframing: empty request")
	}

	lineEnd := bytes.IndexByte(raw, '\n')
	var requestLine string
	var rest []byte
	if lineEnd < 0 {
		requestLine = string(raw)
		rest = nil
	} else {
		requestLine = string(raw[:lineEnd])
		rest = raw[lineEnd+1:]
	}
	method, target, version := splitRequestLine(requestLine)

	headers := make(map[string]string)
	for {
		idx := bytes.IndexByte(rest, '\n')
		var line []byte
		if idx < 0 {
			line = rest
			rest = nil
		} else {
			line = rest[:idx]
			rest = rest[idx+1:]
		}
		trimmed := strings.TrimRight(string(line), "\r")
		if trimmed == "" {
			break
		}
		if name, value, ok := splitHeaderLine(trimmed); ok {
			headers[name] = value
		}
		if idx < 0 {
			break
		}
	}

	return &Request{
		Method:  method,
		Target:  target,
		Version: version,
		Headers: headers,
		Body:    append([]byte(nil), rest...),
	}, nil
}

// splitRequestLine splits "METHOD TARGET VERSION\r\n" on ASCII
// whitespace. Missing fields come back as empty strings rather than
// erroring — a malformed head is a routing miss (§7), not a fatal parse
// error.
func splitRequestLine(line string) (method, target, version string) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) > 0 {
		method = fields[0]
	}
	if len(fields) > 1 {
		target = fields[1]
	}
	if len(fields) > 2 {
		version = fields[2]
	}
	return
}

// splitHeaderLine splits a header line at the first colon; the value is
// trimmed of leading/trailing ASCII whitespace.
func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	name = line[:idx]
	value = strings.TrimSpace(line[idx+1:])
	return name, value, true
}

// Serialize renders the request line, each header as "k: v\r\n" in map
// iteration order, a blank line, then the body. Header order and
// duplicate header names are not preserved across a parse/serialize
// round trip (spec.md §4.4).
func (r *Request) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(r.Method)
	buf.WriteByte(' ')
	buf.WriteString(r.Target)
	buf.WriteByte(' ')
	buf.WriteString(r.Version)
	buf.WriteString("\r\n")

	for k, v := range r.Headers {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}

// SetHeader sets (overwriting) a header's value.
func (r *Request) SetHeader(name, value string) {
	r.Headers[name] = value
}
