// Package h1 turns one framed HTTP/1.x request into a serialized response.
package h1

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/y0ncha/web-server/internal/frame"
)

// Request represents a parsed HTTP/1.x request.
type Request struct {
	Method  string
	Path    string
	Query   string
	Version string
	// Headers holds name/value pairs in arrival order. Names are lower-cased.
	Headers [][2]string
	Body    []byte
	// Params holds values captured by the router for :name and *name segments.
	Params map[string]string

	query url.Values
}

var (
	errMalformedLine   = errors.New("invalid request line")
	errMalformedHeader = errors.New("invalid header line")
	errIncomplete      = errors.New("incomplete request")

	sGET    = "GET"
	sHTTP11 = "HTTP/1.1"
	sHTTP10 = "HTTP/1.0"
)

// ParseRequest parses a complete request as framed by frame.Length. The body
// is exactly Content-Length bytes; anything after it is ignored.
func ParseRequest(raw []byte) (*Request, error) {
	n, ok := frame.Length(raw)
	if !ok {
		return nil, errIncomplete
	}
	h := frame.HeaderEnd(raw)
	head := raw[:h]

	req := &Request{}
	lineEnd := bytes.Index(head, []byte("\r\n"))
	line := head
	if lineEnd >= 0 {
		line, head = head[:lineEnd], head[lineEnd+2:]
	} else {
		head = nil
	}
	if err := req.parseRequestLine(line); err != nil {
		return nil, err
	}
	if err := req.parseHeaders(head); err != nil {
		return nil, err
	}
	if bodyStart := h + 4; n > bodyStart {
		req.Body = raw[bodyStart:n:n]
	}
	return req, nil
}

// parseRequestLine parses METHOD SP target SP version.
func (r *Request) parseRequestLine(line []byte) error {
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 || len(parts[0]) == 0 || len(parts[1]) == 0 {
		return errMalformedLine
	}
	if string(parts[0]) == sGET {
		r.Method = sGET
	} else {
		r.Method = string(parts[0])
	}

	target := string(parts[1])
	if q := strings.IndexByte(target, '?'); q >= 0 {
		r.Path, r.Query = target[:q], target[q+1:]
	} else {
		r.Path = target
	}

	switch v := string(bytes.TrimSpace(parts[2])); v {
	case sHTTP11:
		r.Version = sHTTP11
	case sHTTP10:
		r.Version = sHTTP10
	default:
		return fmt.Errorf("unsupported HTTP version: %q", v)
	}
	return nil
}

// parseHeaders parses Name: value lines. Duplicates are kept as received.
func (r *Request) parseHeaders(head []byte) error {
	for len(head) > 0 {
		var line []byte
		if i := bytes.Index(head, []byte("\r\n")); i >= 0 {
			line, head = head[:i], head[i+2:]
		} else {
			line, head = head, nil
		}
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return errMalformedHeader
		}
		name := strings.ToLower(string(bytes.TrimSpace(line[:colon])))
		value := string(bytes.TrimSpace(line[colon+1:]))
		r.Headers = append(r.Headers, [2]string{name, value})
	}
	return nil
}

// Header returns the first value of the named header, matched case-insensitively.
func (r *Request) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h[0], name) {
			return h[1]
		}
	}
	return ""
}

// QueryParam returns the first value of key in the raw query string.
func (r *Request) QueryParam(key string) string {
	if r.query == nil {
		r.query, _ = url.ParseQuery(r.Query)
	}
	return r.query.Get(key)
}

// Param returns a value captured by the router.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// KeepAlive decides whether the connection survives this exchange. A
// Connection header naming close or keep-alive wins; otherwise HTTP/1.1
// defaults to keep-alive and HTTP/1.0 to close.
func KeepAlive(r *Request) bool {
	for _, h := range r.Headers {
		if h[0] != "connection" {
			continue
		}
		for _, token := range strings.Split(h[1], ",") {
			token = strings.TrimSpace(token)
			switch {
			case strings.EqualFold(token, "close"):
				return false
			case strings.EqualFold(token, "keep-alive"):
				return true
			}
		}
	}
	return r.Version == sHTTP11
}
