package h1

import (
	"strconv"
	"strings"

	"github.com/y0ncha/web-server/internal/date"
)

var (
	headerContentLength = []byte("Content-Length: ")
	headerConnection    = []byte("Connection: ")
	headerDate          = []byte("Date: ")
	headerSep           = []byte(": ")
	crlf                = []byte("\r\n")
)

// Response is the value a Handler produces. StatusText may be left empty, in
// which case the standard reason phrase for Status is used.
type Response struct {
	Status     int
	StatusText string
	Headers    [][2]string
	Body       []byte
}

// SetHeader replaces every header named key with a single value.
func (r *Response) SetHeader(key, value string) {
	r.DelHeader(key)
	r.Headers = append(r.Headers, [2]string{key, value})
}

// DelHeader removes every header named key.
func (r *Response) DelHeader(key string) {
	kept := r.Headers[:0]
	for _, h := range r.Headers {
		if !strings.EqualFold(h[0], key) {
			kept = append(kept, h)
		}
	}
	r.Headers = kept
}

// Header returns the first value of the named header.
func (r *Response) Header(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h[0], key) {
			return h[1]
		}
	}
	return ""
}

// Text builds a text/plain response.
func Text(status int, body string) *Response {
	return &Response{
		Status:  status,
		Headers: [][2]string{{"Content-Type", "text/plain"}},
		Body:    []byte(body),
	}
}

// HTML builds a text/html response.
func HTML(status int, body []byte) *Response {
	return &Response{
		Status:  status,
		Headers: [][2]string{{"Content-Type", "text/html"}},
		Body:    body,
	}
}

// Error builds a plain text error response whose body is the reason phrase,
// followed by detail when one is given.
func Error(status int, detail string) *Response {
	body := StatusText(status)
	if detail != "" {
		body += " : " + detail
	}
	return Text(status, body)
}

// AppendWire serializes r after buf. Handler supplied Content-Length and
// Connection headers are replaced so the framing always matches the body
// actually emitted.
func (r *Response) AppendWire(buf []byte, version string, keepAlive bool) []byte {
	if version != sHTTP10 {
		version = sHTTP11
	}
	text := r.StatusText
	if text == "" {
		text = StatusText(r.Status)
	}

	buf = append(buf, version...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(r.Status), 10)
	buf = append(buf, ' ')
	buf = append(buf, text...)
	buf = append(buf, crlf...)

	for _, h := range r.Headers {
		if strings.EqualFold(h[0], "content-length") || strings.EqualFold(h[0], "connection") {
			continue
		}
		buf = append(buf, h[0]...)
		buf = append(buf, headerSep...)
		buf = append(buf, h[1]...)
		buf = append(buf, crlf...)
	}

	buf = append(buf, headerContentLength...)
	buf = strconv.AppendInt(buf, int64(len(r.Body)), 10)
	buf = append(buf, crlf...)

	buf = append(buf, headerConnection...)
	if keepAlive {
		buf = append(buf, "keep-alive"...)
	} else {
		buf = append(buf, "close"...)
	}
	buf = append(buf, crlf...)

	buf = append(buf, headerDate...)
	buf = append(buf, date.Current()...)
	buf = append(buf, crlf...)

	buf = append(buf, crlf...)
	return append(buf, r.Body...)
}

// StatusText returns the reason phrase for common HTTP status codes.
func StatusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 411:
		return "Length Required"
	case 413:
		return "Payload Too Large"
	case 414:
		return "URI Too Long"
	case 415:
		return "Unsupported Media Type"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 505:
		return "HTTP Version Not Supported"
	default:
		return "Unknown"
	}
}
