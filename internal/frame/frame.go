// Package frame decides where one HTTP/1.x request ends inside a raw byte stream.
package frame

import "bytes"

var (
	terminator = []byte("\r\n\r\n")
	crlf       = []byte("\r\n")
)

const contentLength = "content-length"

// HeaderEnd returns the offset of the blank line ending the header block,
// or -1 if the block has not been fully received.
func HeaderEnd(buf []byte) int {
	return bytes.Index(buf, terminator)
}

// ContentLength scans a header block (request line included, terminator
// excluded) for a Content-Length header. Missing, unparsable and negative
// values all report 0.
func ContentLength(head []byte) int64 {
	for len(head) > 0 {
		var line []byte
		if i := bytes.Index(head, crlf); i >= 0 {
			line, head = head[:i], head[i+2:]
		} else {
			line, head = head, nil
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 || !equalFold(bytes.TrimSpace(line[:colon]), contentLength) {
			continue
		}
		n, ok := parseLength(bytes.TrimSpace(line[colon+1:]))
		if !ok {
			return 0
		}
		return n
	}
	return 0
}

// Length returns the byte length of the first complete message in buf:
// the header block, its terminator and the declared body.
func Length(buf []byte) (int, bool) {
	h := HeaderEnd(buf)
	if h < 0 {
		return 0, false
	}
	bodyStart := h + len(terminator)
	need := ContentLength(buf[:h])
	if int64(len(buf)-bodyStart) < need {
		return 0, false
	}
	return bodyStart + int(need), true
}

// IsComplete reports whether buf holds at least one full request. It has no
// side effects and may be called again each time buf grows.
func IsComplete(buf []byte) bool {
	_, ok := Length(buf)
	return ok
}

// parseLength parses a non-negative base-10 integer, rejecting signs and
// values that would overflow int64.
func parseLength(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		if n > (1<<63-1-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}

// equalFold reports whether b equals the lower-case ASCII string s, ignoring case.
func equalFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		c := b[i]
		if 'A' <= c && c <= 'Z' {
			c |= 0x20
		}
		if c != s[i] {
			return false
		}
	}
	return true
}
