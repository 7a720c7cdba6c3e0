package h1

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
)

func readWire(t *testing.T, wire []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(wire)), nil)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v\n%s", err, wire)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, body
}

func TestResponse_AppendWire(t *testing.T) {
	r := Text(200, "hello world")
	r.Headers = append(r.Headers, [2]string{"X-Custom", "1"})

	wire := r.AppendWire(nil, "HTTP/1.1", true)
	if !bytes.HasPrefix(wire, []byte("HTTP/1.1 200 OK\r\n")) {
		t.Errorf("unexpected status line: %q", wire)
	}

	resp, body := readWire(t, wire)
	if string(body) != "hello world" {
		t.Errorf("body = %q", body)
	}
	if resp.ContentLength != int64(len("hello world")) {
		t.Errorf("Content-Length = %d", resp.ContentLength)
	}
	if got := resp.Header.Get("Connection"); got != "keep-alive" {
		t.Errorf("Connection = %q, want keep-alive", got)
	}
	if resp.Header.Get("X-Custom") != "1" {
		t.Error("custom header lost")
	}
	if resp.Header.Get("Date") == "" {
		t.Error("Date header missing")
	}
}

func TestResponse_OverridesFraming(t *testing.T) {
	r := &Response{
		Status:     201,
		StatusText: "Stored",
		Headers: [][2]string{
			{"content-length", "999"},
			{"Connection", "keep-alive"},
		},
		Body: []byte("abc"),
	}

	wire := r.AppendWire(nil, "HTTP/1.0", false)
	if !bytes.HasPrefix(wire, []byte("HTTP/1.0 201 Stored\r\n")) {
		t.Errorf("unexpected status line: %q", wire)
	}
	if n := strings.Count(strings.ToLower(string(wire)), "content-length:"); n != 1 {
		t.Errorf("found %d Content-Length headers, want 1", n)
	}

	resp, body := readWire(t, wire)
	if resp.ContentLength != 3 || string(body) != "abc" {
		t.Errorf("ContentLength = %d, body = %q", resp.ContentLength, body)
	}
	if got := resp.Header.Get("Connection"); got != "close" {
		t.Errorf("Connection = %q, want close", got)
	}
}

func TestResponse_EmptyBody(t *testing.T) {
	wire := (&Response{Status: 204}).AppendWire(nil, "HTTP/1.1", true)
	if !bytes.Contains(wire, []byte("Content-Length: 0\r\n")) {
		t.Errorf("missing zero Content-Length: %q", wire)
	}
	if !bytes.HasSuffix(wire, []byte("\r\n\r\n")) {
		t.Errorf("wire does not end with header terminator: %q", wire)
	}
}

func TestError(t *testing.T) {
	r := Error(404, "File not found for path /x")
	if string(r.Body) != "Not Found : File not found for path /x" {
		t.Errorf("body = %q", r.Body)
	}
	if string(Error(400, "").Body) != "Bad Request" {
		t.Errorf("body = %q", Error(400, "").Body)
	}
}

func TestResponse_Headers(t *testing.T) {
	r := Text(200, "x")
	r.SetHeader("content-type", "text/html")
	if got := r.Header("Content-Type"); got != "text/html" {
		t.Errorf("Header() = %q, want text/html", got)
	}
	if len(r.Headers) != 1 {
		t.Errorf("expected SetHeader to replace, got %v", r.Headers)
	}
	r.DelHeader("CONTENT-TYPE")
	if len(r.Headers) != 0 {
		t.Errorf("expected header removed, got %v", r.Headers)
	}
}

func TestStatusText(t *testing.T) {
	if StatusText(200) != "OK" || StatusText(404) != "Not Found" || StatusText(799) != "Unknown" {
		t.Error("unexpected status text mapping")
	}
}
