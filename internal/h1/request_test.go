package h1

import (
	"testing"
)

func TestParseRequest(t *testing.T) {
	raw := []byte("POST /echo?msg=hi&lang=he HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"X-Trace:  abc \r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"helloEXTRA")

	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}

	if req.Method != "POST" {
		t.Errorf("Method = %q, want POST", req.Method)
	}
	if req.Path != "/echo" {
		t.Errorf("Path = %q, want /echo", req.Path)
	}
	if req.Query != "msg=hi&lang=he" {
		t.Errorf("Query = %q", req.Query)
	}
	if req.Version != "HTTP/1.1" {
		t.Errorf("Version = %q", req.Version)
	}
	if string(req.Body) != "hello" {
		t.Errorf("Body = %q, want hello", req.Body)
	}
	if got := req.Header("x-trace"); got != "abc" {
		t.Errorf("Header(x-trace) = %q, want abc", got)
	}
	if got := req.Header("HOST"); got != "example.com" {
		t.Errorf("Header(HOST) = %q", got)
	}
	if got := req.QueryParam("lang"); got != "he" {
		t.Errorf("QueryParam(lang) = %q, want he", got)
	}
	if got := req.QueryParam("missing"); got != "" {
		t.Errorf("QueryParam(missing) = %q, want empty", got)
	}
}

func TestParseRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"incomplete", "GET / HTTP/1.1\r\nHost: x\r\n"},
		{"short request line", "GET /\r\n\r\n"},
		{"unsupported version", "GET / HTTP/2.0\r\n\r\n"},
		{"header without colon", "GET / HTTP/1.1\r\nbroken\r\n\r\n"},
		{"empty header name", "GET / HTTP/1.1\r\n: v\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRequest([]byte(tt.raw)); err == nil {
				t.Errorf("ParseRequest(%q) expected error", tt.raw)
			}
		})
	}
}

func TestKeepAlive(t *testing.T) {
	tests := []struct {
		name    string
		version string
		headers [][2]string
		want    bool
	}{
		{"1.1 default", "HTTP/1.1", nil, true},
		{"1.0 default", "HTTP/1.0", nil, false},
		{"1.0 keep-alive", "HTTP/1.0", [][2]string{{"connection", "keep-alive"}}, true},
		{"1.0 keep-alive mixed case", "HTTP/1.0", [][2]string{{"connection", "Keep-Alive"}}, true},
		{"1.1 close", "HTTP/1.1", [][2]string{{"connection", "close"}}, false},
		{"1.1 CLOSE", "HTTP/1.1", [][2]string{{"connection", "CLOSE"}}, false},
		{"1.0 close", "HTTP/1.0", [][2]string{{"connection", "close"}}, false},
		{"1.1 keep-alive", "HTTP/1.1", [][2]string{{"connection", "keep-alive"}}, true},
		{"token list", "HTTP/1.0", [][2]string{{"connection", "Upgrade, keep-alive"}}, true},
		{"unknown token", "HTTP/1.0", [][2]string{{"connection", "upgrade"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{Version: tt.version, Headers: tt.headers}
			if got := KeepAlive(req); got != tt.want {
				t.Errorf("KeepAlive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeepAlive_FromWire(t *testing.T) {
	req, err := ParseRequest([]byte("GET / HTTP/1.0\r\nCONNECTION: Keep-Alive\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if !KeepAlive(req) {
		t.Error("expected keep-alive for HTTP/1.0 with Connection: Keep-Alive")
	}
}
