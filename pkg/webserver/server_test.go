package webserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testRouter() *Router {
	r := NewRouter()
	r.Use(Recovery(newSilentLogger()))
	r.GET("/health", func(_ context.Context, _ *Request) *Response {
		return Text(200, "OK")
	})
	r.POST("/echo", func(_ context.Context, req *Request) *Response {
		return Text(200, string(req.Body))
	})
	return r
}

func startServer(t *testing.T, config Config) (*Server, string) {
	t.Helper()
	srv := New(config).Handler(testRouter())

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(context.Background()) }()

	select {
	case <-srv.Ready():
	case err := <-errc:
		t.Fatalf("ListenAndServe() error = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return srv, srv.Addr()
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = c.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s did not come up", addr)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func exercise(t *testing.T, addr string) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != "OK" {
		t.Errorf("GET /health = %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Date") == "" {
		t.Error("Expected Date header")
	}

	resp, err = client.Post("http://"+addr+"/echo", "text/plain", strings.NewReader("ping"))
	if err != nil {
		t.Fatalf("POST /echo error = %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ping" {
		t.Errorf("POST /echo body = %q, want ping", body)
	}

	req, _ := http.NewRequest("OPTIONS", "http://"+addr+"/", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("OPTIONS status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_PollEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"
	config.PollTimeout = 20 * time.Millisecond
	config.Registerer = reg

	_, addr := startServer(t, config)
	if strings.HasSuffix(addr, ":0") {
		t.Fatalf("Expected kernel-chosen port, got %s", addr)
	}
	exercise(t, addr)

	n, err := testutil.GatherAndCount(reg, "webserver_connections_accepted_total")
	if err != nil || n != 1 {
		t.Errorf("Expected accepted counter to be exported, got %d, %v", n, err)
	}
}

func TestServer_GnetEngine(t *testing.T) {
	config := DefaultConfig()
	config.Addr = freeAddr(t)
	config.Engine = EngineGnet
	config.PollTimeout = 20 * time.Millisecond

	_, addr := startServer(t, config)
	waitForServer(t, addr)
	exercise(t, addr)
}

func TestServer_GnetEngineKernelPort(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"
	config.Engine = EngineGnet
	config.PollTimeout = 20 * time.Millisecond

	_, addr := startServer(t, config)
	if strings.HasSuffix(addr, ":0") {
		t.Fatalf("Expected kernel-chosen port, got %s", addr)
	}
	exercise(t, addr)
}

func TestServer_GnetBindFailureNotReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	config := DefaultConfig()
	config.Addr = ln.Addr().String()
	config.Engine = EngineGnet
	srv := New(config).Handler(testRouter())

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(context.Background()) }()

	select {
	case err := <-errc:
		if err == nil {
			t.Error("Expected error when the address is in use")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not fail on an address in use")
	}
	select {
	case <-srv.Ready():
		t.Errorf("Ready() closed although bind failed, Addr=%q", srv.Addr())
	default:
	}
	if addr := srv.Addr(); addr != "" {
		t.Errorf("Addr() = %q after bind failure, want empty", addr)
	}
}

func TestServer_Errors(t *testing.T) {
	srv := NewWithDefaults()
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Error("Expected error without handler")
	}

	config := DefaultConfig()
	config.Addr = "not-an-address"
	srv = New(config).Handler(testRouter())
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Error("Expected listen error")
	}
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Error("Expected error on second start")
	}

	if err := NewWithDefaults().Stop(context.Background()); err != nil {
		t.Errorf("Stop() on idle server error = %v", err)
	}
}

func TestServer_ContextCancel(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"
	config.PollTimeout = 20 * time.Millisecond
	srv := New(config).Handler(testRouter())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx) }()
	<-srv.Ready()

	cancel()
	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}

func TestNew_InvalidConfigPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for invalid config")
		}
	}()
	New(Config{Engine: "select"})
}
