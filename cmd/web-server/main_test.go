package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/y0ncha/web-server/internal/site"
	"github.com/y0ncha/web-server/pkg/webserver"
)

func TestBuildConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(file, []byte("addr: 0.0.0.0:9000\nengine: gnet\nidle_timeout: 10s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		args   []string
		addr   string
		engine string
		idle   time.Duration
	}{
		{"defaults", nil, "127.0.0.1:27015", webserver.EnginePoll, 120 * time.Second},
		{"flags only", []string{"--addr", ":8080", "--idle-timeout", "5s"}, ":8080", webserver.EnginePoll, 5 * time.Second},
		{"file", []string{"--config", file}, "0.0.0.0:9000", webserver.EngineGnet, 10 * time.Second},
		{"flag overrides file", []string{"--config", file, "--engine", "poll"}, "0.0.0.0:9000", webserver.EnginePoll, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &serveOptions{}
			cmd := newServeCmd(opts)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}

			config, err := buildConfig(cmd.Flags(), *opts)
			if err != nil {
				t.Fatalf("buildConfig() error = %v", err)
			}
			if config.Addr != tt.addr || config.Engine != tt.engine || config.IdleTimeout != tt.idle {
				t.Errorf("got addr=%s engine=%s idle=%v", config.Addr, config.Engine, config.IdleTimeout)
			}
		})
	}
}

func TestBuildConfig_Invalid(t *testing.T) {
	opts := &serveOptions{}
	cmd := newServeCmd(opts)
	if err := cmd.ParseFlags([]string{"--idle-policy", "never"}); err != nil {
		t.Fatal(err)
	}
	if _, err := buildConfig(cmd.Flags(), *opts); err == nil {
		t.Error("Expected error for unknown idle policy")
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "server.log")

	logger, closer, err := newLogger(logOptions{level: "debug", format: "json", file: file, maxSizeMB: 1})
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}
	logger.WithField("peer", "127.0.0.1:1").Info("client connected")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"peer":"127.0.0.1:1"`)) {
		t.Errorf("log file missing JSON entry: %s", data)
	}

	if _, _, err := newLogger(logOptions{level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, _, err := newLogger(logOptions{level: "info", format: "xml"}); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	store, err := newStore("", dir, false)
	if err != nil {
		t.Fatalf("newStore(root) error = %v", err)
	}
	if _, ok := store.(*site.DiskStore); !ok {
		t.Errorf("Expected DiskStore, got %T", store)
	}

	store, err = newStore("s3://bucket/pages", dir, true)
	if err != nil {
		t.Fatalf("newStore(s3) error = %v", err)
	}
	if _, ok := store.(*site.S3Store); !ok {
		t.Errorf("Expected S3Store, got %T", store)
	}

	if _, err := newStore(filepath.Join(dir, "missing"), dir, false); err == nil {
		t.Error("Expected error for missing directory")
	}
	file := filepath.Join(dir, "file")
	_ = os.WriteFile(file, nil, 0o600)
	if _, err := newStore(file, dir, false); err == nil {
		t.Error("Expected error for non-directory root")
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version output = %q, want %q", out.String(), version)
	}
}
