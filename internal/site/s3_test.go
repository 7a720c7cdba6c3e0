package site

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/y0ncha/web-server/pkg/webserver"
)

// fakeS3 serves path-style object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/")
	data, ok := f.objects[key]
	switch r.Method {
	case http.MethodHead:
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(data)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) object(key string) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.objects[key]), f.types[key]
}

func (f *fakeS3) set(fn func(*fakeS3)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newFakeS3(t *testing.T) (*fakeS3, *S3Store) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := NewS3Client(S3Config{Region: "us-east-1", Endpoint: srv.URL, PathStyle: true})
	return fake, NewS3Store(client, "site", "/pages/")
}

func TestS3Store(t *testing.T) {
	fake, store := newFakeS3(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "index.html"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Get missing err = %v, want ErrNotExist", err)
	}

	created, err := store.Put(ctx, "index.html", []byte("<h1>s3</h1>"), "text/html")
	if err != nil || !created {
		t.Fatalf("Put new = %v, %v; want true, nil", created, err)
	}
	body, contentType := fake.object("site/pages/index.html")
	if body != "<h1>s3</h1>" {
		t.Errorf("stored object %q", body)
	}
	if contentType != "text/html" {
		t.Errorf("stored content type %q", contentType)
	}

	created, err = store.Put(ctx, "index.html", []byte("<h1>v2</h1>"), "")
	if err != nil || created {
		t.Errorf("Put existing = %v, %v; want false, nil", created, err)
	}

	data, err := store.Get(ctx, "index.html")
	if err != nil || string(data) != "<h1>v2</h1>" {
		t.Errorf("Get = %q, %v", data, err)
	}

	if err := store.Delete(ctx, "index.html"); err != nil {
		t.Errorf("Delete existing err = %v", err)
	}
	if err := store.Delete(ctx, "index.html"); !errors.Is(err, ErrNotExist) {
		t.Errorf("Delete missing err = %v, want ErrNotExist", err)
	}
}

func TestS3Store_Failure(t *testing.T) {
	fake, store := newFakeS3(t)
	fake.set(func(f *fakeS3) { f.fail = true })

	_, err := store.Get(context.Background(), "index.html")
	if err == nil || errors.Is(err, ErrNotExist) {
		t.Errorf("Get err = %v, want a non-ErrNotExist failure", err)
	}
}

func TestS3Store_ServesSite(t *testing.T) {
	fake, store := newFakeS3(t)
	fake.set(func(f *fakeS3) { f.objects["site/pages/about.en.html"] = []byte("<h1>about</h1>") })

	r := webserver.NewRouter()
	Register(r, Options{Store: store, Logger: quietLogger()})

	resp := serve(t, r, "GET /about?lang=de HTTP/1.1\r\n\r\n")
	if resp.Status != 200 || string(resp.Body) != "<h1>about</h1>" {
		t.Errorf("GET /about = %d %q", resp.Status, resp.Body)
	}

	fake.set(func(f *fakeS3) { f.fail = true })
	resp = serve(t, r, "GET /about HTTP/1.1\r\n\r\n")
	if resp.Status != 500 {
		t.Errorf("status with failing bucket = %d, want 500", resp.Status)
	}
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		raw     string
		bucket  string
		prefix  string
		wantErr bool
	}{
		{"s3://site", "site", "", false},
		{"s3://site/pages/en/", "site", "pages/en", false},
		{"/var/www", "", "", true},
		{"s3:///nobucket", "", "", true},
	}
	for _, tt := range tests {
		bucket, prefix, err := ParseS3URL(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseS3URL(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3URL(%q) = %q, %q; want %q, %q", tt.raw, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}
