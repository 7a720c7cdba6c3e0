// Package date caches the value of the HTTP Date header.
package date

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// current holds the formatted date; nil while no ticker is running.
var current atomic.Pointer[[]byte]

var (
	mu      sync.Mutex
	users   int
	done    chan struct{}
	stopped chan struct{}
)

// StartTicker refreshes the cached value every 500ms until the returned stop
// function is called. Tickers are shared: the cache is cleared when the last
// caller stops.
func StartTicker() func() {
	mu.Lock()
	defer mu.Unlock()

	users++
	if users == 1 {
		update(time.Now())
		done = make(chan struct{})
		stopped = make(chan struct{})
		go run(done, stopped)
	}

	var once sync.Once
	return func() { once.Do(release) }
}

func run(done, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			update(now)
		case <-done:
			return
		}
	}
}

func release() {
	mu.Lock()
	defer mu.Unlock()

	users--
	if users > 0 {
		return
	}
	close(done)
	<-stopped
	current.Store(nil)
}

func update(now time.Time) {
	b := []byte(Format(now))
	current.Store(&b)
}

// Format renders t in the IMF-fixdate form required by RFC 9110.
func Format(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// Current returns the cached header value, formatting on demand when no
// ticker is running.
func Current() []byte {
	if p := current.Load(); p != nil {
		return *p
	}
	return []byte(Format(time.Now()))
}
