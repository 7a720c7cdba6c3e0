package conn

import (
	"bytes"
	"testing"
)

func TestResponseWriter_Resumes(t *testing.T) {
	payload := []byte("abcdefghij")
	w := NewResponseWriter(append([]byte(nil), payload...))
	s := &fakeSocket{fd: 1, maxWrite: 3}

	var sizes []int
	for !w.Done() {
		n, err := w.WriteTo(s)
		if err != nil {
			t.Fatalf("WriteTo() error = %v", err)
		}
		sizes = append(sizes, n)
	}
	if !bytes.Equal(s.written.Bytes(), payload) {
		t.Errorf("written = %q", s.written.Bytes())
	}
	if len(sizes) != 4 || sizes[3] != 1 {
		t.Errorf("sizes = %v", sizes)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending() = %d", w.Pending())
	}
	if n, err := w.WriteTo(s); n != 0 || err != nil {
		t.Errorf("WriteTo() after done = %d, %v", n, err)
	}
}
