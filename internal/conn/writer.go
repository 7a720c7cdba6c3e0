package conn

// ResponseWriter owns one serialized response and sends it across as many
// write-ready events as the socket needs. The cursor only moves forward.
type ResponseWriter struct {
	buf []byte
	off int
}

// NewResponseWriter takes ownership of buf.
func NewResponseWriter(buf []byte) *ResponseWriter {
	return &ResponseWriter{buf: buf}
}

// Pending returns the number of bytes not yet accepted by the socket.
func (w *ResponseWriter) Pending() int {
	return len(w.buf) - w.off
}

// Done reports whether every byte has been sent.
func (w *ResponseWriter) Done() bool {
	return w.off >= len(w.buf)
}

// WriteTo performs a single send of the unsent suffix and advances the
// cursor by the number of bytes the socket accepted.
func (w *ResponseWriter) WriteTo(s Socket) (int, error) {
	if w.Done() {
		return 0, nil
	}
	n, err := s.Write(w.buf[w.off:])
	if n > 0 {
		w.off += n
	}
	if w.Done() {
		w.buf, w.off = nil, 0
	}
	return n, err
}
