package conn

import (
	"fmt"
	"slices"
)

// Table maps socket descriptors to their connections. It is owned by a
// single event loop and is not safe for concurrent use.
type Table struct {
	conns map[int]*Connection
	order []int
	dirty bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{conns: make(map[int]*Connection)}
}

// Add registers c under its descriptor.
func (t *Table) Add(c *Connection) error {
	fd := c.Fd()
	if _, ok := t.conns[fd]; ok {
		return fmt.Errorf("fd %d: %w", fd, ErrDuplicate)
	}
	t.conns[fd] = c
	t.dirty = true
	return nil
}

// Get returns the connection registered under fd.
func (t *Table) Get(fd int) (*Connection, bool) {
	c, ok := t.conns[fd]
	return c, ok
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return len(t.conns)
}

// Remove drops the entry for fd without closing its socket.
func (t *Table) Remove(fd int) {
	if _, ok := t.conns[fd]; ok {
		delete(t.conns, fd)
		t.dirty = true
	}
}

// Snapshot returns the live connections in ascending descriptor order. The
// slice stays valid while the table is mutated.
func (t *Table) Snapshot() []*Connection {
	if t.dirty {
		t.order = t.order[:0]
		for fd := range t.conns {
			t.order = append(t.order, fd)
		}
		slices.Sort(t.order)
		t.dirty = false
	}
	out := make([]*Connection, 0, len(t.order))
	for _, fd := range t.order {
		out = append(out, t.conns[fd])
	}
	return out
}

// Evict closes and removes every connection in a terminal state. onEvict,
// when set, is called for each one before its socket is closed.
func (t *Table) Evict(onEvict func(*Connection)) int {
	n := 0
	for fd, c := range t.conns {
		if !c.State().Terminal() {
			continue
		}
		if onEvict != nil {
			onEvict(c)
		}
		_ = c.Close()
		delete(t.conns, fd)
		n++
	}
	if n > 0 {
		t.dirty = true
	}
	return n
}

// CloseAll closes every connection and empties the table.
func (t *Table) CloseAll() {
	for fd, c := range t.conns {
		_ = c.Close()
		delete(t.conns, fd)
	}
	t.order = t.order[:0]
	t.dirty = false
}
