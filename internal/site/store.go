package site

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned by a Store for a missing document.
var ErrNotExist = errors.New("document does not exist")

// Store holds the documents served and modified by the site handlers. Names
// are slash-separated and already validated.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	// Put writes data under name and reports whether the document is new.
	Put(ctx context.Context, name string, data []byte, contentType string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// DiskStore keeps documents as files below Root.
type DiskStore struct {
	Root string
}

// NewDiskStore returns a store rooted at dir.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{Root: dir}
}

func (d *DiskStore) path(name string) string {
	return filepath.Join(d.Root, filepath.FromSlash(name))
}

func (d *DiskStore) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	return data, err
}

func (d *DiskStore) Put(_ context.Context, name string, data []byte, _ string) (bool, error) {
	p := d.path(name)
	created := false
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		created = true
	}
	if strings.Contains(name, "/") {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return false, fmt.Errorf("create parent of %s: %w", name, err)
		}
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", name, err)
	}
	return created, nil
}

func (d *DiskStore) Delete(_ context.Context, name string) error {
	err := os.Remove(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	return err
}

// validName reports whether name is a relative slash path without empty,
// dot or dot-dot segments.
func validName(name string) bool {
	if name == "" || strings.ContainsAny(name, "\\\x00") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
