package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// FileBackend stores the record as a JSON object in a single file. Writes
// replace the file atomically so a crash never leaves half a record behind.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend creates the parent directory of path if needed.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create token directory: %w", err)
	}
	return &FileBackend{path: path}, nil
}

// NewFile returns a Store persisted at path.
func NewFile(path string, opts ...Option) (*Store, error) {
	b, err := NewFileBackend(path)
	if err != nil {
		return nil, err
	}
	return New(b, opts...), nil
}

// Path returns the file location.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Load(context.Context) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]string{}, nil
	}

	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return entries, nil
}

func (b *FileBackend) Save(_ context.Context, entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := atomic.WriteFile(b.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

func (b *FileBackend) Delete(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
