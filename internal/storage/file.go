package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fileBlob stores the snapshot as a single JSON file.
//
// Writes go to a sibling temp file which is synced and renamed over the
// target, so a crash leaves either the old or the new document.
type fileBlob struct {
	path string
}

func newFileBlob(path string) (*fileBlob, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileBlob{path: path}, nil
}

func (b *fileBlob) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (b *fileBlob) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp := b.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *fileBlob) Quarantine(ctx context.Context, data []byte) error {
	dst := fmt.Sprintf("%s.corrupt-%d", b.path, time.Now().Unix())
	return os.WriteFile(dst, data, 0o600)
}

func (b *fileBlob) Close() error { return nil }

// memoryBlob keeps the document in process memory.
type memoryBlob struct {
	mu   sync.Mutex
	data []byte
}

func newMemoryBlob() *memoryBlob { return &memoryBlob{} }

func (b *memoryBlob) Load(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	return append([]byte(nil), b.data...), nil
}

func (b *memoryBlob) Save(ctx context.Context, data []byte) error {
	b.mu.Lock()
	b.data = append([]byte(nil), data...)
	b.mu.Unlock()
	return nil
}

func (b *memoryBlob) Close() error { return nil }
