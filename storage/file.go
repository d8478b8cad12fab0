package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileKV persists all keys in one JSON document. Writes go to a temporary file
// that is renamed over the original, so a crash never leaves a torn document.
type FileKV struct {
	path string
	lock sync.Mutex
}

var _ KV = (*FileKV)(nil)

func NewFileKV(path string) (*FileKV, error) {
	if path == "" {
		return nil, errors.New("[NewFileKV] path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("[NewFileKV] create directory: %w", err)
	}
	return &FileKV{path: path}, nil
}

func (f *FileKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

func (f *FileKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc[key] = value
	return f.write(doc)
}

func (f *FileKV) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(doc, k)
	}
	return f.write(doc)
}

// read loads the document; values are kept as base64 by encoding/json.
func (f *FileKV) read() (map[string][]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, fmt.Errorf("[FileKV.read] %w", err)
	}

	doc := make(map[string][]byte)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("[FileKV.read] decode %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *FileKV) write(doc map[string][]byte) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("[FileKV.write] encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*")
	if err != nil {
		return fmt.Errorf("[FileKV.write] create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileKV.write] write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileKV.write] sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[FileKV.write] close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("[FileKV.write] rename: %w", err)
	}
	return nil
}
