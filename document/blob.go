package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	extErrors "github.com/pkg/errors"
)

// ErrBlobNotFound is returned by Open when the reference does not resolve
var ErrBlobNotFound = errors.New("Blob does not exist")

// BlobStore saves artifacts by name and addresses them by a stable reference string
type BlobStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the artifact. Deleting a reference that does not resolve is not an error.
	Delete(ctx context.Context, ref string) error
}

func validName(name string) error {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return fmt.Errorf("Invalid blob name \"%s\"", name)
	}
	return nil
}

// DiskStore keeps artifacts as files under Root. References are file names relative to Root.
type DiskStore struct {
	Root string
}

var _ BlobStore = &DiskStore{}

// NewDiskStore creates Root if needed
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, fmt.Errorf("empty Root is invalid")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, extErrors.Wrap(err, "Cannot create blob directory")
	}
	return &DiskStore{
		Root: root,
	}, nil
}

func (d *DiskStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	tmp := filepath.Join(d.Root, "."+name+".tmp")
	if err := ioutil.WriteFile(tmp, data, 0o644); err != nil {
		return "", extErrors.Wrap(err, "Cannot write blob")
	}
	if err := os.Rename(tmp, filepath.Join(d.Root, name)); err != nil {
		os.Remove(tmp)
		return "", extErrors.Wrap(err, "Cannot move blob into place")
	}
	return name, nil
}

func (d *DiskStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := validName(ref); err != nil {
		return nil, ErrBlobNotFound
	}
	f, err := os.Open(filepath.Join(d.Root, ref))
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open blob")
	}
	return f, nil
}

func (d *DiskStore) Delete(ctx context.Context, ref string) error {
	if err := validName(ref); err != nil {
		return nil
	}
	err := os.Remove(filepath.Join(d.Root, ref))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return extErrors.Wrap(err, "Cannot delete blob")
}

// MemoryStore keeps artifacts in memory
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ BlobStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
	}
}

func (m *MemoryStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = buf
	return name, nil
}

func (m *MemoryStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[ref]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return ioutil.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, ref)
	return nil
}

// Len returns how many artifacts are stored
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// ReadAll is a helper to load the whole artifact behind ref
func ReadAll(ctx context.Context, store BlobStore, ref string) ([]byte, error) {
	rc, err := store.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ioutil.ReadAll(rc)
}
