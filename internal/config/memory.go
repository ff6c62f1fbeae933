package config

import (
	"io"
	"os"
)

// MemStorage is an in-memory Storage of fixed size, used by tests and by the
// simulator when no image file is configured.
type MemStorage struct {
	Data []byte
}

// NewMemStorage returns zeroed storage of the given size.
func NewMemStorage(size int) *MemStorage {
	return &MemStorage{Data: make([]byte, size)}
}

// ReadAt implements io.ReaderAt.
func (m *MemStorage) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.Data)) {
		return 0, io.EOF
	}
	n := copy(p, m.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (m *MemStorage) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(m.Data)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.Data[off:], p), nil
}

// OpenImage opens or creates an image file to use as Storage.
func OpenImage(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
}
