package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.WriteCloser that rotates its file by size.
type RotatingWriter struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	maxBytes    int64
	maxFiles    int
	currentSize int64
}

// NewRotatingWriter opens (or creates) path for appending. maxSizeMB <= 0
// defaults to 10, maxFiles <= 0 defaults to 3.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 3
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &RotatingWriter{
		file:        f,
		path:        path,
		maxBytes:    int64(maxSizeMB) * 1024 * 1024,
		maxFiles:    maxFiles,
		currentSize: stat.Size(),
	}, nil
}

// Write appends p, rotating first when the size limit has been reached.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	if w.currentSize >= w.maxBytes {
		if err := w.rotate(); err != nil {
			// Rotation failed, keep logging to whatever is open.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
		if w.file == nil {
			return 0, os.ErrClosed
		}
	}

	n, err := w.file.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate shifts path.N -> path.N+1, dropping the oldest, then reopens path.
// With maxFiles=3 the files .1, .2 and .3 are kept.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	for i := w.maxFiles; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", w.path, i)
		if i == w.maxFiles {
			os.Remove(oldPath)
			continue
		}
		os.Rename(oldPath, fmt.Sprintf("%s.%d", w.path, i+1))
	}

	if err := os.Rename(w.path, w.path+".1"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open new log file: %w", err)
	}
	w.file = f
	w.currentSize = 0
	return nil
}
