package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// rotatingFile is a zapcore.WriteSyncer that rotates the underlying file by
// size. No rotation library appears anywhere in the retrieval pack (see
// DESIGN.md), so this one piece is hand-rolled against the stdlib os
// package while everything around it stays on zap/zapcore.
type rotatingFile struct {
	mu          sync.Mutex
	dir         string
	name        string
	maxBytes    int64
	maxFiles    int
	file        *os.File
	writtenSize int64
}

func newRotatingFile(dir, name string, maxMB, maxFiles int) (*rotatingFile, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	if maxMB <= 0 {
		maxMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 10
	}
	rf := &rotatingFile{
		dir:      dir,
		name:     name,
		maxBytes: int64(maxMB) * 1024 * 1024,
		maxFiles: maxFiles,
	}
	if err := rf.openCurrent(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (r *rotatingFile) path() string {
	return filepath.Join(r.dir, r.name)
}

func (r *rotatingFile) openCurrent() error {
	f, err := os.OpenFile(r.path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", r.path(), err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file %s: %w", r.path(), err)
	}
	r.file = f
	r.writtenSize = info.Size()
	return nil
}

// Write implements io.Writer, rotating before it would exceed maxBytes.
func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writtenSize+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.writtenSize += int64(n)
	if err != nil {
		return n, fmt.Errorf("write log file %s: %w", r.path(), err)
	}
	return n, nil
}

// Sync implements zapcore.WriteSyncer.
func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("sync log file %s: %w", r.path(), err)
	}
	return nil
}

func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close log file before rotate: %w", err)
	}
	for i := r.maxFiles - 1; i >= 1; i-- {
		src := r.numberedPath(i)
		dst := r.numberedPath(i + 1)
		if _, err := os.Stat(src); err == nil {
			if i+1 > r.maxFiles {
				_ = os.Remove(src)
				continue
			}
			_ = os.Rename(src, dst)
		}
	}
	if err := os.Rename(r.path(), r.numberedPath(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log file %s: %w", r.path(), err)
	}
	return r.openCurrent()
}

func (r *rotatingFile) numberedPath(n int) string {
	return fmt.Sprintf("%s.%d", r.path(), n)
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close log file %s: %w", r.path(), err)
	}
	return nil
}
