package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var errFileClosed = errors.New("log file closed")

// RotatingFile is an io.Writer over a log file that is rotated to
// path.1 .. path.N once it grows past MaxSize.
type RotatingFile struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxSize  int64
	maxFiles int
	written  int64
}

// OpenRotatingFile opens path for appending. maxSize <= 0 means 10MB and
// maxFiles <= 0 keeps 5 rotated files.
func OpenRotatingFile(path string, maxSize int64, maxFiles int) (*RotatingFile, error) {
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	rf := &RotatingFile{file: f, path: path, maxSize: maxSize, maxFiles: maxFiles}
	if info, err := f.Stat(); err == nil {
		rf.written = info.Size()
	}
	return rf, nil
}

// Write implements io.Writer. A single write is never split across files.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, errFileClosed
	}
	n, err := rf.file.Write(p)
	rf.written += int64(n)
	if err != nil {
		return n, err
	}
	if rf.written >= rf.maxSize {
		rf.rotate()
	}
	return n, nil
}

// Close closes the current file.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

func (rf *RotatingFile) rotate() {
	rf.file.Close()
	rf.file = nil

	for i := rf.maxFiles - 1; i > 0; i-- {
		os.Rename(fmt.Sprintf("%s.%d", rf.path, i), fmt.Sprintf("%s.%d", rf.path, i+1))
	}
	os.Rename(rf.path, rf.path+".1")
	os.Remove(fmt.Sprintf("%s.%d", rf.path, rf.maxFiles+1))

	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		// slog may be writing through this file; report on stderr only
		fmt.Fprintf(os.Stderr, "reopen rotated log file %s: %v\n", rf.path, err)
		return
	}
	rf.file = f
	rf.written = 0
}
