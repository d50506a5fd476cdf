package logger

import (
	"fmt"
	"os"
	"sync"
)

// RotatingWriter is a file writer that moves the file aside once it reaches
// maxSize bytes. Backups are numbered: name.1 is the newest, name.<maxBackups>
// the oldest. Older backups are removed.
type RotatingWriter struct {
	mu         sync.Mutex
	filename   string
	maxSize    int64
	maxBackups int
	file       *os.File
	size       int64
}

// NewRotatingWriter opens filename for appending. A maxSize of zero disables
// rotation.
func NewRotatingWriter(filename string, maxSize int64, maxBackups int) (*RotatingWriter, error) {
	rw := &RotatingWriter{filename: filename, maxSize: maxSize, maxBackups: maxBackups}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %v", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %v", err)
	}
	rw.file = f
	rw.size = st.Size()
	return nil
}

// Write implements io.Writer. The entry that crosses the limit is written
// whole; rotation happens before the next one.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, os.ErrClosed
	}
	if rw.maxSize > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %v", err)
		}
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Close closes the current file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close current file: %v", err)
	}
	rw.file = nil

	if rw.maxBackups == 0 {
		if err := os.Remove(rw.filename); err != nil && !os.IsNotExist(err) {
			return err
		}
		return rw.open()
	}

	_ = os.Remove(rw.backupName(rw.maxBackups))
	for i := rw.maxBackups - 1; i >= 1; i-- {
		if err := os.Rename(rw.backupName(i), rw.backupName(i+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Rename(rw.filename, rw.backupName(1)); err != nil {
		return fmt.Errorf("rename log file: %v", err)
	}
	return rw.open()
}

func (rw *RotatingWriter) backupName(i int) string {
	return fmt.Sprintf("%s.%d", rw.filename, i)
}
