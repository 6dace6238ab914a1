package logging

import (
	"fmt"
	"os"
	"sync"
)

const (
	defaultRotateLimit   = int64(10 << 20)
	defaultRotateBackups = 5
)

// rotateWriter is the WriteSyncer behind file-based log output. When
// the current file would grow past limit bytes it is renamed to
// <path>.1 and a fresh file opened; older backups shift up one suffix
// and anything past backups falls off the end.
type rotateWriter struct {
	path    string
	limit   int64
	backups int

	mu  sync.Mutex
	out *os.File
}

func newRotateWriter(path string, limit int64, backups int) (*rotateWriter, error) {
	if limit <= 0 {
		limit = defaultRotateLimit
	}
	if backups <= 0 {
		backups = defaultRotateBackups
	}
	rw := &rotateWriter{path: path, limit: limit, backups: backups}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *rotateWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	rw.out = f
	return nil
}

func (rw *rotateWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.out == nil {
		if err := rw.open(); err != nil {
			return 0, err
		}
	}
	if fi, err := rw.out.Stat(); err == nil && fi.Size()+int64(len(p)) > rw.limit {
		rw.out.Close()
		rw.shiftBackups()
		if err := rw.open(); err != nil {
			return 0, err
		}
	}
	return rw.out.Write(p)
}

// shiftBackups renames path to path.1, path.1 to path.2, and so on,
// highest suffix first so nothing is clobbered. Rename failures are
// ignored; losing a backup must not block logging.
func (rw *rotateWriter) shiftBackups() {
	for i := rw.backups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", rw.path, i)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, fmt.Sprintf("%s.%d", rw.path, i+1))
		}
	}
	_ = os.Rename(rw.path, rw.path+".1")
}

func (rw *rotateWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.out == nil {
		return nil
	}
	return rw.out.Sync()
}
