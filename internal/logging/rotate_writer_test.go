package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRotateWriterWriteAndRotate(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "gateway.log")
	rw, err := newRotateWriter(logPath, 50, 2)
	if err != nil {
		t.Fatalf("newRotateWriter: %v", err)
	}
	defer rw.out.Close()

	msg := []byte("request completed\n")
	n, err := rw.Write(msg)
	if err != nil || n != len(msg) {
		t.Errorf("Write() = %d, %v; want %d, nil", n, err, len(msg))
	}

	// Exceed the size limit to trigger rotation.
	big := make([]byte, 60)
	for i := range big {
		big[i] = 'x'
	}
	if _, err := rw.Write(big); err != nil {
		t.Errorf("Write() after rotation: %v", err)
	}
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected rotated backup: %v", err)
	}
}

func TestRotateWriterDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gateway.log")
	rw, err := newRotateWriter(logPath, 0, 0)
	if err != nil {
		t.Fatalf("newRotateWriter: %v", err)
	}
	defer rw.out.Close()
	if rw.limit != defaultRotateLimit || rw.backups != defaultRotateBackups {
		t.Errorf("defaults = %d, %d; want %d, %d", rw.limit, rw.backups, defaultRotateLimit, defaultRotateBackups)
	}
}

func TestRotateWriterSync(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gateway.log")
	rw, err := newRotateWriter(logPath, 100, 1)
	if err != nil {
		t.Fatalf("newRotateWriter: %v", err)
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync(): %v", err)
	}
	rw.out.Close()
	rw.out = nil
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync() with no open file: %v", err)
	}
}
