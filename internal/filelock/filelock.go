// Package filelock provides file locking and atomic writes for artifact
// files that may be touched by concurrent plan executions, across both
// goroutines and processes.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ArtifactLock wraps a flock file lock coordinating access to one artifact.
type ArtifactLock struct {
	flock *flock.Flock
	path  string
}

// New creates a lock for the given path. The lock file is created at
// that path on first acquisition.
func New(path string) *ArtifactLock {
	return &ArtifactLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Lock acquires an exclusive lock, blocking until it is available.
func (al *ArtifactLock) Lock() error {
	if err := al.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", al.path, err)
	}
	return nil
}

// TryLock attempts to acquire an exclusive lock without blocking.
// Returns true if the lock was acquired.
func (al *ArtifactLock) TryLock() (bool, error) {
	acquired, err := al.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock on %s: %w", al.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (al *ArtifactLock) Unlock() error {
	if err := al.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock on %s: %w", al.path, err)
	}
	return nil
}

// AtomicWrite writes data to path via a temp file and rename so readers
// never observe a partial artifact. If the write fails at any point, an
// existing artifact at path is left unchanged.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Temp file in the target directory keeps the rename on one filesystem.
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	// Rename succeeded; suppress the deferred cleanup.
	tempFile = nil

	// The new directory entry is durable only once the directory itself
	// is flushed.
	dirFile, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory %s: %w", dir, err)
	}
	defer dirFile.Close()
	if err := dirFile.Sync(); err != nil {
		return fmt.Errorf("sync directory %s: %w", dir, err)
	}

	return nil
}

// LockAndWrite acquires a lock, performs an atomic write, and releases
// the lock. The lock path is the target path with ".lock" appended.
func LockAndWrite(path string, data []byte) error {
	lock := New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	return AtomicWrite(path, data)
}
