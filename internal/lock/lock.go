package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrLocked is returned by Acquire when another run holds the lock.
var ErrLocked = errors.New("another run is in progress")

// FileLock guards the output directories against concurrent runs. The lock
// file holds the pid of its owner.
type FileLock struct {
	path string
}

// Acquire creates path exclusively. An existing lock file yields ErrLocked,
// wrapped with the owner pid when it can be read.
func Acquire(path string) (*FileLock, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		if pid, ok := owner(path); ok {
			return nil, fmt.Errorf("%w (pid %d, lock file %s)", ErrLocked, pid, path)
		}
		return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
	}

	_, werr := fmt.Fprintf(file, "%d\n%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	cerr := file.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, errors.Join(werr, cerr))
	}

	return &FileLock{path: path}, nil
}

func (l *FileLock) Path() string {
	return l.path
}

// Release removes the lock file. Releasing twice is a no-op.
func (l *FileLock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	return nil
}

func owner(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	first, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, false
	}
	return pid, true
}
