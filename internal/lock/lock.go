// Package lock keeps one daemon per instance directory.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const fileName = "LOCK"

// LockHeldError is returned when another process holds the instance lock.
type LockHeldError struct {
	PID  int
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("instance lock held by PID %d (%s)", e.PID, e.Path)
}

// Lock represents an acquired instance lock file. The file holds key=value
// lines: pid, time and whatever the daemon adds with Annotate.
type Lock struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	fields map[string]string
}

// Acquire attempts to acquire an exclusive lock on the instance directory.
// Returns LockHeldError if another process already holds it.
func Acquire(dir string) (*Lock, error) {
	lockPath := filepath.Join(dir, fileName)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create instance dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		info, _ := Read(dir)
		_ = f.Close()
		return nil, &LockHeldError{PID: info.PID, Path: lockPath}
	}

	l := &Lock{
		file: f,
		path: lockPath,
		fields: map[string]string{
			"pid":  strconv.Itoa(os.Getpid()),
			"time": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := l.flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

// Annotate records key=value in the lock file for other processes to read.
func (l *Lock) Annotate(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("annotate %s: lock released", key)
	}
	l.fields[key] = value
	return l.flush()
}

func (l *Lock) flush() error {
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, l.fields[k])
	}

	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if _, err := l.file.WriteAt([]byte(b.String()), 0); err != nil {
		return err
	}
	return nil
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	// Remove lock file before closing to avoid stale files.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Info is what a lock file says about its holder.
type Info struct {
	PID    int
	Fields map[string]string
}

// Read parses the lock file of dir without taking the lock.
func Read(dir string) (Info, error) {
	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		return Info{}, err
	}
	info := Info{Fields: map[string]string{}}
	for _, line := range strings.Split(string(data), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		info.Fields[k] = v
	}
	info.PID, _ = strconv.Atoi(info.Fields["pid"])
	return info, nil
}
