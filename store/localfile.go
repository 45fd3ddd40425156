// Package store implements the two concrete byte backends every GEDS
// handle variant is ultimately built on: a positional-I/O LocalFile and a
// page-granular memory-mapped MMapFile. Both expose rawFd for the TCP data
// plane's zero-copy sendfile path.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package store

import (
	"io"
	"os"
	"sync"

	"github.com/geds-project/geds/internal/xerrors"
)

// LocalFile is a pread/pwrite-backed byte store with explicit offset
// tracking, used when an object is backed by a plain file on local
// filesystem (as opposed to the mmap path). A recursive lock is not
// needed in Go — sync.RWMutex around seek+read/write keeps the positional
// I/O atomic against concurrent writers without requiring O_DIRECT-style
// pread(2) (which os.File.ReadAt already gives us without a seek at all).
type LocalFile struct {
	mu     sync.RWMutex
	f      *os.File
	size   int64
	sealed bool
}

// OpenLocalFile creates (or truncates) path for a fresh writable object.
func OpenLocalFile(path string) (*LocalFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, xerrors.Internalf("open local file %s: %v", path, err)
	}
	return &LocalFile{f: f}, nil
}

// OpenExistingLocalFile opens path for an already-sealed object, sizing the
// tracked length from the filesystem.
func OpenExistingLocalFile(path string) (*LocalFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, xerrors.Internalf("open local file %s: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, xerrors.Internalf("stat local file %s: %v", path, err)
	}
	return &LocalFile{f: f, size: fi.Size()}, nil
}

// Size returns the tracked logical size.
func (l *LocalFile) Size() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// ReadBytes fills buf (up to len(buf) bytes) starting at pos, returning the
// number of bytes actually read. Reads at or past size return 0, nil: this
// is not an error condition, per the boundary-case invariant in §8.
func (l *LocalFile) ReadBytes(buf []byte, pos int64) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if pos >= l.size || len(buf) == 0 {
		return 0, nil
	}
	want := int64(len(buf))
	if pos+want > l.size {
		want = l.size - pos
	}
	total := 0
	for total < int(want) {
		n, err := l.f.ReadAt(buf[total:want], pos+int64(total))
		total += n
		if err != nil {
			if err == io.EOF {
				break // truncate on EOF, matching spec: size tracked separately from fs reality
			}
			if isInterrupted(err) {
				continue
			}
			return total, xerrors.Internalf("read local file at %d: %v", pos, err)
		}
	}
	return total, nil
}

// WriteBytes writes buf at pos, zero-extending the file first if pos is
// past the current end (truncate-then-write, matching spec §4.2). Updates
// the tracked size to max(size, pos+len(buf)).
func (l *LocalFile) WriteBytes(buf []byte, pos int64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return 0, xerrors.FailedPreconditionf("write to sealed local file")
	}

	if pos > l.size {
		if err := l.truncateLocked(pos); err != nil {
			return 0, err
		}
	}
	total := 0
	for total < len(buf) {
		n, err := l.f.WriteAt(buf[total:], pos+int64(total))
		total += n
		if err != nil {
			if isInterrupted(err) {
				continue
			}
			return total, xerrors.Internalf("write local file at %d: %v", pos, err)
		}
	}
	if end := pos + int64(total); end > l.size {
		l.size = end
	}
	return total, nil
}

// Truncate sets both the filesystem size and the tracked size to target.
// Idempotent: truncating to the current size is a no-op error-wise.
func (l *LocalFile) Truncate(target int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.truncateLocked(target)
}

func (l *LocalFile) truncateLocked(target int64) error {
	if err := l.f.Truncate(target); err != nil {
		return xerrors.Internalf("truncate local file to %d: %v", target, err)
	}
	l.size = target
	return nil
}

// Seal marks the file immutable; further WriteBytes calls fail.
func (l *LocalFile) Seal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sealed = true
}

// RawFd exposes the backing descriptor for the TCP plane's sendfile path.
func (l *LocalFile) RawFd() uintptr { return l.f.Fd() }

// Close closes the underlying descriptor. Callers that want "seal then
// delete on drop" semantics (as MMapFile provides) compose that at the
// handle layer; LocalFile itself never deletes its backing path.
func (l *LocalFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

func isInterrupted(err error) bool {
	type timeout interface{ Temporary() bool }
	if t, ok := err.(timeout); ok {
		return t.Temporary()
	}
	return false
}
