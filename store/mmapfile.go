package store

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/geds-project/geds/internal/xerrors"
)

// pageSize is fetched once at init via unix.Getpagesize(), matching the
// teacher's convention of resolving OS constants lazily rather than
// hardcoding 4096 (aarch64/ppc64 pages can be larger).
var pageSize = unix.Getpagesize()

func roundUpToPage(n int64) int64 {
	ps := int64(pageSize)
	return (n + ps - 1) / ps * ps
}

// MMapFile is the zero-copy byte backend: reads and writes go straight
// through a memory mapping instead of syscalls, and RawPtr hands out a
// bounded read-only slice once the handle is sealed for the TCP plane's
// scatter-gather send path.
type MMapFile struct {
	mu       sync.RWMutex
	f        *os.File
	path     string
	size     int64 // logical size
	mmapSize int64 // multiple of pageSize
	data     []byte
	sealed   bool
}

// CreateMMapFile creates a fresh, empty, writable mmap-backed object at
// path.
func CreateMMapFile(path string) (*MMapFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, xerrors.Internalf("create mmap file %s: %v", path, err)
	}
	return &MMapFile{f: f, path: path}, nil
}

func (m *MMapFile) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// grow extends the mapping (and backing file, via fallocate) to cover at
// least target bytes, rounding to whole pages and remapping with MREMAP_MAYMOVE
// since the new region may not be extendable in place.
func (m *MMapFile) grow(target int64) error {
	if target <= m.mmapSize {
		return nil
	}
	newMmapSize := roundUpToPage(target)
	if err := unix.Fallocate(int(m.f.Fd()), 0, 0, newMmapSize); err != nil {
		return xerrors.Internalf("fallocate %s to %d: %v", m.path, newMmapSize, err)
	}
	if m.data == nil {
		data, err := unix.Mmap(int(m.f.Fd()), 0, int(newMmapSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return xerrors.Internalf("mmap %s: %v", m.path, err)
		}
		m.data = data
	} else {
		newData, err := unix.Mremap(m.data, int(newMmapSize), unix.MREMAP_MAYMOVE)
		if err != nil {
			return xerrors.Internalf("mremap %s to %d: %v", m.path, newMmapSize, err)
		}
		m.data = newData
	}
	m.mmapSize = newMmapSize
	return nil
}

// ReadBytes memcpys from the mapping, truncated against the logical size.
func (m *MMapFile) ReadBytes(buf []byte, pos int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pos >= m.size || len(buf) == 0 {
		return 0, nil
	}
	want := int64(len(buf))
	if pos+want > m.size {
		want = m.size - pos
	}
	n := copy(buf[:want], m.data[pos:pos+want])
	return n, nil
}

// WriteBytes grows the mapping if the write extends past the current size,
// then memcpys buf in and bumps size.
func (m *MMapFile) WriteBytes(buf []byte, pos int64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return 0, xerrors.FailedPreconditionf("write to sealed mmap file %s", m.path)
	}
	end := pos + int64(len(buf))
	if end > m.mmapSize {
		if err := m.grow(end); err != nil {
			return 0, err
		}
	}
	n := copy(m.data[pos:end], buf)
	if end > m.size {
		m.size = end
	}
	return n, nil
}

// Seal marks the mapping immutable; RawPtr only succeeds after Seal.
func (m *MMapFile) Seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = true
}

// RawPtr returns a bounded read-only view into the mapping for the TCP
// plane's scatter-gather send path. Fails while the handle is still being
// written to, since the backing slice may be invalidated by a concurrent
// grow/remap.
func (m *MMapFile) RawPtr(pos, length int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.sealed {
		return nil, xerrors.FailedPreconditionf("rawPtr on %s: write in progress", m.path)
	}
	if pos+length > m.size {
		return nil, xerrors.InvalidArgumentf("rawPtr range [%d,%d) exceeds size %d", pos, pos+length, m.size)
	}
	return m.data[pos : pos+length], nil
}

// RawFd exposes the backing descriptor for the TCP plane's sendfile path.
func (m *MMapFile) RawFd() uintptr { return m.f.Fd() }

// Close unmaps and deletes the underlying file — MMapFile objects are
// ephemeral local cache state, never meant to outlive the node process.
func (m *MMapFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = xerrors.Internalf("munmap %s: %v", m.path, err)
		}
		m.data = nil
	}
	if err := m.f.Close(); err != nil && firstErr == nil {
		firstErr = xerrors.Internalf("close %s: %v", m.path, err)
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = xerrors.Internalf("remove %s: %v", m.path, err)
	}
	return firstErr
}
