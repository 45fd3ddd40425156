package handle

import (
	"io"

	"github.com/geds-project/geds/objectid"
	"github.com/geds-project/geds/store"
)

// LocalFile is the pread/pwrite-backed variant, used when the node has
// chosen (or been asked) not to memory-map an object — e.g. very large
// cache blocks where a mapping would hold too much address space open.
type LocalFile struct {
	base
	f *store.LocalFile
}

var (
	_ Handle      = (*LocalFile)(nil)
	_ Writable    = (*LocalFile)(nil)
	_ Sealable    = (*LocalFile)(nil)
	_ Truncatable = (*LocalFile)(nil)
	_ RawFder     = (*LocalFile)(nil)
)

func NewLocalFile(id objectid.ID, path string, onUnused func()) (*LocalFile, error) {
	f, err := store.OpenLocalFile(path)
	if err != nil {
		return nil, err
	}
	h := &LocalFile{base: newBase(id, true, false), f: f}
	h.onUnused = onUnused
	return h, nil
}

// OpenExistingLocalFile wraps an already-populated file on disk (e.g. a
// sealed object reopened after a node restart discovers leftover state —
// not expected in normal operation since local cache is discarded, but
// used by the Relocatable "reopen same backend" path in tests).
func OpenExistingLocalFile(id objectid.ID, path string, onUnused func()) (*LocalFile, error) {
	f, err := store.OpenExistingLocalFile(path)
	if err != nil {
		return nil, err
	}
	h := &LocalFile{base: newBase(id, true, false), f: f}
	h.onUnused = onUnused
	return h, nil
}

func (h *LocalFile) Size() int64 { return h.f.Size() }

func (h *LocalFile) ReadBytes(buf []byte, pos int64) (int, error) { return h.f.ReadBytes(buf, pos) }

func (h *LocalFile) WriteBytes(buf []byte, pos int64) (int, error) { return h.f.WriteBytes(buf, pos) }

func (h *LocalFile) Truncate(size int64) error { return h.f.Truncate(size) }

// Seal marks the file immutable, matching LocalMmap's Seal semantics:
// size is frozen going forward, further writes fail.
func (h *LocalFile) Seal() error {
	h.f.Seal()
	return nil
}

func (h *LocalFile) RawFd() (uintptr, bool) { return h.f.RawFd(), true }

func (h *LocalFile) DownloadRange(pos, length int64, dst io.Writer) error {
	return downloadRangeViaRead(h, pos, length, dst)
}

func (h *LocalFile) Close() error {
	h.invalidate()
	return h.f.Close()
}
