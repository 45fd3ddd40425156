package handle

import (
	"io"

	"github.com/geds-project/geds/objectid"
	"github.com/geds-project/geds/store"
)

// LocalMmap is the default handle created by create(bucket,key): a
// writable, sealable, memory-mapped local object.
type LocalMmap struct {
	base
	f *store.MMapFile
}

var (
	_ Handle      = (*LocalMmap)(nil)
	_ Writable    = (*LocalMmap)(nil)
	_ Sealable    = (*LocalMmap)(nil)
	_ RawFder     = (*LocalMmap)(nil)
	_ RawPtrer    = (*LocalMmap)(nil)
)

// NewLocalMmap creates a fresh, writable LocalMmap handle backed by a new
// file at path. onUnused may be nil.
func NewLocalMmap(id objectid.ID, path string, onUnused func()) (*LocalMmap, error) {
	f, err := store.CreateMMapFile(path)
	if err != nil {
		return nil, err
	}
	h := &LocalMmap{base: newBase(id, true /*writeable*/, false /*relocatable*/), f: f}
	h.onUnused = onUnused
	return h, nil
}

func (h *LocalMmap) Size() int64 { return h.f.Size() }

func (h *LocalMmap) ReadBytes(buf []byte, pos int64) (int, error) { return h.f.ReadBytes(buf, pos) }

func (h *LocalMmap) WriteBytes(buf []byte, pos int64) (int, error) { return h.f.WriteBytes(buf, pos) }

// Seal marks the mapping immutable. Per spec, a sealed handle never
// observes a decrease in size; Seal does not itself change size, it only
// freezes it going forward.
func (h *LocalMmap) Seal() error {
	h.f.Seal()
	return nil
}

func (h *LocalMmap) RawFd() (uintptr, bool) { return h.f.RawFd(), true }

func (h *LocalMmap) RawPtr(pos, length int64) ([]byte, error) { return h.f.RawPtr(pos, length) }

func (h *LocalMmap) DownloadRange(pos, length int64, dst io.Writer) error {
	return downloadRangeViaRead(h, pos, length, dst)
}

// Close releases the backing mapping and deletes the on-disk file; callers
// invoke this once the handle has been invalidated (e.g. on relocation
// completion) rather than on every Release.
func (h *LocalMmap) Close() error {
	h.invalidate()
	return h.f.Close()
}
