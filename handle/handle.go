// Package handle implements the polymorphic file-handle variants (spec
// §4.5): LocalMmap, LocalFile, BackingStore, RemotePeer, Cached, and
// Relocatable. Rather than a class hierarchy (the original's Abstract +
// per-variant subclasses), each variant is an independent type satisfying
// the shared Handle interface plus whichever optional capability
// interfaces it supports — the tagged-sum-of-variants shape recommended by
// the design notes, with capabilities checked by type assertion the way
// the teacher checks "interface guards" (`var _ cluster.BackendProvider =
// (*AISBackendProvider)(nil)`) rather than by an inheritance chain.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package handle

import (
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/geds-project/geds/objectid"
)

// Handle is the capability set every variant exposes unconditionally.
// Optional capabilities (Writable, Sealable, Truncatable, RawFder,
// RawPtrer) are checked with a type assertion at the call site, matching
// spec §4.5's "capability set {size, readBytes, writeBytes?, seal?,
// truncate?, rawFd?, rawPtr?, downloadRange, notifyUnused}".
type Handle interface {
	ID() objectid.ID
	Size() int64
	ReadBytes(buf []byte, pos int64) (int, error)

	IsValid() bool
	IsWriteable() bool
	IsRelocatable() bool

	// Open increments the reference count and returns the new value,
	// updating LastOpened.
	Open() int64
	// Release decrements the reference count and returns the new value; a
	// transition to zero fires the handle's notifyUnused callback, an
	// advisory signal allowing the owning cache to evict it.
	Release() int64
	OpenCount() int64

	LastOpened() time.Time
	LastReleased() time.Time

	// DownloadRange copies [pos, pos+length) of the handle's object into
	// dst. Every variant implements it (even local ones, trivially via
	// ReadBytes) so that Cached can hydrate a block from any source.
	DownloadRange(pos, length int64, dst io.Writer) error
}

// Writable is implemented by handles that accept writes (LocalMmap,
// LocalFile).
type Writable interface {
	WriteBytes(buf []byte, pos int64) (int, error)
}

// Sealable is implemented by handles whose owner can publish a sealed size.
type Sealable interface {
	Seal() error
}

// Truncatable is implemented by local, writable handles.
type Truncatable interface {
	Truncate(size int64) error
}

// RawFder exposes a raw descriptor for the TCP plane's sendfile path.
type RawFder interface {
	RawFd() (uintptr, bool)
}

// RawPtrer exposes a bounded read-only view for the TCP plane's
// scatter-gather send path; only valid once the handle is sealed.
type RawPtrer interface {
	RawPtr(pos, length int64) ([]byte, error)
}

// base is embedded by every concrete variant: it carries the open-count,
// validity/capability flags, and timestamps spec §3 requires of every
// handle, plus the notifyUnused advisory hook.
type base struct {
	id objectid.ID

	openCount atomic.Int64 // not under any lock, per spec §5

	mu            sync.Mutex // guards timestamps and valid/writeable flags only
	valid         bool
	writeable     bool
	relocatable   bool
	lastOpened    time.Time
	lastReleased  time.Time

	// onUnused is invoked (outside any lock) the instant openCount
	// transitions from positive to zero — the "notified unused" advisory
	// from spec §3. The handle cache (node package) supplies it; tests may
	// leave it nil.
	onUnused func()
}

func newBase(id objectid.ID, writeable, relocatable bool) base {
	return base{id: id, valid: true, writeable: writeable, relocatable: relocatable}
}

func (b *base) ID() objectid.ID { return b.id }

func (b *base) IsValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valid
}

func (b *base) invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid = false
}

func (b *base) IsWriteable() bool   { return b.writeable }
func (b *base) IsRelocatable() bool { return b.relocatable }

func (b *base) Open() int64 {
	n := b.openCount.Inc()
	b.mu.Lock()
	b.lastOpened = time.Now()
	b.mu.Unlock()
	return n
}

func (b *base) Release() int64 {
	n := b.openCount.Dec()
	b.mu.Lock()
	b.lastReleased = time.Now()
	b.mu.Unlock()
	if n == 0 && b.onUnused != nil {
		b.onUnused()
	}
	return n
}

func (b *base) OpenCount() int64 { return b.openCount.Load() }

func (b *base) LastOpened() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastOpened
}

func (b *base) LastReleased() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastReleased
}

// downloadRangeViaRead is the shared DownloadRange implementation for
// variants whose ReadBytes is already a local, in-process copy (LocalMmap,
// LocalFile): chunk through a bounded buffer rather than assuming the whole
// range fits in memory at once.
func downloadRangeViaRead(h Handle, pos, length int64, dst io.Writer) error {
	const chunkSize = 4 << 20
	buf := make([]byte, chunkSize)
	remaining := length
	for remaining > 0 {
		want := int64(len(buf))
		if want > remaining {
			want = remaining
		}
		n, err := h.ReadBytes(buf[:want], pos)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if _, werr := dst.Write(buf[:n]); werr != nil {
			return werr
		}
		pos += int64(n)
		remaining -= int64(n)
	}
	return nil
}
