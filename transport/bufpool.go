package transport

import "golang.org/x/sys/unix"

// MinSendfileSize is the length threshold below which the copy-through-
// pooled-buffer path is cheaper than a sendfile syscall round trip; lifted
// from original_source's MIN_SENDFILE_SIZE constant.
const MinSendfileSize = 4096

// BufPool is a bounded pool of page-aligned buffers used by the fallback
// send path (spec §4.6: "a pooled page-aligned buffer from a bounded
// lockfree stack"). A buffered channel gives the same bounded,
// non-allocating-on-steady-state behavior as a lockfree stack without hand
// -rolled CAS loops, which Go's scheduler-integrated channels already do
// efficiently for this access pattern.
type BufPool struct {
	size int
	c    chan []byte
}

// NewBufPool creates a pool of capacity buffers, each bufSize bytes,
// rounded up to the OS page size.
func NewBufPool(capacity, bufSize int) *BufPool {
	pageSize := unix.Getpagesize()
	if bufSize%pageSize != 0 {
		bufSize = (bufSize/pageSize + 1) * pageSize
	}
	return &BufPool{size: bufSize, c: make(chan []byte, capacity)}
}

// Get returns a buffer from the pool, allocating a fresh one if the pool is
// currently empty.
func (p *BufPool) Get() []byte {
	select {
	case b := <-p.c:
		return b
	default:
		return make([]byte, p.size)
	}
}

// Put returns b to the pool, dropping it if the pool is at capacity.
func (p *BufPool) Put(b []byte) {
	if len(b) != p.size {
		return
	}
	select {
	case p.c <- b:
	default:
	}
}
