package handle

import (
	"io"
	"sync"

	"github.com/geds-project/geds/internal/glog"
	"github.com/geds-project/geds/objectid"
)

// Resolver is the narrowed capability Relocatable needs to re-resolve an
// object after its inner handle fails: an MDS lookup plus "pick the right
// variant" decision, supplied by the node package rather than Relocatable
// holding a back-reference to the whole node.
type Resolver interface {
	Resolve(id objectid.ID, invalidate bool) (Handle, error)
}

// Relocatable wraps any other variant and transparently re-resolves it via
// the MDS on a read failure — spec §4.5 item 5. It is the only variant
// that itself contains another variant; all operations besides ReadBytes
// simply delegate to the current inner handle.
type Relocatable struct {
	base
	mu       sync.Mutex
	inner    Handle
	resolver Resolver
}

var _ Handle = (*Relocatable)(nil)

func NewRelocatable(id objectid.ID, inner Handle, resolver Resolver) *Relocatable {
	return &Relocatable{base: newBase(id, inner.IsWriteable(), true), inner: inner, resolver: resolver}
}

func (h *Relocatable) current() Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inner
}

func (h *Relocatable) Size() int64 { return h.current().Size() }

// ReadBytes retries exactly once on failure: re-resolve via the MDS with
// invalidate=true, swap in the new inner handle, retry. A second failure
// propagates to the caller without a further retry (spec §7: "the
// Relocatable handle consumes one retry on peer-level errors ... before
// surfacing").
func (h *Relocatable) ReadBytes(buf []byte, pos int64) (int, error) {
	inner := h.current()
	n, err := inner.ReadBytes(buf, pos)
	if err == nil {
		return n, nil
	}
	glog.Warningf("relocatable %s: read failed on current inner handle (%v), re-resolving", h.id, err)
	if rerr := h.reresolve(inner); rerr != nil {
		return n, err // re-resolution itself failed: surface the original read error
	}
	return h.current().ReadBytes(buf, pos)
}

// reresolve obtains the lock, verifies the inner handle has not already
// been swapped by a concurrent caller (spec: "verifies the inner handle
// has not already changed"), and if not, re-resolves via MDS and swaps in
// the new inner handle.
func (h *Relocatable) reresolve(observed Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inner != observed {
		return nil // another caller already re-resolved; nothing to do
	}
	next, err := h.resolver.Resolve(h.id, true)
	if err != nil {
		return err
	}
	h.inner = next
	return nil
}

func (h *Relocatable) WriteBytes(buf []byte, pos int64) (int, error) {
	w, ok := h.current().(Writable)
	if !ok {
		return 0, notWritable(h.id)
	}
	return w.WriteBytes(buf, pos)
}

func (h *Relocatable) Seal() error {
	s, ok := h.current().(Sealable)
	if !ok {
		return notSealable(h.id)
	}
	return s.Seal()
}

func (h *Relocatable) Truncate(size int64) error {
	t, ok := h.current().(Truncatable)
	if !ok {
		return notTruncatable(h.id)
	}
	return t.Truncate(size)
}

func (h *Relocatable) RawFd() (uintptr, bool) {
	r, ok := h.current().(RawFder)
	if !ok {
		return 0, false
	}
	return r.RawFd()
}

func (h *Relocatable) RawPtr(pos, length int64) ([]byte, error) {
	r, ok := h.current().(RawPtrer)
	if !ok {
		return nil, notRawPtr(h.id)
	}
	return r.RawPtr(pos, length)
}

func (h *Relocatable) DownloadRange(pos, length int64, dst io.Writer) error {
	return h.current().DownloadRange(pos, length, dst)
}
