package handle

import (
	"bytes"
	"io"

	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/objectid"
)

// BackingStoreClient is the narrowed capability BackingStore needs from
// the S3 adapter — a capability reference rather than a back-pointer to
// the whole node, per the design notes on replacing cyclic back-references
// with narrowed traits.
type BackingStoreClient interface {
	Get(bucket, key string, offset, length int64, whole bool, dst io.Writer) error
	Put(bucket, key string, data io.ReadSeeker) error
}

// BackingStore wraps a fixed (bucket,key,size) object living in the
// durable S3-compatible store. Non-writable; Seal does not move any bytes,
// it only publishes the s3:// location to the MDS through onSeal, since the
// data already lives there by construction.
type BackingStore struct {
	base
	client BackingStoreClient
	size   int64
	// onSeal, when set, is invoked by Seal to publish the s3:// location to
	// the MDS — the narrowed capability the node supplies instead of
	// BackingStore holding a reference back to the whole node.
	onSeal func() error
}

var (
	_ Handle   = (*BackingStore)(nil)
	_ Sealable = (*BackingStore)(nil)
)

func NewBackingStore(id objectid.ID, client BackingStoreClient, size int64, onSeal func() error) *BackingStore {
	return &BackingStore{base: newBase(id, false, false), client: client, size: size, onSeal: onSeal}
}

// Seal publishes the s3:// location to the MDS via onSeal. The object's
// bytes already live in the backing store by construction; sealing here
// only makes the MDS aware of the fact.
func (h *BackingStore) Seal() error {
	if h.onSeal == nil {
		return nil
	}
	return h.onSeal()
}

func (h *BackingStore) Size() int64 { return h.size }

func (h *BackingStore) ReadBytes(buf []byte, pos int64) (int, error) {
	if pos >= h.size || len(buf) == 0 {
		return 0, nil
	}
	want := int64(len(buf))
	if pos+want > h.size {
		want = h.size - pos
	}
	var out bytes.Buffer
	if err := h.client.Get(h.id.Bucket, h.id.Key, pos, want, false, &out); err != nil {
		return 0, xerrors.Internalf("backing store read %s: %v", h.id.Identifier(), err)
	}
	n := copy(buf[:want], out.Bytes())
	return n, nil
}

func (h *BackingStore) DownloadRange(pos, length int64, dst io.Writer) error {
	if pos >= h.size || length == 0 {
		return nil
	}
	if pos+length > h.size {
		length = h.size - pos
	}
	if err := h.client.Get(h.id.Bucket, h.id.Key, pos, length, false, dst); err != nil {
		return xerrors.Internalf("backing store download range %s: %v", h.id.Identifier(), err)
	}
	return nil
}
