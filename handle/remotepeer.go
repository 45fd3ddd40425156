package handle

import (
	"context"
	"io"

	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/objectid"
)

// PeerClient is the narrowed capability RemotePeer needs from the TCP data
// plane's peer multiplexer — "issues range reads against a peer's transfer
// service", per spec §4.5 item 3. Implemented by transport.Client.
type PeerClient interface {
	ReadRange(ctx context.Context, bucket, key string, pos, length int64, dst io.Writer) error
}

// RemotePeer issues range reads against another node's transfer service.
// Non-writable, non-sealable, non-relocatable on its own — it is the inner
// handle a Relocatable wraps when the MDS resolves an object to a peer.
type RemotePeer struct {
	base
	client PeerClient
	size   int64
}

var _ Handle = (*RemotePeer)(nil)

func NewRemotePeer(id objectid.ID, client PeerClient, size int64) *RemotePeer {
	return &RemotePeer{base: newBase(id, false, false), client: client, size: size}
}

func (h *RemotePeer) Size() int64 { return h.size }

func (h *RemotePeer) ReadBytes(buf []byte, pos int64) (int, error) {
	if pos >= h.size || len(buf) == 0 {
		return 0, nil
	}
	want := int64(len(buf))
	if pos+want > h.size {
		want = h.size - pos
	}
	cw := &countingWriter{buf: buf[:want]}
	if err := h.client.ReadRange(context.Background(), h.id.Bucket, h.id.Key, pos, want, cw); err != nil {
		return 0, xerrors.Unavailablef("remote peer read %s: %v", h.id.Identifier(), err)
	}
	return cw.n, nil
}

func (h *RemotePeer) DownloadRange(pos, length int64, dst io.Writer) error {
	if pos >= h.size || length == 0 {
		return nil
	}
	if pos+length > h.size {
		length = h.size - pos
	}
	if err := h.client.ReadRange(context.Background(), h.id.Bucket, h.id.Key, pos, length, dst); err != nil {
		return xerrors.Unavailablef("remote peer download range %s: %v", h.id.Identifier(), err)
	}
	return nil
}

// countingWriter copies into a fixed-size buffer and tracks how much was
// written, letting RemotePeer satisfy the io.Writer-based PeerClient
// contract while still returning an (n, error) pair from ReadBytes.
type countingWriter struct {
	buf []byte
	n   int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.n:], p)
	w.n += n
	if n < len(p) {
		return n, xerrors.Internalf("remote peer response exceeds requested length")
	}
	return n, nil
}
