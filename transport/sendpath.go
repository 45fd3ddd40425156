package transport

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/geds-project/geds/handle"
)

// SendRange writes length bytes of h starting at pos to conn, choosing the
// cheapest path the handle's capabilities allow (spec §4.6 "Serving
// paths"):
//
//  1. scatter-gather over a direct memory pointer (handle.RawPtrer);
//  2. sendfile over a raw descriptor, once length reaches MinSendfileSize
//     (handle.RawFder);
//  3. a pooled page-aligned buffer copy, otherwise.
func SendRange(conn *net.TCPConn, h handle.Handle, pos, length int64, pool *BufPool) error {
	if rp, ok := h.(handle.RawPtrer); ok {
		if p, err := rp.RawPtr(pos, length); err == nil {
			return sendScatterGather(conn, p)
		}
	}
	if rf, ok := h.(handle.RawFder); ok && length >= MinSendfileSize {
		if fd, ok2 := rf.RawFd(); ok2 {
			return sendFile(conn, fd, pos, length)
		}
	}
	return sendBuffered(conn, h, pos, length, pool)
}

// sendScatterGather writes a single borrowed byte slice via net.Buffers,
// which the runtime may itself implement with writev.
func sendScatterGather(conn *net.TCPConn, p []byte) error {
	bufs := net.Buffers{p}
	_, err := bufs.WriteTo(conn)
	return err
}

// sendFile loops unix.Sendfile over conn's raw descriptor until length
// bytes have been transferred, yielding to the runtime poller on EAGAIN —
// the Go translation of "loop sendfile (with EAGAIN yielding back to the
// poller)": conn.SyscallConn's Write callback is re-invoked by the runtime
// only once the descriptor is writable again, so a `false` return here
// costs no busy-loop.
func sendFile(conn *net.TCPConn, srcFd uintptr, pos, length int64) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	remaining := length
	offset := pos
	var sendErr error
	for remaining > 0 {
		cerr := raw.Write(func(dstFd uintptr) bool {
			n, werr := unix.Sendfile(int(dstFd), int(srcFd), &offset, int(remaining))
			if werr == unix.EAGAIN {
				return false // not ready: let the poller re-arm us
			}
			if werr != nil {
				sendErr = werr
				return true
			}
			if n == 0 {
				sendErr = io.ErrUnexpectedEOF
				return true
			}
			remaining -= int64(n)
			return remaining == 0
		})
		if cerr != nil {
			return cerr
		}
		if sendErr != nil {
			return sendErr
		}
	}
	return nil
}

// sendBuffered copies h's [pos, pos+length) range through a pooled
// page-aligned buffer, writing each chunk with scatter-gather and
// returning the buffer to the pool on completion.
func sendBuffered(conn *net.TCPConn, h handle.Handle, pos, length int64, pool *BufPool) error {
	buf := pool.Get()
	defer pool.Put(buf)

	remaining := length
	cur := pos
	for remaining > 0 {
		want := int64(len(buf))
		if want > remaining {
			want = remaining
		}
		n, err := h.ReadBytes(buf[:want], cur)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("transport: short read serving range")
		}
		if err := sendScatterGather(conn, buf[:n]); err != nil {
			return err
		}
		cur += int64(n)
		remaining -= int64(n)
	}
	return nil
}
