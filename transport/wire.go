// Package transport implements the TCP data plane (spec §4.6): the
// ASCII-header/binary-payload wire format, a per-connection state machine
// with zero-copy send paths, and a peer multiplexer client used by
// handle.RemotePeer to issue range reads against another node.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/geds-project/geds/internal/xerrors"
)

// getLineRe matches "GET <bucket>/<key>\nRANGE <offset> <length>\0" with
// explicit submatch indices — the wire parser bug named in the spec
// (`bucket = m[0]`, the whole match, instead of `m[1]`) is deliberately not
// reproduced here.
var getLineRe = regexp.MustCompile(`^GET ([^/\n]+)/([^\n]+)\nRANGE (\d+) (\d+)\x00$`)

// GetRequest is a parsed "GET <bucket>/<key>\nRANGE <offset> <length>\0"
// request line.
type GetRequest struct {
	Bucket string
	Key    string
	Offset int64
	Length int64
}

// ParseGetRequest parses line, which must include the trailing NUL byte.
// Submatch 1 is the bucket, submatch 2 the key — never the whole match
// (spec §9: "parseGetRequest ... assigns bucket = m[0] ... implementers
// must not mirror the buggy indexing").
func ParseGetRequest(line string) (GetRequest, error) {
	m := getLineRe.FindStringSubmatch(line)
	if m == nil {
		return GetRequest{}, xerrors.InvalidArgumentf("malformed GET request line %q", line)
	}
	bucket, key := m[1], m[2]
	offset, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return GetRequest{}, xerrors.InvalidArgumentf("malformed offset in %q: %v", line, err)
	}
	length, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return GetRequest{}, xerrors.InvalidArgumentf("malformed length in %q: %v", line, err)
	}
	return GetRequest{Bucket: bucket, Key: key, Offset: offset, Length: length}, nil
}

// EncodeGetRequest renders req back into the wire's ASCII request line,
// including the trailing NUL.
func EncodeGetRequest(req GetRequest) string {
	return fmt.Sprintf("GET %s/%s\nRANGE %d %d\x00", req.Bucket, req.Key, req.Offset, req.Length)
}

// ReadGetRequestLine reads one request line (through the trailing NUL) off
// r, bounded by maxLine to avoid an unbounded read from a misbehaving peer.
func ReadGetRequestLine(r *bufio.Reader, maxLine int) (string, error) {
	line := make([]byte, 0, 128)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		line = append(line, b)
		if len(line) > maxLine {
			return "", xerrors.InvalidArgumentf("request line exceeds %d bytes", maxLine)
		}
		if b == 0 {
			return string(line), nil
		}
	}
}

// ResponseHeader is the fixed-size header preceding every GET response's
// payload: `struct { int32 statusCode; uint64 length; }`, little-endian on
// the wire. On error, the length bytes that follow are the UTF-8 error
// message rather than object data.
type ResponseHeader struct {
	StatusCode int32
	Length     uint64
}

const responseHeaderSize = 4 + 8

// WriteResponseHeader writes hdr's binary encoding to w.
func WriteResponseHeader(w io.Writer, hdr ResponseHeader) error {
	var buf [responseHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(hdr.StatusCode))
	binary.LittleEndian.PutUint64(buf[4:12], hdr.Length)
	_, err := w.Write(buf[:])
	return err
}

// ReadResponseHeader reads and decodes a ResponseHeader from r.
func ReadResponseHeader(r io.Reader) (ResponseHeader, error) {
	var buf [responseHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ResponseHeader{}, err
	}
	return ResponseHeader{
		StatusCode: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Length:     binary.LittleEndian.Uint64(buf[4:12]),
	}, nil
}
