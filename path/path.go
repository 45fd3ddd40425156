// Package path implements the key ordering and prefix-lookup primitives
// shared by the metadata KVS and the cache-block namespace: a byte-lex
// total order over object keys, a half-open prefix-range probe that
// exploits a sorted container without a full scan, and the directory-marker
// convention used to represent empty S3-style folders in a flat key space.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package path

import "bytes"

// DirectoryMarkerSuffix is appended after a delimiter to represent an empty
// folder in a flat key space (see original GEDS source, common/DirectoryMarker.h).
const DirectoryMarkerSuffix = "_$DirectoryMarker_"

// Path is a single ordered key. Name carries the raw, byte-lex-comparable
// bytes of the key; containers (buckets, cache-block namespaces) are kept
// sorted by Order so that PrefixRange can binary-search instead of scan.
type Path struct {
	Name string
}

// Order is the total order used by every sorted key container in GEDS:
// plain byte-lex on the raw key, independent of insertion order.
func Order(a, b Path) int {
	return bytes.Compare([]byte(a.Name), []byte(b.Name))
}

// Less reports whether a sorts strictly before b under Order; convenience
// for sort.Slice / sort.Search call sites.
func Less(a, b Path) bool { return Order(a, b) < 0 }

// probe is a heterogeneous comparison key: comparing a probe to a Path
// compares probe.prefix to the leading len(prefix) bytes of Path.Name,
// so a sorted slice of Path can be searched by prefix without materializing
// every candidate key.
type probe struct {
	prefix string
}

// compare implements the heterogeneous ordering between a probe and a Path:
// probe < p  iff prefix is lexicographically less than p.Name truncated to
// len(prefix) bytes (or p.Name is shorter than prefix and is a proper
// prefix of it, in which case probe sorts after).
func (pb probe) compare(p Path) int {
	n := len(pb.prefix)
	name := p.Name
	if len(name) > n {
		name = name[:n]
	}
	if c := bytes.Compare([]byte(pb.prefix), []byte(name)); c != 0 {
		return c
	}
	if len(p.Name) < n {
		return 1 // prefix is strictly longer than the key: key sorts first
	}
	return 0
}

// Ordered is the minimal contract PrefixRange needs from a container: a
// length and indexed access into keys sorted by Order.
type Ordered interface {
	Len() int
	At(i int) Path
}

// PrefixRange returns the half-open index range [begin,end) over an Ordered
// container whose keys start with prefix. The container MUST already be
// sorted by Order; PrefixRange runs two binary searches (high ~= O(log n))
// rather than scanning. Returns an empty range, not an error, when no key
// matches — callers distinguish "no matches" from "bad container" by the
// precondition, not by a return value.
func PrefixRange(c Ordered, prefix string) (begin, end int) {
	lo := probe{prefix: prefix}
	hi := probeUpperBound(prefix)

	begin = lowerBound(c, lo)
	end = lowerBound(c, hi)
	return begin, end
}

// probeUpperBound returns a probe whose prefix string sorts strictly after
// every key that starts with prefix, by incrementing the last byte of
// prefix (carrying on 0xFF) — equivalent to "prefix with a 1-bit added
// higher than any byte" described in the design.
func probeUpperBound(prefix string) probe {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xFF {
			b[i]++
			return probe{prefix: string(b[:i+1])}
		}
	}
	// prefix is all 0xFF (or empty): every key is >= prefix, so there is no
	// finite upper bound string — use a marker guaranteed to sort after
	// anything PrefixRange will ever be asked to search (container length).
	return probe{prefix: string(b) + "\xff\xff\xff\xff"}
}

// lowerBound returns the smallest index i such that c.At(i) >= pb under
// probe.compare, or c.Len() if no such index exists.
func lowerBound(c Ordered, pb probe) int {
	lo, hi := 0, c.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		if pb.compare(c.At(mid)) > 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FileStatus pins the ordering ambiguity left open by the original source's
// operator< (which compared isDirectory "greater than" other.isDirectory as
// "less", an inversion that left the sort order unspecified). GEDS fixes
// directories to sort after files sharing the same key prefix, matching
// the S3 console convention and the `ls`-style pretty printer that the
// original geds_cmd tool produced.
type FileStatus struct {
	Name        string
	IsDirectory bool
}

// Less implements the pinned ordering: files before directories, otherwise
// byte-lex on Name.
func (a FileStatus) Less(b FileStatus) bool {
	if a.IsDirectory != b.IsDirectory {
		return !a.IsDirectory // files (false) sort before directories (true)
	}
	return a.Name < b.Name
}
