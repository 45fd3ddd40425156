// Package kvs implements the metadata key-value store: per-bucket ordered
// maps of key to objectid.Info, with prefix-range listing and S3-style
// common-prefix folding (spec §4.4).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package kvs

import (
	"sort"
	"strings"
	"sync"

	"github.com/geds-project/geds/internal/glog"
	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/objectid"
	pathpkg "github.com/geds-project/geds/path"
)

// entry pairs a key with its own reader-writer lock, per spec §4.4: "the
// bucket map lock is taken in write mode only for insertion/removal; value
// mutation uses the entry lock" (so a re-seal updating location/size does
// not block concurrent lookups of other keys in the same bucket).
type entry struct {
	mu   sync.RWMutex
	info objectid.Info
}

// bucket is an ordered (by key) slice of entries plus the RWMutex guarding
// structural changes (insert/remove). A slice keeps PrefixRange a pair of
// binary searches, matching the design in package path.
type bucket struct {
	mu   sync.RWMutex
	keys []string // kept sorted; parallel to entries
	entries []*entry
}

func newBucket() *bucket { return &bucket{} }

func (b *bucket) Len() int           { return len(b.keys) }
func (b *bucket) At(i int) pathpkg.Path { return pathpkg.Path{Name: b.keys[i]} }

// indexOf returns the position of key in the sorted slice and whether it
// was found (must be called with b.mu held).
func (b *bucket) indexOf(key string) (int, bool) {
	i := sort.SearchStrings(b.keys, key)
	if i < len(b.keys) && b.keys[i] == key {
		return i, true
	}
	return i, false
}

// Backend is the contract both the default in-memory Store and the
// buntdb-backed PersistentStore implement, so the MDS can swap the store
// per-deployment without touching call sites (spec's DOMAIN STACK: an
// ordered, prefix-scannable backing). The choice covers every bucket at
// once; there is no per-bucket selection.
type Backend interface {
	CreateBucket(name string) error
	ListBuckets() []string
	DeleteBucket(name string) error
	Create(id objectid.ID, info objectid.Info, forceCreate bool) error
	Update(id objectid.ID, info objectid.Info) error
	Lookup(id objectid.ID) (objectid.Info, error)
	Delete(id objectid.ID) error
	DeletePrefix(bucket, prefix string) error
	ListPrefix(bucket, prefix string, delim byte) (ListResult, error)
}

var _ Backend = (*Store)(nil)

// Store is the metadata KVS: buckets keyed by name, each an ordered map of
// key -> objectid.Info.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

func New() *Store {
	return &Store{buckets: make(map[string]*bucket)}
}

// CreateBucket creates an empty bucket. Returns AlreadyExists if it exists.
func (s *Store) CreateBucket(name string) error {
	if err := objectid.ValidateBucket(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; ok {
		return xerrors.AlreadyExistsf("bucket %q already exists", name)
	}
	s.buckets[name] = newBucket()
	return nil
}

// getBucket returns the named bucket, creating it on demand when
// forceCreate is set (spec §4.4: "Alternative strict mode (bucket forced-
// create) first creates the bucket").
func (s *Store) getBucket(name string, forceCreate bool) (*bucket, error) {
	s.mu.RLock()
	b, ok := s.buckets[name]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}
	if !forceCreate {
		return nil, xerrors.NotFoundf("bucket %q not found", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[name]; ok {
		return b, nil
	}
	b = newBucket()
	s.buckets[name] = b
	return b, nil
}

// ListBuckets returns the names of every known bucket.
func (s *Store) ListBuckets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteBucket removes an empty bucket's registration; non-empty buckets
// must be emptied via DeletePrefix(bucket, "") first.
func (s *Store) DeleteBucket(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[name]
	if !ok {
		return xerrors.NotFoundf("bucket %q not found", name)
	}
	b.mu.RLock()
	n := len(b.keys)
	b.mu.RUnlock()
	if n > 0 {
		return xerrors.FailedPreconditionf("bucket %q is not empty", name)
	}
	delete(s.buckets, name)
	return nil
}

// Create inserts obj under id, silently replacing an existing entry (logged
// as overwrite), per spec §4.4. forceCreate additionally creates the
// bucket if missing.
func (s *Store) Create(id objectid.ID, info objectid.Info, forceCreate bool) error {
	if err := id.Validate(); err != nil {
		return err
	}
	b, err := s.getBucket(id.Bucket, forceCreate)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i, found := b.indexOf(id.Key)
	if found {
		glog.Infof("kvs: overwriting %s", id.Identifier())
		b.entries[i].mu.Lock()
		b.entries[i].info = info.Clone()
		b.entries[i].mu.Unlock()
		return nil
	}
	e := &entry{info: info.Clone()}
	b.keys = append(b.keys, "")
	copy(b.keys[i+1:], b.keys[i:])
	b.keys[i] = id.Key
	b.entries = append(b.entries, nil)
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = e
	return nil
}

// Update replaces the info for an existing id. Fails NotFound otherwise.
func (s *Store) Update(id objectid.ID, info objectid.Info) error {
	b, err := s.getBucket(id.Bucket, false)
	if err != nil {
		return err
	}
	b.mu.RLock()
	i, found := b.indexOf(id.Key)
	if !found {
		b.mu.RUnlock()
		return xerrors.NotFoundf("object %s not found", id.Identifier())
	}
	e := b.entries[i]
	b.mu.RUnlock()

	e.mu.Lock()
	e.info = info.Clone()
	e.mu.Unlock()
	return nil
}

// Lookup returns a snapshot of the info for id (never a live reference).
func (s *Store) Lookup(id objectid.ID) (objectid.Info, error) {
	b, err := s.getBucket(id.Bucket, false)
	if err != nil {
		return objectid.Info{}, err
	}
	b.mu.RLock()
	i, found := b.indexOf(id.Key)
	if !found {
		b.mu.RUnlock()
		return objectid.Info{}, xerrors.NotFoundf("object %s not found", id.Identifier())
	}
	e := b.entries[i]
	b.mu.RUnlock()

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info.Clone(), nil
}

// Delete removes a single key. Returns NotFound iff it did not exist.
func (s *Store) Delete(id objectid.ID) error {
	b, err := s.getBucket(id.Bucket, false)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i, found := b.indexOf(id.Key)
	if !found {
		return xerrors.NotFoundf("object %s not found", id.Identifier())
	}
	b.removeAt(i)
	return nil
}

// DeletePrefix removes every key starting with prefix. Returns NotFound iff
// no matching entries existed.
func (s *Store) DeletePrefix(bucket, prefix string) error {
	b, err := s.getBucket(bucket, false)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	begin, end := pathpkg.PrefixRange(b, prefix)
	if begin == end {
		return xerrors.NotFoundf("no keys under prefix %q in bucket %q", prefix, bucket)
	}
	b.keys = append(b.keys[:begin], b.keys[end:]...)
	b.entries = append(b.entries[:begin], b.entries[end:]...)
	return nil
}

// removeAt deletes the entry at index i (caller holds b.mu for writing).
func (b *bucket) removeAt(i int) {
	b.keys = append(b.keys[:i], b.keys[i+1:]...)
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
}

// ListResult is the return value of ListPrefix: matching objects plus
// folded common prefixes, per spec §4.4.
type ListResult struct {
	Objects        []ObjectEntry
	CommonPrefixes []string
}

type ObjectEntry struct {
	Key  string
	Info objectid.Info
}

// ListPrefix returns every key in bucket starting with prefix. When delim
// is non-zero, keys whose first occurrence of delim after len(prefix)
// bytes is at offset k contribute prefix-through-delim (inclusive) to
// CommonPrefixes (deduplicated) instead of Objects.
func (s *Store) ListPrefix(bucketName, prefix string, delim byte) (ListResult, error) {
	b, err := s.getBucket(bucketName, false)
	if err != nil {
		return ListResult{}, err
	}
	b.mu.RLock()
	begin, end := pathpkg.PrefixRange(b, prefix)
	keys := append([]string(nil), b.keys[begin:end]...)
	entries := append([]*entry(nil), b.entries[begin:end]...)
	b.mu.RUnlock()

	var res ListResult
	seenCommon := make(map[string]struct{})
	for i, key := range keys {
		if delim != 0 {
			rest := key[len(prefix):]
			if idx := strings.IndexByte(rest, delim); idx >= 0 {
				common := key[:len(prefix)+idx+1]
				if _, dup := seenCommon[common]; !dup {
					seenCommon[common] = struct{}{}
					res.CommonPrefixes = append(res.CommonPrefixes, common)
				}
				continue
			}
		}
		entries[i].mu.RLock()
		info := entries[i].info.Clone()
		entries[i].mu.RUnlock()
		res.Objects = append(res.Objects, ObjectEntry{Key: key, Info: info})
	}
	sort.Strings(res.CommonPrefixes)
	return res, nil
}
