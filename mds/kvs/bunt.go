package kvs

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/geds-project/geds/internal/glog"
	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/objectid"
)

// PersistentStore is the buntdb-backed Backend implementation, used for the
// whole MDS when config.MetadataStorePath is set, so placement records
// survive an MDS restart. buntdb keeps keys in a lexically-ordered
// in-memory b-tree with an on-disk AOF, so AscendGreaterOrEqual over
// "<bucket>\x00<key>" already gives the ordered prefix scan spec §4.4
// requires — no separate sorted-slice bookkeeping. Bucket names are not
// stored on their own: on open they are recovered from the stored keys, so
// a bucket that held no objects is not recovered.
type PersistentStore struct {
	mu  sync.Mutex // serializes bucket-registry checks; buntdb handles its own locking per-tx
	db  *buntdb.DB
	// bucketNames tracks which top-level namespaces have been created,
	// since buntdb itself has no notion of "bucket" as a container.
	bucketNames map[string]struct{}
	bnMu        sync.RWMutex
}

var _ Backend = (*PersistentStore)(nil)

// OpenPersistentStore opens (creating if absent) a buntdb database file at
// path. Use ":memory:" for a non-durable instance useful in tests.
func OpenPersistentStore(path string) (*PersistentStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, xerrors.Internalf("open buntdb store %s: %v", path, err)
	}
	p := &PersistentStore{db: db, bucketNames: make(map[string]struct{})}
	err = db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(k, v string) bool {
			if i := strings.IndexByte(k, 0); i >= 0 {
				p.bucketNames[k[:i]] = struct{}{}
			}
			return true
		})
	})
	if err != nil {
		db.Close()
		return nil, xerrors.Internalf("scan buntdb store %s: %v", path, err)
	}
	return p, nil
}

func (p *PersistentStore) Close() error { return p.db.Close() }

func dbKey(bucket, key string) string { return bucket + "\x00" + key }

func (p *PersistentStore) CreateBucket(name string) error {
	if err := objectid.ValidateBucket(name); err != nil {
		return err
	}
	p.bnMu.Lock()
	defer p.bnMu.Unlock()
	if _, ok := p.bucketNames[name]; ok {
		return xerrors.AlreadyExistsf("bucket %q already exists", name)
	}
	p.bucketNames[name] = struct{}{}
	return nil
}

func (p *PersistentStore) ensureBucket(name string, forceCreate bool) error {
	p.bnMu.RLock()
	_, ok := p.bucketNames[name]
	p.bnMu.RUnlock()
	if ok {
		return nil
	}
	if !forceCreate {
		return xerrors.NotFoundf("bucket %q not found", name)
	}
	p.bnMu.Lock()
	defer p.bnMu.Unlock()
	p.bucketNames[name] = struct{}{}
	return nil
}

func (p *PersistentStore) ListBuckets() []string {
	p.bnMu.RLock()
	defer p.bnMu.RUnlock()
	names := make([]string, 0, len(p.bucketNames))
	for n := range p.bucketNames {
		names = append(names, n)
	}
	return names
}

func (p *PersistentStore) DeleteBucket(name string) error {
	p.bnMu.Lock()
	defer p.bnMu.Unlock()
	if _, ok := p.bucketNames[name]; !ok {
		return xerrors.NotFoundf("bucket %q not found", name)
	}
	empty := true
	p.db.View(func(tx *buntdb.Tx) error {
		prefix := name + "\x00"
		return tx.AscendGreaterOrEqual("", prefix, func(k, v string) bool {
			if !strings.HasPrefix(k, prefix) {
				return false
			}
			empty = false
			return false
		})
	})
	if !empty {
		return xerrors.FailedPreconditionf("bucket %q is not empty", name)
	}
	delete(p.bucketNames, name)
	return nil
}

func (p *PersistentStore) Create(id objectid.ID, info objectid.Info, forceCreate bool) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if err := p.ensureBucket(id.Bucket, forceCreate); err != nil {
		return err
	}
	buf, err := json.Marshal(info)
	if err != nil {
		return xerrors.Internalf("marshal object info: %v", err)
	}
	k := dbKey(id.Bucket, id.Key)
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, replaced, err := tx.Set(k, string(buf), nil)
		if err != nil {
			return xerrors.Internalf("buntdb set %s: %v", k, err)
		}
		if replaced {
			glog.Infof("kvs: overwriting %s", id.Identifier())
		}
		return nil
	})
}

func (p *PersistentStore) Update(id objectid.ID, info objectid.Info) error {
	if err := p.ensureBucket(id.Bucket, false); err != nil {
		return err
	}
	k := dbKey(id.Bucket, id.Key)
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(k); err != nil {
			if err == buntdb.ErrNotFound {
				return xerrors.NotFoundf("object %s not found", id.Identifier())
			}
			return xerrors.Internalf("buntdb get %s: %v", k, err)
		}
		buf, err := json.Marshal(info)
		if err != nil {
			return xerrors.Internalf("marshal object info: %v", err)
		}
		_, _, err = tx.Set(k, string(buf), nil)
		return err
	})
}

func (p *PersistentStore) Lookup(id objectid.ID) (objectid.Info, error) {
	if err := p.ensureBucket(id.Bucket, false); err != nil {
		return objectid.Info{}, err
	}
	k := dbKey(id.Bucket, id.Key)
	var info objectid.Info
	err := p.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(k)
		if err != nil {
			if err == buntdb.ErrNotFound {
				return xerrors.NotFoundf("object %s not found", id.Identifier())
			}
			return xerrors.Internalf("buntdb get %s: %v", k, err)
		}
		return json.Unmarshal([]byte(v), &info)
	})
	return info, err
}

func (p *PersistentStore) Delete(id objectid.ID) error {
	if err := p.ensureBucket(id.Bucket, false); err != nil {
		return err
	}
	k := dbKey(id.Bucket, id.Key)
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(k)
		if err == buntdb.ErrNotFound {
			return xerrors.NotFoundf("object %s not found", id.Identifier())
		}
		return err
	})
}

func (p *PersistentStore) DeletePrefix(bucket, prefix string) error {
	if err := p.ensureBucket(bucket, false); err != nil {
		return err
	}
	full := bucket + "\x00" + prefix
	var toDelete []string
	p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", full, func(k, v string) bool {
			if !strings.HasPrefix(k, full) {
				return false
			}
			toDelete = append(toDelete, k)
			return true
		})
	})
	if len(toDelete) == 0 {
		return xerrors.NotFoundf("no keys under prefix %q in bucket %q", prefix, bucket)
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, k := range toDelete {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func (p *PersistentStore) ListPrefix(bucket, prefix string, delim byte) (ListResult, error) {
	if err := p.ensureBucket(bucket, false); err != nil {
		return ListResult{}, err
	}
	full := bucket + "\x00" + prefix
	var res ListResult
	seenCommon := make(map[string]struct{})
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", full, func(k, v string) bool {
			if !strings.HasPrefix(k, full) {
				return false
			}
			key := strings.TrimPrefix(k, bucket+"\x00")
			if delim != 0 {
				rest := key[len(prefix):]
				if idx := strings.IndexByte(rest, delim); idx >= 0 {
					common := key[:len(prefix)+idx+1]
					if _, dup := seenCommon[common]; !dup {
						seenCommon[common] = struct{}{}
						res.CommonPrefixes = append(res.CommonPrefixes, common)
					}
					return true
				}
			}
			var info objectid.Info
			if err := json.Unmarshal([]byte(v), &info); err != nil {
				return false
			}
			res.Objects = append(res.Objects, ObjectEntry{Key: key, Info: info})
			return true
		})
	})
	return res, err
}
