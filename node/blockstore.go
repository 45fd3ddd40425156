package node

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/geds-project/geds/handle"
	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/objectid"
	gedspath "github.com/geds-project/geds/path"
)

// localBlockStore is the on-disk cache-block directory a Node maintains
// for handle.Cached hydration (spec §4.5 item 4): one LocalMmap file per
// block name, tracked in a path.ConcurrentMap (spec §2 item 1) so
// Lookup/Purge don't need to walk the filesystem.
type localBlockStore struct {
	baseDir string
	blocks  *gedspath.ConcurrentMap
}

func newLocalBlockStore(baseDir string) *localBlockStore {
	return &localBlockStore{baseDir: baseDir, blocks: gedspath.NewConcurrentMap()}
}

var _ handle.BlockStore = (*localBlockStore)(nil)

func (s *localBlockStore) Lookup(name string) (handle.Handle, error) {
	v, ok := s.blocks.Get(gedspath.Path{Name: name})
	if !ok {
		return nil, xerrors.NotFoundf("cache block %q not found", name)
	}
	return v.(handle.Handle), nil
}

func (s *localBlockStore) Create(name string) (handle.Handle, error) {
	p := filepath.Join(s.baseDir, blockFileName(name))
	h, err := handle.NewLocalMmap(objectid.ID{Bucket: "cache", Key: name}, p, nil)
	if err != nil {
		return nil, err
	}
	s.blocks.Set(gedspath.Path{Name: name}, h)
	return h, nil
}

func (s *localBlockStore) Purge(name string) error {
	v, existed := s.blocks.Get(gedspath.Path{Name: name})
	if !existed {
		return nil
	}
	s.blocks.Delete(gedspath.Path{Name: name})
	if closer, ok := v.(handle.Handle).(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// blockFileName flattens a cache-block name (which already carries
// CacheBlockMarker and a "bucket/key" identifier joined by "/") into a
// single path component.
func blockFileName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}
