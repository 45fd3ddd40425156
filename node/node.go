// Package node implements the GEDS node runtime (spec §2 item 8, §4.9):
// the composition root tying the handle cache, the TCP data plane, and
// backing-store/peer lookups together behind the public file API (Open,
// Create, Seal, Read, Write, CloseHandle) and the decommission relocation
// responder.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/geds-project/geds/handle"
	"github.com/geds-project/geds/internal/glog"
	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/mds/registry"
	"github.com/geds-project/geds/objectid"
	"github.com/geds-project/geds/stats"
	"github.com/geds-project/geds/transport"
)

// Config wires a Node's collaborators: the MDS client, a dialer for
// reaching peer nodes, and the on-disk area for locally-created objects
// and cache blocks.
type Config struct {
	ID      string
	Addr    string // address the data-plane listener binds and advertises
	DataDir string
	MDS     MDSClient
	Dial    transport.Dialer // how to reach other nodes' data planes
	Stats   *stats.Core      // optional; nil disables metric collection
}

// Node composes the handle cache, TCP server, and backing-store/peer
// lookups into one running node, grounded on the teacher's
// `targetrunner.Run()` composition root in ais/target.go: one struct
// wiring every subsystem, started by one call.
type Node struct {
	id      string
	addr    string
	dataDir string
	mds     MDSClient
	stats   *stats.Core

	peerClient *transport.Client
	blockStore *localBlockStore
	resolver   *nodeResolver

	mu      sync.Mutex
	primary map[string]*primaryEntry

	backingMu sync.RWMutex
	backing   map[string]handle.BackingStoreClient

	server *transport.Server
}

// primaryEntry is the one live handle a node keeps per (bucket,key),
// per spec §3's "at most one primary handle" invariant. path is non-empty
// only when the handle is backed directly by a local file this node owns.
type primaryEntry struct {
	h    handle.Handle
	path string
}

// New composes a Node but does not yet bind the data-plane listener;
// call Serve to start accepting connections.
func New(cfg Config) (*Node, error) {
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "objects"), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "blocks"), 0o755); err != nil {
		return nil, err
	}
	n := &Node{
		id:         cfg.ID,
		addr:       cfg.Addr,
		dataDir:    cfg.DataDir,
		mds:        cfg.MDS,
		stats:      cfg.Stats,
		blockStore: newLocalBlockStore(filepath.Join(cfg.DataDir, "blocks")),
		primary:    make(map[string]*primaryEntry),
		backing:    make(map[string]handle.BackingStoreClient),
	}
	n.resolver = &nodeResolver{n: n}
	if cfg.Dial != nil {
		n.peerClient = transport.NewClient(cfg.Dial)
	}
	return n, nil
}

// Serve binds ln (supplied by the caller so tests can pick an ephemeral
// port) and runs the data-plane accept loop until ln is closed.
func (n *Node) Serve(ln net.Listener, pool *transport.BufPool) error {
	n.server = transport.NewServer(ln, n.OpenLocal, pool)
	return n.server.Serve()
}

// Close shuts down the data-plane listener.
func (n *Node) Close() error {
	if n.server != nil {
		return n.server.Close()
	}
	return nil
}

// RegisterBackingStore wires the S3-compatible client a bucket's
// BackingStore handles resolve through. The caller supplies the client;
// the node does not fetch it from the MDS's object-store registrations.
func (n *Node) RegisterBackingStore(bucket string, client handle.BackingStoreClient) {
	n.backingMu.Lock()
	defer n.backingMu.Unlock()
	n.backing[bucket] = client
}

func (n *Node) backingClientFor(bucket string) (handle.BackingStoreClient, error) {
	n.backingMu.RLock()
	defer n.backingMu.RUnlock()
	c, ok := n.backing[bucket]
	if !ok {
		return nil, xerrors.FailedPreconditionf("no backing store registered for bucket %q", bucket)
	}
	return c, nil
}

// OpenLocal returns the primary handle for (bucket,key) without
// consulting the MDS — the data plane's HandleOpener contract (spec
// §4.6: "open the handle locally (not via MDS)"), since by the time a
// peer's range-read request arrives, that peer has already resolved
// this node as the owner via its own Open call.
func (n *Node) OpenLocal(bucket, key string) (handle.Handle, error) {
	id := objectid.ID{Bucket: bucket, Key: key}
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.primary[id.Identifier()]
	if !ok {
		return nil, xerrors.NotFoundf("%s not held locally", id.Identifier())
	}
	return e.h, nil
}

// Open resolves (bucket,key) to its handle, consulting the local handle
// cache first and falling back to an MDS lookup plus variant selection
// on a miss (spec §2's data-flow paragraph). The returned handle has
// already had Open() called on it; callers must call CloseHandle when done.
func (n *Node) Open(bucket, key string) (handle.Handle, error) {
	id := objectid.ID{Bucket: bucket, Key: key}
	n.statsInc(stats.OpenCount)

	n.mu.Lock()
	if e, ok := n.primary[id.Identifier()]; ok {
		h := e.h
		n.mu.Unlock()
		n.statsInc(stats.CacheHitCount)
		h.Open()
		return h, nil
	}
	n.mu.Unlock()
	n.statsInc(stats.CacheMissCount)

	h, path, err := n.resolveAndWrap(context.Background(), id)
	if err != nil {
		n.statsInc(stats.ErrIOCount)
		return nil, err
	}
	n.registerPrimary(id, h, path)
	h.Open()
	return h, nil
}

// Create allocates a fresh local writable handle for (bucket,key),
// defaulting to a memory-mapped backend (spec §3: "allocates a local
// writable handle (MMapFile by default)"). The returned handle has
// already had Open() called on it.
func (n *Node) Create(bucket, key string) (handle.Handle, error) {
	n.statsInc(stats.CreateCount)
	id := objectid.ID{Bucket: bucket, Key: key}
	path := n.localObjectPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	h, err := handle.NewLocalMmap(id, path, nil)
	if err != nil {
		return nil, err
	}
	n.registerPrimary(id, h, path)
	h.Open()
	return h, nil
}

// Seal marks h immutable and publishes its final (location, size,
// sealedOffset) to the MDS (spec §3: "seal() publishes (location, size,
// sealedOffset=size) to the MDS").
func (n *Node) Seal(ctx context.Context, h handle.Handle) error {
	start := time.Now()
	sealable, ok := h.(handle.Sealable)
	if !ok {
		return xerrors.FailedPreconditionf("%s is not sealable", h.ID().Identifier())
	}
	if err := sealable.Seal(); err != nil {
		return err
	}
	defer func() {
		n.statsInc(stats.SealCount)
		n.statsObserve(stats.SealLatency, start)
	}()

	// Published as this node's own geds:// address rather than a raw
	// filesystem path: other nodes resolve it through the peer data
	// plane, and this node recognizes its own address to short-circuit
	// straight to the local primary cache (resolveAndWrap).
	size := uint64(h.Size())
	location := "geds://" + n.addr
	return n.mds.Publish(ctx, h.ID(), objectid.Info{Location: location, Size: size, SealedOffset: size})
}

// Read is a thin convenience wrapper over h.ReadBytes.
func (n *Node) Read(h handle.Handle, buf []byte, pos int64) (int, error) {
	start := time.Now()
	nRead, err := h.ReadBytes(buf, pos)
	n.statsInc(stats.ReadCount)
	n.statsAdd(stats.ReadSize, int64(nRead))
	n.statsObserve(stats.ReadLatency, start)
	if err != nil {
		n.statsInc(stats.ErrIOCount)
	}
	return nRead, err
}

// Write is a thin convenience wrapper over h.WriteBytes, rejecting
// non-writable variants up front rather than letting the type assertion
// panic at the call site.
func (n *Node) Write(h handle.Handle, buf []byte, pos int64) (int, error) {
	w, ok := h.(handle.Writable)
	if !ok {
		return 0, xerrors.FailedPreconditionf("%s is not writable", h.ID().Identifier())
	}
	start := time.Now()
	nWritten, err := w.WriteBytes(buf, pos)
	n.statsInc(stats.WriteCount)
	n.statsAdd(stats.WriteSize, int64(nWritten))
	n.statsObserve(stats.WriteLatency, start)
	if err != nil {
		n.statsInc(stats.ErrIOCount)
	}
	return nWritten, err
}

// CloseHandle releases one reference to h; once the open count reaches
// zero the node evicts it from the primary cache (the advisory "notified
// unused" signal from spec §3, applied here at the cache-membership level
// rather than threaded through every wrapper variant's constructor).
func (n *Node) CloseHandle(h handle.Handle) {
	if h.Release() != 0 {
		return
	}
	n.mu.Lock()
	if e, ok := n.primary[h.ID().Identifier()]; ok && e.h == h && h.OpenCount() == 0 {
		delete(n.primary, h.ID().Identifier())
	}
	n.mu.Unlock()
}

func (n *Node) statsInc(name string) {
	if n.stats != nil {
		n.stats.Inc(name)
	}
}

func (n *Node) statsAdd(name string, delta int64) {
	if n.stats != nil && delta != 0 {
		n.stats.Add(name, delta)
	}
}

func (n *Node) statsObserve(name string, since time.Time) {
	if n.stats != nil {
		n.stats.Observe(name, time.Since(since).Nanoseconds())
	}
}

func (n *Node) registerPrimary(id objectid.ID, h handle.Handle, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.primary[id.Identifier()] = &primaryEntry{h: h, path: path}
}

// resolveVariant implements handle.Resolver's re-resolution contract for
// nodeResolver: a fresh MDS lookup plus variant selection, discarding any
// wrapping (Relocatable re-wraps the result itself).
func (n *Node) resolveVariant(ctx context.Context, id objectid.ID) (handle.Handle, error) {
	h, _, err := n.resolveAndWrap(ctx, id)
	return h, err
}

// resolveAndWrap picks the handle variant from the MDS location URI:
// geds://host:port -> cached RemotePeer, s3://bucket/key -> cached
// BackingStore, both inside a Relocatable wrapper. A bare local path is
// opened as a pread-backed LocalFile; it is not memory-mapped. Local
// objects are returned unwrapped since re-resolution only ever applies to
// remote/backing-store failures.
func (n *Node) resolveAndWrap(ctx context.Context, id objectid.ID) (handle.Handle, string, error) {
	info, err := n.mds.Lookup(ctx, id)
	if err != nil {
		return nil, "", err
	}

	switch {
	case objectid.IsPeerLocation(info.Location):
		host, port, err := objectid.ParsePeerLocation(info.Location)
		if err != nil {
			return nil, "", err
		}
		if host+":"+port == n.addr {
			// Self-owned: the MDS point this node back at itself. The
			// primary cache is authoritative for locally-created
			// objects; its absence here means the ephemeral local
			// cache was discarded (e.g. a restart) and the data is
			// gone unless a relocation already moved it elsewhere.
			return nil, "", xerrors.NotFoundf("%s: locally-owned object not present in cache", id.Identifier())
		}
		if n.peerClient == nil {
			return nil, "", xerrors.FailedPreconditionf("no peer client configured, cannot resolve %s", info.Location)
		}
		n.statsInc(stats.PeerFetchCount)
		n.statsAdd(stats.PeerFetchSize, int64(info.Size))
		remote := handle.NewRemotePeer(id, n.peerClient, int64(info.Size))
		cached := handle.NewCached(id, remote, handle.DefaultCacheBlockSize, n.blockStore)
		return handle.NewRelocatable(id, cached, n.resolver), "", nil

	case objectid.IsBackingStoreLocation(info.Location):
		bucket, _, err := objectid.ParseS3Location(info.Location)
		if err != nil {
			return nil, "", err
		}
		client, err := n.backingClientFor(bucket)
		if err != nil {
			return nil, "", err
		}
		n.statsInc(stats.BackingFetchCount)
		n.statsAdd(stats.BackingFetchSize, int64(info.Size))
		remote := handle.NewBackingStore(id, client, int64(info.Size), nil)
		cached := handle.NewCached(id, remote, handle.DefaultCacheBlockSize, n.blockStore)
		return handle.NewRelocatable(id, cached, n.resolver), "", nil

	default:
		h, err := handle.OpenExistingLocalFile(id, info.Location, nil)
		if err != nil {
			return nil, "", err
		}
		return h, info.Location, nil
	}
}

func (n *Node) localObjectPath(id objectid.ID) string {
	flat := strings.ReplaceAll(id.Key, "/", "_")
	return filepath.Join(n.dataDir, "objects", id.Bucket, fmt.Sprintf("%s_%s", n.id, flat))
}

// DownloadObjects is the relocation responder driven by an MDS
// decommission dispatch (spec §4.7 step 7/8, §3's "each chosen node
// receives a batched downloadObjects RPC"): it pulls each object's bytes
// from its current location, stores them locally, and republishes the
// new location to the MDS.
func (n *Node) DownloadObjects(ctx context.Context, objects []registry.PackObject) error {
	for _, obj := range objects {
		if err := n.downloadOne(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) downloadOne(ctx context.Context, obj registry.PackObject) error {
	id := objectid.ID{Bucket: obj.Bucket, Key: obj.Key}

	info, err := n.mds.Lookup(ctx, id)
	if err != nil {
		return err
	}
	source, _, err := n.resolveAndWrap(ctx, id)
	if err != nil {
		return err
	}

	path := n.localObjectPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := handle.NewLocalMmap(id, path, nil)
	if err != nil {
		return err
	}

	if err := source.DownloadRange(0, int64(info.Size), &handleWriter{h: dst}); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Seal(); err != nil {
		dst.Close()
		return err
	}

	n.registerPrimary(id, dst, path)
	glog.Infof("node %s: relocated %s to %s", n.id, id.Identifier(), path)
	n.statsInc(stats.RelocateCount)
	n.statsAdd(stats.RelocateSize, int64(dst.Size()))

	size := uint64(dst.Size())
	location := "geds://" + n.addr
	return n.mds.Publish(ctx, id, objectid.Info{Location: location, Size: size, SealedOffset: size})
}

// handleWriter adapts a Writable handle.Handle to io.Writer, appending
// sequentially from offset 0 — the shape DownloadRange needs to hydrate
// a freshly created local file.
type handleWriter struct {
	h   handle.Writable
	pos int64
}

func (w *handleWriter) Write(p []byte) (int, error) {
	n, err := w.h.WriteBytes(p, w.pos)
	w.pos += int64(n)
	return n, err
}
