// Package mds implements the Metadata Service (spec §4.7): bucket/object
// CRUD and listing over geds/mds/kvs, node registration/heartbeat/
// decommission over geds/mds/registry, and event fan-out over
// geds/mds/pubsub.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package mds

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/geds-project/geds/handle"
	"github.com/geds-project/geds/internal/glog"
	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/mds/kvs"
	"github.com/geds-project/geds/mds/pubsub"
	"github.com/geds-project/geds/mds/registry"
	"github.com/geds-project/geds/objectid"
)

// ObjectStoreConfig is a registered backing-store credential set for a
// bucket (spec §4.7 registerObjectStore).
type ObjectStoreConfig struct {
	Bucket    string
	URL       string
	AccessKey string
	SecretKey string
}

func (c ObjectStoreConfig) equalIdentity(o ObjectStoreConfig) bool {
	return c.Bucket == o.Bucket && c.URL == o.URL && c.AccessKey == o.AccessKey
}

// Dispatcher issues the decommission relocation fan-out: "downloadObjects"
// against a single target node (spec §4.7 step 7). Implemented by
// node.Dispatcher, which runs the batch on an in-process *node.Node.
type Dispatcher interface {
	DownloadObjects(ctx context.Context, targetID string, objects []registry.PackObject) error
}

// Service composes the metadata KVS, the node registry, and the pub/sub
// hub into the MDS's RPC-level contract.
type Service struct {
	KVS      kvs.Backend
	Registry *registry.Registry
	Hub      *pubsub.Hub

	mu           sync.RWMutex
	objectStores map[string]ObjectStoreConfig
}

func NewService(backend kvs.Backend) *Service {
	return &Service{
		KVS:          backend,
		Registry:     registry.New(),
		Hub:          pubsub.NewHub(),
		objectStores: make(map[string]ObjectStoreConfig),
	}
}

// RegisterObjectStore is idempotent: the same (bucket,url,accessKey) is a
// no-op; a different value set for an already-registered bucket is
// AlreadyExists (spec §4.7).
func (s *Service) RegisterObjectStore(cfg ObjectStoreConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.objectStores[cfg.Bucket]; ok {
		if existing.equalIdentity(cfg) && existing.SecretKey == cfg.SecretKey {
			return nil
		}
		return xerrors.AlreadyExistsf("object store already registered for bucket %s with different credentials", cfg.Bucket)
	}
	s.objectStores[cfg.Bucket] = cfg
	return nil
}

// RegisterNode registers a new storage node (spec §4.7 registerNode).
func (s *Service) RegisterNode(id, addr string) (registry.Node, error) {
	n, err := s.Registry.Register(id, addr)
	if err != nil {
		return registry.Node{}, err
	}
	return *n, nil
}

// Lookup returns the placement record for id, satisfying node.MDSClient
// for the node runtime's resolve-on-miss path (spec §2's data-flow
// paragraph). ctx carries no deadline yet since the in-memory KVS never
// blocks; a networked MDS client would honor it on the RPC call.
func (s *Service) Lookup(ctx context.Context, id objectid.ID) (objectid.Info, error) {
	return s.KVS.Lookup(id)
}

// Publish upserts id's placement record, the MDS side of a node's
// create/seal/relocate calls. Bucket auto-creation is intentional here:
// a node publishing an object it just sealed should not separately have
// to pre-create the bucket through a second round trip. Subscribers learn
// of the change as a Created or Updated event (spec §4.8) depending on
// whether id already had a placement record.
func (s *Service) Publish(ctx context.Context, id objectid.ID, info objectid.Info) error {
	_, lookupErr := s.KVS.Lookup(id)
	if err := s.KVS.Create(id, info, true); err != nil {
		return err
	}
	kind := pubsub.Updated
	if xerrors.KindOf(lookupErr) == xerrors.KindNotFound {
		kind = pubsub.Created
	}
	s.Hub.Publish(pubsub.Event{Kind: kind, Bucket: id.Bucket, Key: id.Key})
	return nil
}

// Heartbeat updates a node's last-seen timestamp and capacity stats.
func (s *Service) Heartbeat(id string, stats registry.HeartbeatStats) error {
	return s.Registry.Heartbeat(id, stats)
}

// Decommission drives spec §4.7's eight-step sequence under the registry's
// decommission mutex: mark nodes Decommissioning, enumerate their objects
// across every bucket (excluding cache blocks), pack them onto surviving
// Registered targets by first-fit-descending size, and dispatch the
// relocation fan-out in parallel.
func (s *Service) Decommission(ctx context.Context, ids []string, dispatch Dispatcher) error {
	s.Registry.DecommissionMu.Lock()
	defer s.Registry.DecommissionMu.Unlock()

	marked := s.Registry.MarkDecommissioning(ids)
	if len(marked) == 0 {
		return nil
	}

	prefixes := make([]string, len(marked))
	for i, n := range marked {
		prefixes[i] = "geds://" + n.Addr
	}

	objects, err := s.collectDecommissionedObjects(prefixes)
	if err != nil {
		return err
	}

	targets := s.Registry.CandidateTargets()
	placements, unplaced := registry.FirstFitDescending(objects, targets)
	for _, obj := range unplaced {
		glog.Warningf("decommission: object %s/%s (size %d) did not fit on any target, skipping", obj.Bucket, obj.Key, obj.Size)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range placements {
		p := p
		g.Go(func() error {
			return dispatch.DownloadObjects(gctx, p.TargetID, p.Objects)
		})
	}
	return g.Wait()
}

func (s *Service) collectDecommissionedObjects(locationPrefixes []string) ([]registry.PackObject, error) {
	var objects []registry.PackObject
	for _, bucket := range s.KVS.ListBuckets() {
		res, err := s.KVS.ListPrefix(bucket, "", 0)
		if err != nil {
			return nil, err
		}
		for _, o := range res.Objects {
			if strings.Contains(o.Key, handle.CacheBlockMarker) {
				continue
			}
			if !locatedOnAny(o.Info.Location, locationPrefixes) {
				continue
			}
			objects = append(objects, registry.PackObject{Bucket: bucket, Key: o.Key, Size: o.Info.Size})
		}
	}
	return objects, nil
}

func locatedOnAny(location string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(location, p) {
			return true
		}
	}
	return false
}
