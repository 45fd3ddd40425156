// Package registry tracks storage-node lifecycle for the MDS (spec §4.7,
// §4.11): registration, heartbeats, and the decommission state machine,
// run under each Registry's DecommissionMu serializing the whole
// mark/plan/dispatch sequence.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package registry

import (
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/geds-project/geds/internal/xerrors"
)

// hashSeed mirrors the teacher's node-id digest pattern
// (`xxhash.ChecksumString64S(d.ID(), cmn.MLCG32)` in cluster/map.go), used
// here to give every node a stable numeric digest for log correlation and
// future hash-based sharding of the registry map.
const hashSeed = 0x811c9dc5

// State is a node's position in the lifecycle state machine:
// Registered -> Decommissioning -> gone (removed from the registry).
type State int

const (
	Registered State = iota
	Decommissioning
)

func (s State) String() string {
	switch s {
	case Registered:
		return "Registered"
	case Decommissioning:
		return "Decommissioning"
	default:
		return "Unknown"
	}
}

// HeartbeatStats is the capacity snapshot reported with each heartbeat.
type HeartbeatStats struct {
	StorageAllocated uint64
	StorageUsed      uint64
	MemoryAllocated  uint64
	MemoryUsed       uint64
}

// Available returns the node's free storage capacity, used by decommission
// packing (spec §4.7 step 5).
func (h HeartbeatStats) Available() uint64 {
	if h.StorageUsed >= h.StorageAllocated {
		return 0
	}
	return h.StorageAllocated - h.StorageUsed
}

// Node is one registry record.
type Node struct {
	ID            string
	IDDigest      uint64
	Addr          string
	State         State
	Stats         HeartbeatStats
	LastHeartbeat time.Time
}

// Registry holds the set of known storage nodes. DecommissionMu serializes
// the entire mark/plan/dispatch sequence in spec §4.7 step's "(decommission
// serialized by a global mutex)" — callers orchestrating multi-step
// decommission logic (the mds package) take it for the duration.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node

	DecommissionMu sync.Mutex
}

func New() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

// Register inserts a new node record. If id already exists and is
// Decommissioning, the record is replaced (a node may re-register after
// completing decommission and rejoining); otherwise AlreadyExists.
func (r *Registry) Register(id, addr string) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nodes[id]; ok && existing.State != Decommissioning {
		return nil, xerrors.AlreadyExistsf("node %s already registered", id)
	}
	n := &Node{
		ID:            id,
		IDDigest:      xxhash.ChecksumString64S(id, hashSeed),
		Addr:          addr,
		State:         Registered,
		LastHeartbeat: time.Now(),
	}
	r.nodes[id] = n
	return n, nil
}

// Heartbeat updates last-seen timestamp and capacity stats for id.
func (r *Registry) Heartbeat(id string, stats HeartbeatStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return xerrors.NotFoundf("node %s not registered", id)
	}
	n.Stats = stats
	n.LastHeartbeat = time.Now()
	return nil
}

// Get returns a copy of the node record for id.
func (r *Registry) Get(id string) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, xerrors.NotFoundf("node %s not registered", id)
	}
	return *n, nil
}

// List returns a snapshot of every known node.
func (r *Registry) List() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	return out
}

// MarkDecommissioning transitions every id currently Registered into
// Decommissioning (spec §4.7 step 1), skipping unknown ids, and returns the
// nodes that were actually transitioned.
func (r *Registry) MarkDecommissioning(ids []string) []Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	var marked []Node
	for _, id := range ids {
		n, ok := r.nodes[id]
		if !ok {
			continue
		}
		n.State = Decommissioning
		marked = append(marked, *n)
	}
	return marked
}

// CandidateTargets returns every Registered node, the pool decommission
// packing draws from (spec §4.7 step 5).
func (r *Registry) CandidateTargets() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Node
	for _, n := range r.nodes {
		if n.State == Registered {
			out = append(out, *n)
		}
	}
	return out
}

// Remove deletes id from the registry once decommission has fully
// completed.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}
