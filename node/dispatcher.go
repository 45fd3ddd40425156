package node

import (
	"context"

	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/mds/registry"
)

// Dispatcher routes an MDS decommission fan-out (spec §4.7 step 7) to the
// right *Node by target ID. It satisfies mds.Dispatcher structurally
// without node importing mds, the same narrow-capability reasoning as
// MDSClient: the only collaborator node needs from the dispatch side of
// the MDS is "run this batch against that node ID", not anything else
// mds.Service exposes. A networked deployment's control-plane client would
// implement the same DownloadObjects(ctx, targetID, objects) method, fronting an RPC
// call instead of this direct in-process lookup.
type Dispatcher struct {
	nodes func(targetID string) (*Node, bool)
}

// NewDispatcher builds a Dispatcher that resolves target IDs through
// lookup, e.g. a map of collocated *Node instances in a single-process
// deployment or test harness.
func NewDispatcher(lookup func(targetID string) (*Node, bool)) *Dispatcher {
	return &Dispatcher{nodes: lookup}
}

func (d *Dispatcher) DownloadObjects(ctx context.Context, targetID string, objects []registry.PackObject) error {
	n, ok := d.nodes(targetID)
	if !ok {
		return xerrors.Unavailablef("decommission dispatch: target node %q not reachable", targetID)
	}
	return n.DownloadObjects(ctx, objects)
}
