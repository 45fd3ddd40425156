package node

import (
	"context"

	"github.com/geds-project/geds/handle"
	"github.com/geds-project/geds/objectid"
)

// nodeResolver implements handle.Resolver by re-running the node's own
// variant-selection logic against a fresh MDS lookup. It is the thing a
// Relocatable calls back into after a peer read failure (spec §4.5 item
// 5), kept as its own small type rather than the Relocatable holding a
// pointer to the whole Node.
type nodeResolver struct {
	n *Node
}

var _ handle.Resolver = (*nodeResolver)(nil)

func (r *nodeResolver) Resolve(id objectid.ID, invalidate bool) (handle.Handle, error) {
	return r.n.resolveVariant(context.Background(), id)
}
