package node

import (
	"context"

	"github.com/geds-project/geds/objectid"
)

// MDSClient is the narrowed capability a Node needs from the Metadata
// Service: publish and resolve object placement. It mirrors
// mds.Service's own Lookup/Publish method shapes (spec §4.7) so a
// single process can wire a *mds.Service directly — a collocated
// deployment, or these tests — while a networked deployment supplies a
// client stub presenting the same interface.
type MDSClient interface {
	Lookup(ctx context.Context, id objectid.ID) (objectid.Info, error)
	Publish(ctx context.Context, id objectid.ID, info objectid.Info) error
}
