package registry_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/mds/registry"
)

var _ = Describe("Registry", func() {
	It("registers a new node and rejects a duplicate registration", func() {
		r := registry.New()
		n, err := r.Register("node-1", "10.0.0.1:9000")
		Expect(err).NotTo(HaveOccurred())
		Expect(n.State).To(Equal(registry.Registered))

		_, err = r.Register("node-1", "10.0.0.2:9000")
		Expect(errors.Is(err, xerrors.AlreadyExists)).To(BeTrue())
	})

	It("allows re-registration of a Decommissioning node, replacing the record", func() {
		r := registry.New()
		_, err := r.Register("node-1", "10.0.0.1:9000")
		Expect(err).NotTo(HaveOccurred())
		r.MarkDecommissioning([]string{"node-1"})

		n, err := r.Register("node-1", "10.0.0.9:9000")
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Addr).To(Equal("10.0.0.9:9000"))
		Expect(n.State).To(Equal(registry.Registered))
	})

	It("fails heartbeat for an unregistered node", func() {
		r := registry.New()
		err := r.Heartbeat("ghost", registry.HeartbeatStats{})
		Expect(errors.Is(err, xerrors.NotFound)).To(BeTrue())
	})

	It("updates stats and timestamp on heartbeat", func() {
		r := registry.New()
		_, err := r.Register("node-1", "addr")
		Expect(err).NotTo(HaveOccurred())

		stats := registry.HeartbeatStats{StorageAllocated: 1000, StorageUsed: 400}
		Expect(r.Heartbeat("node-1", stats)).To(Succeed())

		n, err := r.Get("node-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Stats.Available()).To(Equal(uint64(600)))
	})

	It("only returns Registered nodes as decommission candidates", func() {
		r := registry.New()
		_, _ = r.Register("a", "addr-a")
		_, _ = r.Register("b", "addr-b")
		r.MarkDecommissioning([]string{"a"})

		candidates := r.CandidateTargets()
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].ID).To(Equal("b"))
	})

	It("removes a node from the registry", func() {
		r := registry.New()
		_, _ = r.Register("a", "addr-a")
		r.Remove("a")
		_, err := r.Get("a")
		Expect(errors.Is(err, xerrors.NotFound)).To(BeTrue())
	})
})

var _ = Describe("FirstFitDescending", func() {
	targets := func(avail ...uint64) []registry.Node {
		nodes := make([]registry.Node, len(avail))
		for i, a := range avail {
			nodes[i] = registry.Node{ID: string(rune('A' + i)), Stats: registry.HeartbeatStats{StorageAllocated: a, StorageUsed: 0}}
		}
		return nodes
	}

	It("packs the largest objects first into the first target with room", func() {
		objects := []registry.PackObject{
			{Bucket: "b", Key: "small", Size: 10},
			{Bucket: "b", Key: "large", Size: 90},
			{Bucket: "b", Key: "medium", Size: 50},
		}
		placements, unplaced := registry.FirstFitDescending(objects, targets(100, 100))
		Expect(unplaced).To(BeEmpty())

		total := 0
		for _, p := range placements {
			for _, o := range p.Objects {
				total++
				_ = o
			}
		}
		Expect(total).To(Equal(3))
		// the largest object must land in the first placement processed
		Expect(placements[0].Objects[0].Key).To(Equal("large"))
	})

	It("leaves objects that fit nowhere as unplaced rather than dropping them", func() {
		objects := []registry.PackObject{{Bucket: "b", Key: "huge", Size: 1000}}
		_, unplaced := registry.FirstFitDescending(objects, targets(10))
		Expect(unplaced).To(HaveLen(1))
		Expect(unplaced[0].Key).To(Equal("huge"))
	})

	It("places an object that exactly fills the available capacity", func() {
		objects := []registry.PackObject{{Bucket: "b", Key: "exact", Size: 100}}
		placements, unplaced := registry.FirstFitDescending(objects, targets(100))
		Expect(unplaced).To(BeEmpty())
		Expect(placements).To(HaveLen(1))
	})
})
