package ring_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ringkv/ringkv/internal/model"
	"github.com/ringkv/ringkv/internal/ring"
)

func ids(vs ...int) []model.NodeID {
	out := make([]model.NodeID, len(vs))
	for i, v := range vs {
		out[i] = model.NodeID(v)
	}
	return out
}

var _ = Describe("Ring", func() {

	Describe("Successor", func() {
		It("returns the smallest ID strictly greater than me", func() {
			Expect(ring.Successor(ids(10, 20, 30), 10)).To(Equal(model.NodeID(20)))
		})

		It("wraps to the minimum when me is the largest", func() {
			Expect(ring.Successor(ids(10, 20, 30), 30)).To(Equal(model.NodeID(10)))
		})

		It("returns itself when it is the only node", func() {
			Expect(ring.Successor(ids(10), 10)).To(Equal(model.NodeID(10)))
		})
	})

	Describe("OwnersOf", func() {
		It("returns min(|ids|, n) distinct owners", func() {
			owners := ring.OwnersOf(ids(10, 20, 30), model.Key(5), 2)
			Expect(owners).To(HaveLen(2))
			Expect(owners).To(ConsistOf(model.NodeID(10), model.NodeID(20)))
		})

		It("is insensitive to the order of the input set", func() {
			forward := ring.OwnersOf(ids(10, 20, 30), model.Key(25), 2)
			backward := ring.OwnersOf(ids(30, 20, 10), model.Key(25), 2)
			Expect(forward).To(Equal(backward))
		})

		It("clamps to the size of the node set", func() {
			owners := ring.OwnersOf(ids(10, 20, 30), model.Key(5), 10)
			Expect(owners).To(HaveLen(3))
		})

		It("wraps clockwise past the maximum ID", func() {
			// key greater than every ID: the walk wraps straight to the
			// smallest IDs.
			owners := ring.OwnersOf(ids(10, 20, 30), model.Key(35), 2)
			Expect(owners).To(Equal(ids(10, 20)))
		})
	})

	Describe("Owns", func() {
		It("agrees with OwnersOf", func() {
			set := ids(10, 20, 30)
			for _, me := range set {
				owned := ring.Owns(set, me, model.Key(25), 2)
				var inOwners bool
				for _, o := range ring.OwnersOf(set, model.Key(25), 2) {
					if o == me {
						inOwners = true
					}
				}
				Expect(owned).To(Equal(inOwners))
			}
		})
	})

	Describe("NextReplicasAfter", func() {
		It("returns the N successors excluding me", func() {
			next := ring.NextReplicasAfter(ids(10, 20, 30, 40), model.NodeID(20), 3)
			Expect(next).To(ConsistOf(model.NodeID(30), model.NodeID(40), model.NodeID(10)))
		})

		It("shrinks when there are fewer than N+1 other nodes", func() {
			next := ring.NextReplicasAfter(ids(10, 20, 30), model.NodeID(20), 5)
			Expect(next).To(ConsistOf(model.NodeID(30), model.NodeID(10)))
		})
	})
})
