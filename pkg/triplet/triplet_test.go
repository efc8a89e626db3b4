package triplet_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/triplet"
)

var _ = Describe("Triplet", func() {
	It("compares structurally", func() {
		a := triplet.Triplet{Subject: "I", Predicate: "visited", Object: "golang.org"}
		b := triplet.Triplet{Subject: "I", Predicate: "visited", Object: "golang.org"}
		c := triplet.Triplet{Subject: "I", Predicate: "liked", Object: "golang.org"}

		Expect(a.Equal(b)).To(BeTrue())
		Expect(a.Equal(c)).To(BeFalse())
		Expect(a.Key()).To(Equal(b.Key()))
		Expect(a.Key()).NotTo(Equal(c.Key()))
	})

	It("does not confuse field boundaries in the key", func() {
		a := triplet.Triplet{Subject: "a b", Predicate: "c", Object: "d"}
		b := triplet.Triplet{Subject: "a", Predicate: "b c", Object: "d"}
		Expect(a.Key()).NotTo(Equal(b.Key()))
	})
})

var _ = Describe("Status", func() {
	DescribeTable("Rank orders the lifecycle",
		func(lower, higher triplet.Status) {
			Expect(lower.Rank()).To(BeNumerically("<", higher.Rank()))
		},
		Entry("atom-only < checking", triplet.StatusAtomOnly, triplet.StatusChecking),
		Entry("checking < ready", triplet.StatusChecking, triplet.StatusReady),
		Entry("ready < publishing", triplet.StatusReady, triplet.StatusPublishing),
		Entry("publishing < published", triplet.StatusPublishing, triplet.StatusPublished),
		Entry("publishing < exists-on-chain", triplet.StatusPublishing, triplet.StatusExistsOnChain),
	)

	It("classifies states", func() {
		Expect(triplet.StatusPublished.Terminal()).To(BeTrue())
		Expect(triplet.StatusExistsOnChain.Terminal()).To(BeTrue())
		Expect(triplet.StatusPublishing.InFlight()).To(BeTrue())
		Expect(triplet.StatusChecking.InFlight()).To(BeTrue())
		Expect(triplet.StatusReady.Publishable()).To(BeTrue())
		Expect(triplet.StatusAtomOnly.Publishable()).To(BeTrue())
		Expect(triplet.StatusPublished.Publishable()).To(BeFalse())
		Expect(triplet.Status("bogus").Valid()).To(BeFalse())
	})
})

var _ = Describe("Find and Contains", func() {
	records := []triplet.Record{
		{ID: "a", Triplet: triplet.Triplet{Subject: "s", Predicate: "p", Object: "o1"}},
		{ID: "b", Triplet: triplet.Triplet{Subject: "s", Predicate: "p", Object: "o2"}},
	}

	It("finds by id", func() {
		Expect(triplet.Find(records, "b")).To(Equal(1))
		Expect(triplet.Find(records, "zzz")).To(Equal(-1))
	})

	It("matches by triplet content", func() {
		Expect(triplet.Contains(records, triplet.Triplet{Subject: "s", Predicate: "p", Object: "o2"})).To(BeTrue())
		Expect(triplet.Contains(records, triplet.Triplet{Subject: "s", Predicate: "p", Object: "o3"})).To(BeFalse())
	})
})
