package cleanup_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/buffer"
	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/cleanup"
	"github.com/papercomputeco/echoes/pkg/extract"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/migrate"
	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/storage/inmemory"
	"github.com/papercomputeco/echoes/pkg/triplet"
	testutils "github.com/papercomputeco/echoes/pkg/utils/test"
)

var _ = Describe("Cleaner", func() {
	var (
		ctx      context.Context
		driver   *inmemory.Driver
		messages *chunked.Store[triplet.RawMessage]
		triplets *chunked.Store[triplet.Record]
		cleaner  *cleanup.Cleaner
		base     time.Time
	)

	records := func(n int) []triplet.Record {
		out := make([]triplet.Record, n)
		for i := range out {
			out[i] = triplet.Record{
				ID:          fmt.Sprintf("r%02d", i),
				Triplet:     triplet.Triplet{Subject: "I", Predicate: "like", Object: fmt.Sprintf("o%d", i)},
				Status:      triplet.StatusAtomOnly,
				ExtractedAt: base.Add(time.Duration(i) * time.Minute),
			}
		}
		return out
	}

	ids := func() []string {
		loaded, err := triplets.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		out := make([]string, 0, len(loaded))
		for _, r := range loaded {
			out = append(out, r.ID)
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		driver = inmemory.NewDriver()

		var err error
		messages, err = chunked.New[triplet.RawMessage](driver, buffer.DefaultCollection, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		triplets, err = chunked.New[triplet.Record](driver, extract.DefaultCollection, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		cleaner, err = cleanup.New(cleanup.Config{Driver: driver, Messages: messages, Triplets: triplets})
		Expect(err).NotTo(HaveOccurred())

		Expect(messages.Save(ctx, []triplet.RawMessage{{ID: "m1", Text: "a"}, {ID: "m2", Text: "b"}})).To(Succeed())
		Expect(triplets.Save(ctx, records(15))).To(Succeed())
	})

	It("requires its stores", func() {
		_, err := cleanup.New(cleanup.Config{Driver: driver})
		Expect(err).To(HaveOccurred())
	})

	It("clears the buffer and keeps the newest records", func() {
		result, err := cleaner.Run(ctx, cleanup.Options{Keep: cleanup.DefaultKeep})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.MessagesCleared).To(Equal(2))
		Expect(result.TripletsRemoved).To(Equal(5))
		Expect(result.TripletsKept).To(Equal(10))

		pending, err := messages.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(ids()).To(HaveLen(10))
		Expect(ids()).To(ContainElements("r14", "r05"))
		Expect(ids()).NotTo(ContainElement("r04"))
	})

	It("removes everything that is not in flight with a zero keep", func() {
		inFlight := records(16)[15]
		inFlight.Status = triplet.StatusPublishing
		inFlight.PriorStatus = triplet.StatusReady
		Expect(triplets.Update(ctx, func(rs []triplet.Record) ([]triplet.Record, error) {
			return append(rs, inFlight), nil
		})).To(Succeed())

		result, err := cleaner.Run(ctx, cleanup.Options{Keep: 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.TripletsRemoved).To(Equal(15))
		Expect(ids()).To(Equal([]string{"r15"}))
	})

	It("removes leftover legacy keys", func() {
		Expect(driver.Set(ctx, migrate.LegacyOnChainKey, []byte("[]"))).To(Succeed())
		Expect(driver.Set(ctx, migrate.LegacyMessagesKey, []byte("{broken"))).To(Succeed())

		result, err := cleaner.Run(ctx, cleanup.Options{Keep: cleanup.DefaultKeep})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.LegacyKeysRemoved).To(ConsistOf(migrate.LegacyMessagesKey, migrate.LegacyOnChainKey))

		_, err = driver.Get(ctx, migrate.LegacyOnChainKey)
		Expect(storage.IsNotFound(err)).To(BeTrue())

		_, err = triplets.Index(ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	It("is a no-op on a small collection", func() {
		faulty := testutils.NewFaultyDriver(inmemory.NewDriver())
		m, err := chunked.New[triplet.RawMessage](faulty, buffer.DefaultCollection, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		t, err := chunked.New[triplet.Record](faulty, extract.DefaultCollection, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Save(ctx, records(3))).To(Succeed())
		faulty.Reset()

		c, err := cleanup.New(cleanup.Config{Driver: faulty, Messages: m, Triplets: t})
		Expect(err).NotTo(HaveOccurred())

		result, err := c.Run(ctx, cleanup.Options{Keep: cleanup.DefaultKeep})
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(cleanup.Result{TripletsKept: 3}))
		Expect(faulty.Sets).To(BeEmpty())
		Expect(faulty.Removes).To(BeEmpty())
	})

	It("rejects a negative keep", func() {
		_, err := cleaner.Run(ctx, cleanup.Options{Keep: -1})
		Expect(err).To(HaveOccurred())
		Expect(ids()).To(HaveLen(15))
	})
})
