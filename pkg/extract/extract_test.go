package extract_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/eventstream"
	"github.com/papercomputeco/echoes/pkg/extract"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/storage/inmemory"
	"github.com/papercomputeco/echoes/pkg/triplet"
	testutils "github.com/papercomputeco/echoes/pkg/utils/test"
)

var (
	likesGo   = triplet.Triplet{Subject: "I", Predicate: "like", Object: "Go"}
	readsDocs = triplet.Triplet{Subject: "I", Predicate: "read", Object: "docs"}
	visitsHN  = triplet.Triplet{Subject: "I", Predicate: "visit", Object: "news.ycombinator.com"}
)

var _ = Describe("Extractor", func() {
	var (
		ctx       context.Context
		faulty    *testutils.FaultyDriver
		store     *chunked.Store[triplet.Record]
		mockParse *testutils.MockParser
		publisher *testutils.RecordingPublisher
		extractor *extract.Extractor
		now       time.Time
		nextID    int
	)

	msg := func(id string, ts ...triplet.Triplet) triplet.RawMessage {
		return triplet.RawMessage{
			ID:         id,
			ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Text:       testutils.TripletText(ts...),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		faulty = testutils.NewFaultyDriver(inmemory.NewDriver())
		mockParse = testutils.NewMockParser()
		publisher = testutils.NewRecordingPublisher()
		now = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		nextID = 0

		var err error
		store, err = chunked.New[triplet.Record](faulty, extract.DefaultCollection, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		extractor, err = extract.New(extract.Config{
			Store:     store,
			Parser:    mockParse,
			Publisher: publisher,
			Logger:    logger.Nop(),
			Now:       func() time.Time { return now },
			NewID: func() string {
				nextID++
				return fmt.Sprintf("rec-%d", nextID)
			},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("requires a store and a parser", func() {
			_, err := extract.New(extract.Config{Parser: mockParse})
			Expect(err).To(HaveOccurred())

			_, err = extract.New(extract.Config{Store: store})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Candidates", func() {
		It("builds atom-only discovered records", func() {
			records, err := extractor.Candidates(msg("m1", likesGo, readsDocs))
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))

			r := records[0]
			Expect(r.ID).To(Equal("rec-1"))
			Expect(r.Triplet).To(Equal(likesGo))
			Expect(r.SourceMessageID).To(Equal("m1"))
			Expect(r.Origin).To(Equal(triplet.OriginDiscovered))
			Expect(r.Status).To(Equal(triplet.StatusAtomOnly))
			Expect(r.ObjectDescription).To(Equal("described Go"))
			Expect(r.ExtractedAt).To(Equal(now))
			Expect(r.Timestamp).To(Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
		})

		It("collapses repeated triplets within one message", func() {
			records, err := extractor.Candidates(msg("m1", likesGo, likesGo, readsDocs))
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})

		It("returns nothing for a message without triplets", func() {
			records, err := extractor.Candidates(triplet.RawMessage{ID: "m1", Text: "just chatting"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("wraps parser failures in a ParseError", func() {
			_, err := extractor.Candidates(triplet.RawMessage{ID: "m9", Text: "FAIL"})

			var parseErr *extract.ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.MessageID).To(Equal("m9"))
			Expect(errors.Is(err, testutils.ErrParse)).To(BeTrue())
		})
	})

	Describe("Merge", func() {
		It("keeps existing records and appends only novel ones", func() {
			existing := []triplet.Record{{ID: "a", Triplet: likesGo, Status: triplet.StatusPublished}}
			candidates := []triplet.Record{{ID: "b", Triplet: likesGo}, {ID: "c", Triplet: readsDocs}}

			merged, added := extract.Merge(existing, candidates)
			Expect(merged).To(HaveLen(2))
			Expect(merged[0].ID).To(Equal("a"))
			Expect(added).To(HaveLen(1))
			Expect(added[0].ID).To(Equal("c"))
		})
	})

	Describe("Extract", func() {
		It("persists novel triplets and emits one event per record", func() {
			result, err := extractor.Extract(ctx, msg("m1", likesGo, readsDocs))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Added).To(HaveLen(2))
			Expect(result.Duplicates).To(BeZero())

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(publisher.EventTypes()).To(Equal([]string{
				eventstream.EventTypeTripletExtracted,
				eventstream.EventTypeTripletExtracted,
			}))
		})

		It("never grows the collection for a known triplet, whatever its status", func() {
			Expect(store.Save(ctx, []triplet.Record{
				{ID: "old", Triplet: likesGo, Status: triplet.StatusPublished},
			})).To(Succeed())

			result, err := extractor.Extract(ctx, msg("m2", likesGo))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Added).To(BeEmpty())
			Expect(result.Duplicates).To(Equal(1))

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(triplet.StatusPublished))
		})

		It("writes the collection once per message", func() {
			faulty.Reset()
			_, err := extractor.Extract(ctx, msg("m1", likesGo, readsDocs, visitsHN))
			Expect(err).NotTo(HaveOccurred())

			Expect(faulty.Sets).To(Equal([]string{store.ChunkKey(1), store.IndexKey()}))
		})

		It("skips the write when nothing is new", func() {
			_, err := extractor.Extract(ctx, msg("m1", likesGo))
			Expect(err).NotTo(HaveOccurred())
			faulty.Reset()

			_, err = extractor.Extract(ctx, msg("m1-replay", likesGo))
			Expect(err).NotTo(HaveOccurred())
			Expect(faulty.Sets).To(BeEmpty())
		})

		It("does not touch storage when the message has no triplets", func() {
			result, err := extractor.Extract(ctx, triplet.RawMessage{ID: "m3", Text: "hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Added).To(BeEmpty())
			Expect(faulty.Sets).To(BeEmpty())
		})

		It("propagates quota errors from the store", func() {
			faulty.SetErr = func(key string, value []byte) error {
				return storage.QuotaExceededError{Key: key, Size: len(value), Limit: 1}
			}

			result, err := extractor.Extract(ctx, msg("m1", likesGo))
			Expect(storage.IsQuotaExceeded(err)).To(BeTrue())
			Expect(result.Added).To(BeEmpty())
			Expect(publisher.Events()).To(BeEmpty())
		})

		It("leaves storage untouched on parse failure", func() {
			_, err := extractor.Extract(ctx, triplet.RawMessage{ID: "m4", Text: "FAIL"})
			Expect(err).To(HaveOccurred())
			Expect(faulty.Sets).To(BeEmpty())
		})
	})
})
