package chunked_test

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/echoes/pkg/utils/test"
)

type item struct {
	N    int    `json:"n"`
	Note string `json:"note"`
}

func items(n int) []item {
	out := make([]item, n)
	for i := range out {
		out[i] = item{N: i, Note: fmt.Sprintf("item-%d", i)}
	}
	return out
}

// keylessDriver fails every Keys call.
type keylessDriver struct {
	storage.Driver
}

func (keylessDriver) Keys(context.Context, string) ([]string, error) {
	return nil, errors.New("keys unavailable")
}

var _ = Describe("Store", func() {
	var (
		ctx    context.Context
		mem    *inmemory.Driver
		faulty *testutils.FaultyDriver
		store  *chunked.Store[item]
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = inmemory.NewDriver()
		faulty = testutils.NewFaultyDriver(mem)

		var err error
		store, err = chunked.New[item](faulty, chunked.Collection{Name: "things", ChunkSize: 5}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("rejects a non-positive chunk size", func() {
			_, err := chunked.New[item](mem, chunked.Collection{Name: "x", ChunkSize: 0}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})

		It("rejects an empty name", func() {
			_, err := chunked.New[item](mem, chunked.Collection{ChunkSize: 5}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Load", func() {
		It("returns an empty collection when nothing was saved", func() {
			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())

			idx, err := store.Index(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Chunks).To(BeEmpty())
			Expect(idx.LastChunk).To(BeNil())
		})

		It("skips a chunk that fails to read", func() {
			Expect(store.Save(ctx, items(12))).To(Succeed())
			faulty.FailGet["things_2"] = true

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(7))
			Expect(records[4].N).To(Equal(4))
			Expect(records[5].N).To(Equal(10))
		})

		It("skips a chunk that fails to decode", func() {
			Expect(store.Save(ctx, items(7))).To(Succeed())
			Expect(mem.Set(ctx, "things_1", []byte("{not json"))).To(Succeed())

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(Equal(items(7)[5:]))
		})

		It("ignores orphan chunks not listed in the index", func() {
			Expect(store.Save(ctx, items(3))).To(Succeed())
			orphan, _ := json.Marshal(items(2))
			Expect(mem.Set(ctx, "things_9", orphan)).To(Succeed())

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(Equal(items(3)))
		})
	})

	Describe("Save", func() {
		It("partitions 17 records into chunks of [5,5,5,2]", func() {
			Expect(store.Save(ctx, items(17))).To(Succeed())

			idx, err := store.Index(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Chunks).To(Equal([]string{"things_1", "things_2", "things_3", "things_4"}))
			Expect(idx.TotalCount).To(Equal(17))
			Expect(idx.LastChunk).NotTo(BeNil())
			Expect(*idx.LastChunk).To(Equal("things_4"))

			sizes := []int{}
			for _, key := range idx.Chunks {
				raw, err := mem.Get(ctx, key)
				Expect(err).NotTo(HaveOccurred())
				var chunk []item
				Expect(json.Unmarshal(raw, &chunk)).To(Succeed())
				sizes = append(sizes, len(chunk))
			}
			Expect(sizes).To(Equal([]int{5, 5, 5, 2}))
		})

		DescribeTable("writes ceil(N/K) chunks",
			func(n, chunks int) {
				Expect(store.Save(ctx, items(n))).To(Succeed())
				idx, err := store.Index(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(idx.Chunks).To(HaveLen(chunks))
			},
			Entry("empty", 0, 0),
			Entry("one", 1, 1),
			Entry("exactly one chunk", 5, 1),
			Entry("one over", 6, 2),
			Entry("exact multiple", 20, 4),
		)

		It("round-trips and is idempotent", func() {
			want := items(11)
			Expect(store.Save(ctx, want)).To(Succeed())

			first, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(Equal(want))

			Expect(store.Save(ctx, first)).To(Succeed())
			second, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(want))
		})

		It("removes chunks that are no longer needed", func() {
			Expect(store.Save(ctx, items(17))).To(Succeed())
			Expect(store.Save(ctx, items(3))).To(Succeed())

			keys, err := mem.Keys(ctx, "things_")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(ConsistOf("things_1", "things_index"))
		})

		It("deletes old chunks, then writes chunks, then the index", func() {
			Expect(store.Save(ctx, items(6))).To(Succeed())
			faulty.Reset()

			Expect(store.Save(ctx, items(4))).To(Succeed())
			Expect(faulty.Removes).To(Equal([]string{"things_1", "things_2"}))
			Expect(faulty.Sets).To(Equal([]string{"things_1", "things_index"}))
		})

		It("propagates quota errors", func() {
			faulty.SetErr = func(key string, value []byte) error {
				return storage.QuotaExceededError{Key: key, Size: len(value), Limit: 1}
			}

			err := store.Save(ctx, items(2))
			Expect(err).To(HaveOccurred())
			Expect(storage.IsQuotaExceeded(err)).To(BeTrue())
		})

		It("recovers from a corrupt index by scanning for chunks", func() {
			Expect(store.Save(ctx, items(8))).To(Succeed())
			Expect(mem.Set(ctx, "things_index", []byte("garbage"))).To(Succeed())

			Expect(store.Save(ctx, items(1))).To(Succeed())
			keys, err := mem.Keys(ctx, "things_")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(ConsistOf("things_1", "things_index"))
		})
	})

	Describe("corrupt index", func() {
		BeforeEach(func() {
			Expect(store.Save(ctx, items(52))).To(Succeed())
			Expect(mem.Set(ctx, "things_index", []byte("{garbage"))).To(Succeed())
		})

		It("loads every chunk in chunk-number order", func() {
			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(Equal(items(52)))
		})

		It("lets Update rewrite a readable index", func() {
			err := store.Update(ctx, func(records []item) ([]item, error) {
				return append(records, item{N: 99}), nil
			})
			Expect(err).NotTo(HaveOccurred())

			idx, err := store.Index(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.TotalCount).To(Equal(53))
			Expect(idx.Chunks).To(HaveLen(11))

			err = store.Update(ctx, func(records []item) ([]item, error) {
				return records[:1], nil
			})
			Expect(err).NotTo(HaveOccurred())

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(Equal(items(1)))
		})

		It("fails when the chunks cannot be listed either", func() {
			broken := &keylessDriver{Driver: mem}
			s, err := chunked.New[item](broken, chunked.Collection{Name: "things", ChunkSize: 5}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			_, err = s.Load(ctx)
			Expect(err).To(MatchError(ContainSubstring("decoding index things_index")))
			Expect(err).To(MatchError(ContainSubstring("keys unavailable")))
		})
	})

	Describe("Update", func() {
		It("applies the function to the persisted collection", func() {
			Expect(store.Save(ctx, items(3))).To(Succeed())

			err := store.Update(ctx, func(records []item) ([]item, error) {
				return append(records, item{N: 99}), nil
			})
			Expect(err).NotTo(HaveOccurred())

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(4))
			Expect(records[3].N).To(Equal(99))
		})

		It("does not write when the function fails", func() {
			Expect(store.Save(ctx, items(3))).To(Succeed())
			faulty.Reset()

			boom := errors.New("boom")
			err := store.Update(ctx, func([]item) ([]item, error) { return nil, boom })
			Expect(err).To(MatchError(boom))
			Expect(faulty.Sets).To(BeEmpty())
		})

		It("skips the save on ErrNoChange", func() {
			faulty.Reset()
			err := store.Update(ctx, func([]item) ([]item, error) { return nil, chunked.ErrNoChange })
			Expect(err).NotTo(HaveOccurred())
			Expect(faulty.Sets).To(BeEmpty())
		})

		It("serializes concurrent read-modify-write cycles", func() {
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					err := store.Update(ctx, func(records []item) ([]item, error) {
						return append(records, item{N: i}), nil
					})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(20))
		})
	})

	Describe("Retain", func() {
		It("keeps the newest records", func() {
			Expect(store.Save(ctx, items(12))).To(Succeed())

			keep := chunked.KeepNewest(4, func(a, b item) int { return cmp.Compare(a.N, b.N) }, nil)
			removed, err := store.Retain(ctx, keep)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(8))

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(4))
			Expect(records[0].N).To(Equal(11))
			Expect(records[3].N).To(Equal(8))
		})

		It("keeps pinned records beyond the limit", func() {
			Expect(store.Save(ctx, items(6))).To(Succeed())

			keep := chunked.KeepNewest(2,
				func(a, b item) int { return cmp.Compare(a.N, b.N) },
				func(i item) bool { return i.N == 0 },
			)
			_, err := store.Retain(ctx, keep)
			Expect(err).NotTo(HaveOccurred())

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[2].N).To(Equal(0))
		})

		It("does not write when under the limit", func() {
			Expect(store.Save(ctx, items(2))).To(Succeed())
			faulty.Reset()

			removed, err := store.Retain(ctx, chunked.KeepNewest(5, func(a, b item) int { return cmp.Compare(a.N, b.N) }, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())
			Expect(faulty.Sets).To(BeEmpty())
		})
	})

	Describe("Clear", func() {
		It("empties the collection", func() {
			Expect(store.Save(ctx, items(9))).To(Succeed())
			Expect(store.Clear(ctx)).To(Succeed())

			records, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})
})
