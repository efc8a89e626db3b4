package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/storage/inmemory"
)

var _ = Describe("Driver", func() {
	var (
		driver *inmemory.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
	})

	Describe("Set and Get", func() {
		It("stores and retrieves a value", func() {
			Expect(driver.Set(ctx, "a", []byte("one"))).To(Succeed())

			value, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(value)).To(Equal("one"))
		})

		It("overwrites an existing value", func() {
			Expect(driver.Set(ctx, "a", []byte("one"))).To(Succeed())
			Expect(driver.Set(ctx, "a", []byte("two"))).To(Succeed())

			value, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(value)).To(Equal("two"))
			Expect(driver.Count()).To(Equal(1))
		})

		It("returns NotFoundError for a missing key", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(HaveOccurred())
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("missing"))
		})

		It("does not alias the caller's slice", func() {
			buf := []byte("abc")
			Expect(driver.Set(ctx, "a", buf)).To(Succeed())
			buf[0] = 'z'

			value, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(value)).To(Equal("abc"))
		})
	})

	Describe("Remove", func() {
		It("removes a key", func() {
			Expect(driver.Set(ctx, "a", []byte("one"))).To(Succeed())
			Expect(driver.Remove(ctx, "a")).To(Succeed())

			_, err := driver.Get(ctx, "a")
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(driver.TotalBytes()).To(BeZero())
		})

		It("is a no-op for a missing key", func() {
			Expect(driver.Remove(ctx, "missing")).To(Succeed())
		})
	})

	Describe("Keys", func() {
		It("lists keys by prefix in sorted order", func() {
			Expect(driver.Set(ctx, "col_2", []byte("x"))).To(Succeed())
			Expect(driver.Set(ctx, "col_1", []byte("x"))).To(Succeed())
			Expect(driver.Set(ctx, "other", []byte("x"))).To(Succeed())

			keys, err := driver.Keys(ctx, "col_")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{"col_1", "col_2"}))
		})
	})

	Describe("quotas", func() {
		It("rejects values above the per-value ceiling", func() {
			driver = inmemory.NewDriverWithConfig(inmemory.Config{MaxValueBytes: 4})

			err := driver.Set(ctx, "a", []byte("too large"))
			Expect(storage.IsQuotaExceeded(err)).To(BeTrue())

			var qe storage.QuotaExceededError
			Expect(err).To(BeAssignableToTypeOf(qe))
		})

		It("rejects writes above the total ceiling", func() {
			driver = inmemory.NewDriverWithConfig(inmemory.Config{MaxTotalBytes: 6})

			Expect(driver.Set(ctx, "a", []byte("1234"))).To(Succeed())
			Expect(storage.IsQuotaExceeded(driver.Set(ctx, "b", []byte("1234")))).To(BeTrue())

			// Replacing a value only counts the difference.
			Expect(driver.Set(ctx, "a", []byte("123456"))).To(Succeed())
		})
	})
})
