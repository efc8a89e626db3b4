package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/storage/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("ECHOES_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("ECHOES_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	var (
		driver *postgres.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connStr()

		var err error
		driver, err = postgres.NewDriver(ctx, dsn, 1024)
		Expect(err).NotTo(HaveOccurred())

		// Clean all keys before each test for isolation.
		keys, err := driver.Keys(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		for _, k := range keys {
			Expect(driver.Remove(ctx, k)).To(Succeed())
		}
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	It("stores, lists and removes values", func() {
		Expect(driver.Set(ctx, "col_1", []byte("a"))).To(Succeed())
		Expect(driver.Set(ctx, "col_index", []byte("b"))).To(Succeed())
		Expect(driver.Set(ctx, "col_1", []byte("c"))).To(Succeed())

		value, err := driver.Get(ctx, "col_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(value)).To(Equal("c"))

		keys, err := driver.Keys(ctx, "col_")
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(Equal([]string{"col_1", "col_index"}))

		Expect(driver.Remove(ctx, "col_1")).To(Succeed())
		_, err = driver.Get(ctx, "col_1")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("enforces the value ceiling", func() {
		err := driver.Set(ctx, "big", make([]byte, 2048))
		Expect(storage.IsQuotaExceeded(err)).To(BeTrue())
	})
})
