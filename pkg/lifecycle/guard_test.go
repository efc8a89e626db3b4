package lifecycle_test

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/lifecycle"
)

var _ = Describe("Guard", func() {
	It("admits one holder at a time", func() {
		g := lifecycle.NewGuard()
		Expect(g.TryAcquire("a")).To(BeTrue())
		Expect(g.Current()).To(Equal("a"))
		Expect(g.TryAcquire("b")).To(BeFalse())

		g.Release()
		Expect(g.Current()).To(BeEmpty())
		Expect(g.TryAcquire("b")).To(BeTrue())
		Expect(g.Current()).To(Equal("b"))
	})

	It("lets exactly one of many concurrent callers in", func() {
		g := lifecycle.NewGuard()
		var (
			wg       sync.WaitGroup
			acquired atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if g.TryAcquire("x") {
					acquired.Add(1)
				}
			}()
		}
		wg.Wait()
		Expect(acquired.Load()).To(Equal(int32(1)))
	})
})
