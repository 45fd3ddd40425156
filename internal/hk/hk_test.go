package hk_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/internal/hk"
)

var _ = Describe("Housekeeper", func() {
	It("fires a registered callback repeatedly until it returns <= 0", func() {
		h := hk.New(5 * time.Millisecond)
		var calls int32

		h.Reg("counter", func() time.Duration {
			n := atomic.AddInt32(&calls, 1)
			if n >= 3 {
				return 0
			}
			return 5 * time.Millisecond
		}, time.Millisecond)

		go h.Run()
		defer h.Stop(nil)

		Eventually(func() int32 { return atomic.LoadInt32(&calls) }, "200ms", "5ms").Should(Equal(int32(3)))
		Consistently(func() int32 { return atomic.LoadInt32(&calls) }, "50ms", "5ms").Should(Equal(int32(3)))
	})

	It("stops firing a callback after Unreg", func() {
		h := hk.New(5 * time.Millisecond)
		var calls int32
		h.Reg("x", func() time.Duration {
			atomic.AddInt32(&calls, 1)
			return time.Millisecond
		}, time.Millisecond)

		go h.Run()
		defer h.Stop(nil)

		Eventually(func() int32 { return atomic.LoadInt32(&calls) }, "100ms", "5ms").Should(BeNumerically(">=", 1))
		h.Unreg("x")
		snapshot := atomic.LoadInt32(&calls)
		Consistently(func() int32 { return atomic.LoadInt32(&calls) }, "50ms", "5ms").Should(Equal(snapshot))
	})
})
