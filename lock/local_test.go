package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/kng-mtd/kvproxy/lock"
)

const t50ms = 50 * time.Millisecond
const key = "acme:counter"

var _ = Describe("Local", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("excludes a second holder until the first unlocks", func() {
		l := lock.NewLocal(t50ms)

		unlock, err := l.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())

		_, err = l.Lock(ctx, key)
		Expect(err).To(MatchError(lock.ErrNotAcquired))

		unlock()
		unlock2, err := l.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		unlock2()
	})

	It("hands the lock to a waiter", func() {
		l := lock.NewLocal(time.Second)

		unlock, err := l.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())

		go func() {
			time.Sleep(25 * time.Millisecond)
			unlock()
		}()

		unlock2, err := l.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		unlock2()
	})

	It("does not block other keys", func() {
		l := lock.NewLocal(t50ms)

		unlock, err := l.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		defer unlock()

		other, err := l.Lock(ctx, "acme:other")
		Expect(err).NotTo(HaveOccurred())
		other()
	})

	It("gives up when the context ends", func() {
		l := lock.NewLocal(time.Minute)
		unlock, err := l.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		defer unlock()

		cctx, cancel := context.WithTimeout(ctx, t50ms)
		defer cancel()
		_, err = l.Lock(cctx, key)
		Expect(err).To(MatchError(lock.ErrNotAcquired))
	})

	It("tolerates a double unlock", func() {
		l := lock.NewLocal(t50ms)
		unlock, err := l.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		unlock()
		unlock()
		Expect(l.Len()).To(Equal(0))
	})

	It("runs the lock stress test", func() {
		l := lock.NewLocal(5 * time.Second)
		var inside, maxInside, failures int32

		wg := sync.WaitGroup{}
		for i := 0; i < 500; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := l.Lock(ctx, key)
				if err != nil {
					atomic.AddInt32(&failures, 1)
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				atomic.AddInt32(&inside, -1)
				unlock()
			}()
		}
		wg.Wait()

		Expect(failures).To(BeZero())
		Expect(maxInside).To(BeEquivalentTo(1))
		Expect(l.Len()).To(Equal(0))
	})
})
