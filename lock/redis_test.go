package lock_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/kng-mtd/kvproxy/lock"
)

var _ = Describe("Redis", func() {
	It("requires a client", func() {
		_, err := lock.NewRedis(lock.RedisConfig{})
		Expect(err).To(HaveOccurred())
	})

	Context("against a live server", func() {
		var client *redis.Client

		BeforeEach(func() {
			addr := os.Getenv("KVPROXY_TEST_REDIS_ADDR")
			if addr == "" {
				Skip("KVPROXY_TEST_REDIS_ADDR not set")
			}
			client = redis.NewClient(&redis.Options{Addr: addr, DB: 15})
		})

		AfterEach(func() {
			if client != nil {
				_ = client.Close()
			}
		})

		It("excludes a second holder", func() {
			ctx := context.Background()
			l, err := lock.NewRedis(lock.RedisConfig{Client: client, Expiry: 2 * time.Second, Tries: 2})
			Expect(err).NotTo(HaveOccurred())

			unlock, err := l.Lock(ctx, "acme:k")
			Expect(err).NotTo(HaveOccurred())

			_, err = l.Lock(ctx, "acme:k")
			Expect(err).To(MatchError(lock.ErrNotAcquired))

			unlock()
			unlock2, err := l.Lock(ctx, "acme:k")
			Expect(err).NotTo(HaveOccurred())
			unlock2()
		})
	})
})
