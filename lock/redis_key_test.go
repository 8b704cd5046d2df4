package lock

import (
	"testing"

	"github.com/kng-mtd/kvproxy/internal/util"
)

func TestRedisKeyIsNeverAStorageKey(t *testing.T) {
	for _, k := range []string{"t:k", "kvproxy:lock", "a:b:c"} {
		if _, _, err := util.SplitStorageKey(redisKeyPrefix + k); err == nil {
			t.Fatalf("%q parses as a storage key", redisKeyPrefix+k)
		}
	}
}
