package history

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/resilient-engine/api/types"
)

var _ = Describe("Cache", func() {
	It("should set and get values", func() {
		cache := NewCache(10, time.Minute)
		key := "abc"
		val := types.ExecutionResult{UUID: key, Tool: "web-search", Output: "ok"}
		cache.Set(key, val)
		got, ok := cache.Get(key)
		Expect(ok).To(BeTrue())
		Expect(got.UUID).To(Equal(key))
		Expect(got.Output).To(Equal("ok"))
	})

	It("should miss on unknown keys", func() {
		cache := NewCache(10, time.Minute)
		_, ok := cache.Get("nope")
		Expect(ok).To(BeFalse())
	})

	It("should evict oldest when max size is reached", func() {
		cache := NewCache(3, time.Minute)
		for i := 0; i < 5; i++ {
			key := string(rune('a' + i))
			cache.Set(key, types.ExecutionResult{UUID: key})
		}
		Expect(cache.Len()).To(Equal(3))
		_, ok := cache.Get("a")
		Expect(ok).To(BeFalse())
		_, ok = cache.Get("e")
		Expect(ok).To(BeTrue())
	})

	It("should evict by age", func() {
		cache := NewCache(10, time.Second)
		key := "expireme"
		cache.Set(key, types.ExecutionResult{UUID: key})
		time.Sleep(1100 * time.Millisecond)
		_, ok := cache.Get(key)
		Expect(ok).To(BeFalse())
	})

	It("should refresh an updated entry", func() {
		cache := NewCache(2, time.Minute)
		cache.Set("a", types.ExecutionResult{UUID: "a", Output: "one"})
		cache.Set("b", types.ExecutionResult{UUID: "b"})
		cache.Set("a", types.ExecutionResult{UUID: "a", Output: "two"})
		cache.Set("c", types.ExecutionResult{UUID: "c"})

		// "b" was the oldest once "a" was refreshed.
		_, ok := cache.Get("b")
		Expect(ok).To(BeFalse())
		got, ok := cache.Get("a")
		Expect(ok).To(BeTrue())
		Expect(got.Output).To(Equal("two"))
	})
})
