package engine_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/resilient-engine/api/types"
	. "github.com/masa-finance/resilient-engine/internal/engine"
	"github.com/masa-finance/resilient-engine/internal/engine/stats"
)

// recordingNotifier captures alerts for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *recordingNotifier) Notify(handler string, errMsg string, failureCount int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, fmt.Sprintf("%s|%d", handler, failureCount))
}

func (n *recordingNotifier) count(handler string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, a := range n.alerts {
		if len(a) >= len(handler) && a[:len(handler)] == handler {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func succeeding(output string) HandlerFunc {
	return func(types.Arguments) (string, error) { return output, nil }
}

func failing(msg string) HandlerFunc {
	return func(types.Arguments) (string, error) { return "", fmt.Errorf("%s", msg) }
}

var _ = Describe("Engine", func() {
	var (
		store    *HealthStore
		notifier *recordingNotifier
		eng      *Engine
	)

	BeforeEach(func() {
		store = NewHealthStore(GinkgoT().TempDir())
		notifier = &recordingNotifier{}
		eng = New(store, notifier, stats.StartCollector(128), 3)
	})

	failureCount := func(tool, handler string) int {
		return store.Load().Get(types.HandlerKey(tool, handler)).FailureCount
	}
	isDegraded := func(tool, handler string) bool {
		return store.Load().Get(types.HandlerKey(tool, handler)).Degraded
	}

	It("returns the first success and never attempts later handlers", func() {
		attempted := false
		handlers := []Handler{
			{Name: "primary", Run: succeeding("primary result")},
			{Name: "fallback", Run: func(types.Arguments) (string, error) {
				attempted = true
				return "fallback result", nil
			}},
		}

		result := eng.ExecuteWithResilience("demo", handlers, types.Arguments{})

		Expect(result.Success()).To(BeTrue())
		Expect(result.Handler).To(Equal("primary"))
		Expect(result.Output).To(Equal("primary result"))
		Expect(attempted).To(BeFalse())
	})

	It("cascades to the next handler on failure", func() {
		handlers := []Handler{
			{Name: "a", Run: failing("a broke")},
			{Name: "b", Run: succeeding("b result")},
		}

		result := eng.ExecuteWithResilience("demo", handlers, types.Arguments{})

		Expect(result.Handler).To(Equal("b"))
		Expect(result.Output).To(Equal("b result"))
		Expect(failureCount("demo", "a")).To(Equal(1))
		Expect(failureCount("demo", "b")).To(BeZero())
	})

	It("returns [ERROR] with the last failure when every handler fails", func() {
		handlers := []Handler{
			{Name: "a", Run: failing("a broke")},
			{Name: "b", Run: failing("b broke")},
		}

		result := eng.ExecuteWithResilience("demo", handlers, types.Arguments{})

		Expect(result.Failed()).To(BeTrue())
		Expect(result.Output).To(ContainSubstring("b broke"))
		Expect(result.Output).ToNot(ContainSubstring("a broke"))
	})

	It("returns [ERROR] for an empty handler chain", func() {
		result := eng.ExecuteWithResilience("demo", nil, types.Arguments{})
		Expect(result.Failed()).To(BeTrue())
	})

	It("degrades a handler exactly when it reaches three consecutive failures", func() {
		handlers := []Handler{
			{Name: "a", Run: failing("a broke")},
			{Name: "ok", Run: succeeding("ok")},
		}

		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(failureCount("demo", "a")).To(Equal(2))
		Expect(isDegraded("demo", "a")).To(BeFalse())

		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(failureCount("demo", "a")).To(Equal(3))
		Expect(isDegraded("demo", "a")).To(BeTrue())
	})

	It("resets the failure count and degraded flag on a single success", func() {
		calls := 0
		flaky := Handler{Name: "flaky", Run: func(types.Arguments) (string, error) {
			calls++
			if calls <= 3 {
				return "", fmt.Errorf("still broken")
			}
			return "recovered", nil
		}}

		for i := 0; i < 3; i++ {
			eng.ExecuteWithResilience("demo", []Handler{flaky}, types.Arguments{})
		}
		Expect(isDegraded("demo", "flaky")).To(BeTrue())

		// Sole handler: still attempted while degraded, so it can self-heal.
		// But first reset so the all-degraded short-circuit does not reject
		// the call before the attempt.
		Expect(eng.ResetHandler("demo", "flaky")).To(Succeed())
		result := eng.ExecuteWithResilience("demo", []Handler{flaky}, types.Arguments{})
		Expect(result.Output).To(Equal("recovered"))
		Expect(failureCount("demo", "flaky")).To(BeZero())
		Expect(isDegraded("demo", "flaky")).To(BeFalse())
	})

	It("attempts a degraded last handler instead of skipping it", func() {
		handlers := []Handler{
			{Name: "healthy", Run: failing("broken today")},
			{Name: "last", Run: succeeding("last result")},
		}

		// Degrade "last" directly through the chain [last].
		for i := 0; i < 3; i++ {
			eng.ExecuteWithResilience("demo", []Handler{{Name: "last", Run: failing("down")}}, types.Arguments{})
		}
		Expect(isDegraded("demo", "last")).To(BeTrue())

		// "healthy" fails, "last" is degraded but final, so it is attempted
		// and its success rehabilitates it.
		result := eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(result.Handler).To(Equal("last"))
		Expect(isDegraded("demo", "last")).To(BeFalse())
	})

	It("skips a degraded handler when a later handler exists", func() {
		attempts := 0
		counting := Handler{Name: "a", Run: func(types.Arguments) (string, error) {
			attempts++
			return "", fmt.Errorf("a broke")
		}}
		handlers := []Handler{counting, {Name: "ok", Run: succeeding("ok")}}

		for i := 0; i < 3; i++ {
			eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		}
		Expect(attempts).To(Equal(3))

		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(attempts).To(Equal(3), "degraded handler must not be attempted while a fallback remains")
	})

	It("short-circuits with [DISABLED] when every handler is degraded", func() {
		aRuns, bRuns, cRuns := 0, 0, 0
		handlers := []Handler{
			{Name: "a", Run: func(types.Arguments) (string, error) { aRuns++; return "", fmt.Errorf("a") }},
			{Name: "b", Run: func(types.Arguments) (string, error) { bRuns++; return "", fmt.Errorf("b") }},
			{Name: "c", Run: func(types.Arguments) (string, error) { cRuns++; return "", fmt.Errorf("c") }},
		}

		// Three calls where every handler fails: none is degraded at the
		// start of call 3, so all are attempted and all cross the threshold.
		for i := 0; i < 3; i++ {
			eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		}
		Expect(isDegraded("demo", "a")).To(BeTrue())
		Expect(isDegraded("demo", "b")).To(BeTrue())
		Expect(isDegraded("demo", "c")).To(BeTrue())

		before := [3]int{aRuns, bRuns, cRuns}
		result := eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(result.Disabled()).To(BeTrue())
		Expect(result.Output).To(ContainSubstring("[DISABLED]"))
		Expect([3]int{aRuns, bRuns, cRuns}).To(Equal(before), "no handler may be attempted")

		// And no counters moved.
		Expect(failureCount("demo", "a")).To(Equal(3))
		Expect(failureCount("demo", "b")).To(Equal(3))
		Expect(failureCount("demo", "c")).To(Equal(3))
	})

	It("fires exactly one alert per degradation transition", func() {
		handlers := []Handler{
			{Name: "y", Run: failing("y broke")},
			{Name: "x", Run: failing("x broke")},
		}

		// Three joint failures: both cross the threshold once.
		for i := 0; i < 3; i++ {
			eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		}

		Eventually(notifier.total).Should(Equal(2))
		Expect(notifier.count(types.HandlerKey("demo", "x"))).To(Equal(1))

		// Rehabilitate y so the chain keeps running; x, already degraded but
		// final, keeps failing (failures 4 and 5) without re-alerting.
		Expect(eng.ResetHandler("demo", "y")).To(Succeed())
		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})

		Expect(failureCount("demo", "x")).To(Equal(5))
		Consistently(func() int { return notifier.count(types.HandlerKey("demo", "x")) }).Should(Equal(1))
	})

	It("alerts again after a success-then-re-degrade cycle", func() {
		shouldFail := true
		toggle := Handler{Name: "t", Run: func(types.Arguments) (string, error) {
			if shouldFail {
				return "", fmt.Errorf("t broke")
			}
			return "fine", nil
		}}
		handlers := []Handler{toggle, {Name: "ok", Run: succeeding("ok")}}

		for i := 0; i < 3; i++ {
			eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		}
		Eventually(func() int { return notifier.count(types.HandlerKey("demo", "t")) }).Should(Equal(1))

		// Self-heal: as the final handler of a chain, t is attempted even
		// while degraded, and its success rehabilitates it.
		shouldFail = false
		recovery := []Handler{{Name: "pre", Run: failing("pre broke")}, toggle}
		eng.ExecuteWithResilience("demo", recovery, types.Arguments{})
		Expect(isDegraded("demo", "t")).To(BeFalse())

		shouldFail = true
		for i := 0; i < 3; i++ {
			eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		}
		Eventually(func() int { return notifier.count(types.HandlerKey("demo", "t")) }).Should(Equal(2))
	})

	It("resetting a handler is idempotent", func() {
		handlers := []Handler{{Name: "a", Run: failing("a broke")}}
		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(failureCount("demo", "a")).To(Equal(1))

		Expect(eng.ResetHandler("demo", "a")).To(Succeed())
		first := store.Load().Get(types.HandlerKey("demo", "a"))
		Expect(eng.ResetHandler("demo", "a")).To(Succeed())
		second := store.Load().Get(types.HandlerKey("demo", "a"))

		Expect(first).To(Equal(types.HandlerHealth{}))
		Expect(second).To(Equal(first))
	})

	It("runs the three-call fallback scenario with per-call persistence", func() {
		handlers := []Handler{
			{Name: "a", Run: failing("a broke")},
			{Name: "b", Run: failing("b broke")},
			{Name: "c", Run: succeeding("c result")},
		}

		// Calls 1 and 2: a and b accrue failures, c succeeds.
		for call := 1; call <= 2; call++ {
			result := eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
			Expect(result.Output).To(Equal("c result"))
			Expect(failureCount("demo", "a")).To(Equal(call))
			Expect(failureCount("demo", "b")).To(Equal(call))
			Expect(failureCount("demo", "c")).To(BeZero())
		}

		// Call 3: a and b cross the threshold, alerts fire for both.
		result := eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(result.Output).To(Equal("c result"))
		Expect(isDegraded("demo", "a")).To(BeTrue())
		Expect(isDegraded("demo", "b")).To(BeTrue())
		Expect(isDegraded("demo", "c")).To(BeFalse())
		Eventually(notifier.total).Should(Equal(2))

		// Call 4: a and b are skipped; if c now fails the result is [ERROR]
		// with c's message and c has a single failure.
		handlers[2] = Handler{Name: "c", Run: failing("c broke")}
		result = eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(result.Failed()).To(BeTrue())
		Expect(result.Output).To(ContainSubstring("c broke"))
		Expect(failureCount("demo", "c")).To(Equal(1))
		Expect(isDegraded("demo", "c")).To(BeFalse())
		Expect(failureCount("demo", "a")).To(Equal(3), "skipped handlers accrue nothing")
	})

	It("records the last error and failure time on the health record", func() {
		handlers := []Handler{{Name: "a", Run: failing("first")}}
		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})

		record := store.Load().Get(types.HandlerKey("demo", "a"))
		Expect(record.LastError).To(Equal("first"))
		Expect(record.LastFailureAt).ToNot(BeZero())

		handlers[0] = Handler{Name: "a", Run: failing("second")}
		eng.ExecuteWithResilience("demo", handlers, types.Arguments{})
		Expect(store.Load().Get(types.HandlerKey("demo", "a")).LastError).To(Equal("second"))
	})
})
