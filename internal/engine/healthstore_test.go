package engine_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/resilient-engine/api/types"
	. "github.com/masa-finance/resilient-engine/internal/engine"
)

var _ = Describe("HealthStore", func() {
	var dataDir string
	var store *HealthStore

	BeforeEach(func() {
		dataDir = GinkgoT().TempDir()
		store = NewHealthStore(dataDir)
	})

	It("returns an empty state when no file exists", func() {
		state := store.Load()
		Expect(state).To(BeEmpty())
		Expect(state.Get("web-search:api")).To(Equal(types.HandlerHealth{}))
	})

	It("round-trips a saved state", func() {
		now := time.Now().UTC().Truncate(time.Second)
		state := types.HealthState{
			"web-search:api": {FailureCount: 2, LastError: "boom", LastFailureAt: now},
			"web-search:scraper": {
				FailureCount: 3,
				Degraded:     true,
				LastError:    "blocked",
				LastFailureAt: now,
			},
		}

		Expect(store.Save(state)).To(Succeed())
		loaded := store.Load()

		Expect(loaded).To(HaveLen(2))
		Expect(loaded.Get("web-search:api").FailureCount).To(Equal(2))
		Expect(loaded.Get("web-search:api").Degraded).To(BeFalse())
		Expect(loaded.Get("web-search:scraper").Degraded).To(BeTrue())
		Expect(loaded.Get("web-search:scraper").LastError).To(Equal("blocked"))
		Expect(loaded.Get("web-search:scraper").LastFailureAt).To(BeTemporally("==", now))
	})

	It("creates the data directory on save", func() {
		nested := NewHealthStore(filepath.Join(dataDir, "deeper", "still"))
		Expect(nested.Save(types.HealthState{})).To(Succeed())
		_, err := os.Stat(nested.Path())
		Expect(err).ToNot(HaveOccurred())
	})

	It("treats a corrupt file as a cold start", func() {
		Expect(os.WriteFile(store.Path(), []byte("{not json"), 0o644)).To(Succeed())
		Expect(store.Load()).To(BeEmpty())
	})

	It("writes a human-inspectable file", func() {
		Expect(store.Save(types.HealthState{"t:h": {FailureCount: 1}})).To(Succeed())
		data, err := os.ReadFile(store.Path())
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("\"t:h\""))
		Expect(string(data)).To(ContainSubstring("\"failure_count\": 1"))
	})
})
