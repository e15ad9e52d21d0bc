package credentials_test

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trendsift/viral-engine/internal/credentials"
	"github.com/trendsift/viral-engine/pkg/seal"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ = Describe("Pool", func() {
	var clock *fakeClock

	BeforeEach(func() {
		clock = newFakeClock()
	})

	newPool := func(ids ...string) *credentials.Pool {
		creds := make([]credentials.Credential, len(ids))
		for i, id := range ids {
			creds[i] = credentials.Credential{ID: id}
		}
		return credentials.NewPool("test", creds, credentials.WithClock(clock.Now))
	}

	Context("when acquiring credentials", func() {
		It("rotates round-robin", func() {
			pool := newPool("a", "b", "c")

			var seen []string
			for i := 0; i < 6; i++ {
				cred, err := pool.Acquire()
				Expect(err).NotTo(HaveOccurred())
				seen = append(seen, cred.ID)
			}
			Expect(seen).To(Equal([]string{"a", "b", "c", "a", "b", "c"}))
		})

		It("returns ErrCredentialExhausted when empty", func() {
			pool := newPool()
			_, err := pool.Acquire()
			Expect(err).To(MatchError(credentials.ErrCredentialExhausted))
		})

		It("records last use", func() {
			pool := newPool("a")
			cred, err := pool.Acquire()
			Expect(err).NotTo(HaveOccurred())
			Expect(cred.LastUsed).To(Equal(clock.Now()))
		})
	})

	Context("when a credential fails", func() {
		It("skips it until the cooldown expires", func() {
			pool := newPool("a", "b")

			cred, err := pool.Acquire()
			Expect(err).NotTo(HaveOccurred())
			Expect(cred.ID).To(Equal("a"))
			pool.ReportFailure(cred)

			for i := 0; i < 3; i++ {
				next, err := pool.Acquire()
				Expect(err).NotTo(HaveOccurred())
				Expect(next.ID).To(Equal("b"))
			}

			clock.Advance(credentials.DefaultCooldown + time.Second)

			ids := map[string]bool{}
			for i := 0; i < 2; i++ {
				next, err := pool.Acquire()
				Expect(err).NotTo(HaveOccurred())
				ids[next.ID] = true
			}
			Expect(ids).To(HaveKey("a"))
		})

		It("exhausts when every credential is cooling down", func() {
			pool := newPool("a", "b")

			for i := 0; i < 2; i++ {
				cred, err := pool.Acquire()
				Expect(err).NotTo(HaveOccurred())
				pool.ReportFailure(cred)
			}

			_, err := pool.Acquire()
			Expect(err).To(MatchError(credentials.ErrCredentialExhausted))
			Expect(pool.Available()).To(Equal(0))

			clock.Advance(credentials.DefaultCooldown + time.Second)
			Expect(pool.Available()).To(Equal(2))

			_, err = pool.Acquire()
			Expect(err).NotTo(HaveOccurred())
		})

		It("honors a custom cooldown", func() {
			creds := []credentials.Credential{{ID: "only"}}
			pool := credentials.NewPool("test", creds,
				credentials.WithClock(clock.Now),
				credentials.WithCooldown(time.Minute),
			)

			cred, err := pool.Acquire()
			Expect(err).NotTo(HaveOccurred())
			pool.ReportFailure(cred)

			_, err = pool.Acquire()
			Expect(err).To(MatchError(credentials.ErrCredentialExhausted))

			clock.Advance(61 * time.Second)
			_, err = pool.Acquire()
			Expect(err).NotTo(HaveOccurred())
		})

		It("clears the failure count on success", func() {
			pool := newPool("a")
			cred, err := pool.Acquire()
			Expect(err).NotTo(HaveOccurred())

			pool.ReportFailure(cred)
			Expect(cred.FailureCount).To(Equal(1))

			clock.Advance(credentials.DefaultCooldown + time.Second)
			cred, err = pool.Acquire()
			Expect(err).NotTo(HaveOccurred())
			pool.ReportSuccess(cred)
			Expect(cred.FailureCount).To(Equal(0))
		})
	})

	Context("when reporting state", func() {
		It("exposes cooldown and usage per credential", func() {
			pool := newPool("a", "b")
			cred, err := pool.Acquire()
			Expect(err).NotTo(HaveOccurred())
			pool.ReportFailure(cred)

			states := pool.States()
			Expect(states).To(HaveLen(2))
			Expect(states[0].ID).To(Equal("a"))
			Expect(states[0].InCooldown).To(BeTrue())
			Expect(states[0].FailureCount).To(Equal(1))
			Expect(states[1].InCooldown).To(BeFalse())

			Expect(pool.Size()).To(Equal(2))
			Expect(pool.Available()).To(Equal(1))
		})
	})
})

var _ = Describe("Loaders", func() {
	It("builds credentials from bare keys", func() {
		creds := credentials.FromKeys([]string{"k1", " k2 ", ""})
		Expect(creds).To(HaveLen(2))
		Expect(creds[0].ID).To(Equal("k1"))
		Expect(creds[1].ID).To(Equal("k2"))
	})

	It("splits pairs on the first colon", func() {
		creds := credentials.FromPairs([]string{"user:pa:ss", "key:cx"})
		Expect(creds).To(HaveLen(2))
		Expect(creds[0].ID).To(Equal("user"))
		Expect(creds[0].Secret).To(Equal("pa:ss"))
		Expect(creds[1].Secret).To(Equal("cx"))
	})

	It("skips malformed pairs", func() {
		creds := credentials.FromPairs([]string{"no-separator", ":empty-id", "ok:fine"})
		Expect(creds).To(HaveLen(1))
		Expect(creds[0].ID).To(Equal("ok"))
	})
})

var _ = Describe("Store", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "credstore-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	store := map[string][]credentials.Credential{
		"serper":  {{ID: "serper-key"}},
		"twitter": {{ID: "user", Secret: "pass"}},
	}

	It("round-trips a plain JSON store", func() {
		path := filepath.Join(tmpDir, "creds.json")
		Expect(credentials.SaveStore(path, nil, store)).To(Succeed())

		loaded, err := credentials.LoadStore(path, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded["serper"]).To(HaveLen(1))
		Expect(loaded["twitter"][0].Secret).To(Equal("pass"))
	})

	It("round-trips a sealed store", func() {
		ring := seal.NewKeyRing("store-key")
		path := filepath.Join(tmpDir, "creds.enc")
		Expect(credentials.SaveStore(path, ring, store)).To(Succeed())

		raw, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).NotTo(ContainSubstring("serper-key"))

		loaded, err := credentials.LoadStore(path, ring)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded["serper"][0].ID).To(Equal("serper-key"))
	})

	It("opens a sealed store after key rotation", func() {
		ring := seal.NewKeyRing("old")
		path := filepath.Join(tmpDir, "creds.enc")
		Expect(credentials.SaveStore(path, ring, store)).To(Succeed())

		ring.Add("new")
		loaded, err := credentials.LoadStore(path, ring)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded["twitter"][0].ID).To(Equal("user"))
	})

	It("refuses a sealed store without keys", func() {
		ring := seal.NewKeyRing("k")
		path := filepath.Join(tmpDir, "creds.enc")
		Expect(credentials.SaveStore(path, ring, store)).To(Succeed())

		_, err := credentials.LoadStore(path, nil)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no keys are configured"))
	})

	It("errors on a missing file", func() {
		_, err := credentials.LoadStore(filepath.Join(tmpDir, "absent.json"), nil)
		Expect(err).To(HaveOccurred())
	})
})
