package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aravindthiru29/flipbook/internal/source"
	"github.com/aravindthiru29/flipbook/pkg/logger"
)

func resolverTestLogger() *logger.Logger {
	log := logger.New(
		logger.WithOutput(GinkgoWriter),
		logger.WithPrefix("[source-test] "),
		logger.WithFlags(0),
	)
	log.SetVerbose(true)
	return log
}

var _ = Describe("Resolver", func() {
	var (
		workDir  string
		resolver *source.Resolver
		ctx      context.Context
	)

	BeforeEach(func() {
		var err error
		workDir, err = os.MkdirTemp("", "flipbook-source-test-*")
		Expect(err).NotTo(HaveOccurred())

		resolver, err = source.NewResolver(workDir, resolverTestLogger())
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
	})

	AfterEach(func() {
		os.RemoveAll(workDir)
	})

	Context("local locators", func() {
		It("passes an existing path through untouched", func() {
			path := filepath.Join(workDir, "local.pdf")
			Expect(os.WriteFile(path, []byte("%PDF-1.4"), 0644)).To(Succeed())

			resolved, err := resolver.Resolve(ctx, "book-1", path)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved).To(Equal(path))
		})

		It("reports a missing path as unavailable", func() {
			_, err := resolver.Resolve(ctx, "book-1", filepath.Join(workDir, "gone.pdf"))
			Expect(err).To(MatchError(source.ErrUnavailable))
		})
	})

	Context("remote locators", func() {
		var (
			fetches int32
			server  *httptest.Server
		)

		BeforeEach(func() {
			fetches = 0
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&fetches, 1)
				w.Write([]byte("%PDF-1.4 remote body"))
			}))
		})

		AfterEach(func() {
			server.Close()
		})

		It("downloads once and reuses the local copy", func() {
			first, err := resolver.Resolve(ctx, "book-1", server.URL)
			Expect(err).NotTo(HaveOccurred())

			second, err := resolver.Resolve(ctx, "book-1", server.URL)
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(first))
			Expect(atomic.LoadInt32(&fetches)).To(Equal(int32(1)))

			data, err := os.ReadFile(first)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("%PDF-1.4 remote body"))
		})

		It("collapses concurrent first fetches into one download", func() {
			var wg sync.WaitGroup
			paths := make([]string, 8)
			errs := make([]error, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					paths[i], errs[i] = resolver.Resolve(ctx, "book-1", server.URL)
				}(i)
			}
			wg.Wait()

			for i := 0; i < 8; i++ {
				Expect(errs[i]).NotTo(HaveOccurred())
				Expect(paths[i]).To(Equal(paths[0]))
			}
			Expect(atomic.LoadInt32(&fetches)).To(Equal(int32(1)))
		})

		It("keeps separate copies per book id", func() {
			first, err := resolver.Resolve(ctx, "book-1", server.URL)
			Expect(err).NotTo(HaveOccurred())

			second, err := resolver.Resolve(ctx, "book-2", server.URL)
			Expect(err).NotTo(HaveOccurred())

			Expect(second).NotTo(Equal(first))
			Expect(atomic.LoadInt32(&fetches)).To(Equal(int32(2)))
		})

		It("reports a non-success status as unavailable and leaves no file", func() {
			failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "gone", http.StatusNotFound)
			}))
			defer failing.Close()

			_, err := resolver.Resolve(ctx, "book-1", failing.URL)
			Expect(err).To(MatchError(source.ErrUnavailable))

			entries, err := os.ReadDir(workDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("re-downloads after Forget", func() {
			_, err := resolver.Resolve(ctx, "book-1", server.URL)
			Expect(err).NotTo(HaveOccurred())

			resolver.Forget("book-1")

			_, err = resolver.Resolve(ctx, "book-1", server.URL)
			Expect(err).NotTo(HaveOccurred())
			Expect(atomic.LoadInt32(&fetches)).To(Equal(int32(2)))
		})
	})
})
