package storage_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sgl-project/registry/pkg/storage"
	testingPkg "github.com/sgl-project/registry/pkg/testing"
)

var _ = Describe("Bucket", func() {
	var (
		ctx     context.Context
		backend *testingPkg.FakeBackend
		bucket  *storage.Bucket
		opts    storage.BucketOptions
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = testingPkg.NewFakeBackend("registry-docs")
		opts = storage.BucketOptions{Retry: fastRetry()}
	})

	JustBeforeEach(func() {
		bucket = storage.NewBucket(storage.BucketDocs, backend, opts, nil)
		DeferCleanup(bucket.Close)
	})

	It("exposes its name and backend", func() {
		Expect(bucket.Name()).To(Equal("docs"))
		Expect(bucket.Backend()).To(BeIdenticalTo(backend))
	})

	Context("round trip", func() {
		It("downloads what was uploaded", func() {
			Expect(bucket.Upload(ctx, "std/0.1.0/index.json", storage.BytesBody([]byte(`{"a":1}`)), storage.UploadOptions{})).To(Succeed())

			data, found, err := bucket.Download(ctx, "std/0.1.0/index.json")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(string(data)).To(Equal(`{"a":1}`))
		})

		It("reports a missing object as not found without error", func() {
			data, found, err := bucket.Download(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			Expect(data).To(BeNil())

			rc, found, err := bucket.Open(ctx, "missing", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			Expect(rc).To(BeNil())
		})

		It("opens a stream from an offset", func() {
			backend.SetObject("mod.ts", []byte("export const x = 1;"))

			rc, found, err := bucket.Open(ctx, "mod.ts", 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			defer rc.Close()

			rest, err := io.ReadAll(rc)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(rest)).To(Equal("const x = 1;"))
		})

		It("lists objects under a prefix", func() {
			backend.SetObject("a/1", []byte("1"))
			backend.SetObject("a/2", []byte("22"))
			backend.SetObject("b/1", []byte("1"))

			objects, err := bucket.List(ctx, "a/")
			Expect(err).NotTo(HaveOccurred())
			Expect(objects).To(HaveLen(2))
			Expect(objects[1].Name).To(Equal("a/2"))
			Expect(objects[1].Size).To(BeEquivalentTo(2))
		})
	})

	Context("delete", func() {
		It("reports whether the object was already absent", func() {
			backend.SetObject("x", []byte("x"))

			absent, err := bucket.Delete(ctx, "x")
			Expect(err).NotTo(HaveOccurred())
			Expect(absent).To(BeFalse())

			absent, err = bucket.Delete(ctx, "x")
			Expect(err).NotTo(HaveOccurred())
			Expect(absent).To(BeTrue())
		})
	})

	Context("retries", func() {
		It("retries retryable failures of every operation", func() {
			backend.SetObject("x", []byte("x"))
			for _, op := range []string{testingPkg.OpGet, testingPkg.OpOpen, testingPkg.OpList, testingPkg.OpDelete} {
				backend.FailNext(op, testingPkg.StatusErr(op, 503), testingPkg.StatusErr(op, 429))
			}

			_, found, err := bucket.Download(ctx, "x")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())

			rc, _, err := bucket.Open(ctx, "x", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.Close()).To(Succeed())

			_, err = bucket.List(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			_, err = bucket.Delete(ctx, "x")
			Expect(err).NotTo(HaveOccurred())

			for _, op := range []string{testingPkg.OpGet, testingPkg.OpOpen, testingPkg.OpList, testingPkg.OpDelete} {
				Expect(backend.Calls(op)).To(Equal(3), op)
			}
		})

		It("does not retry a client error", func() {
			backend.FailNext(testingPkg.OpGet, testingPkg.StatusErr(testingPkg.OpGet, 403))

			_, _, err := bucket.Download(ctx, "x")
			Expect(err).To(testingPkg.BeStatusError(storage.KindClient))
			Expect(err).NotTo(testingPkg.BeRetryableError())
			Expect(backend.Calls(testingPkg.OpGet)).To(Equal(1))
		})

		It("gives up when every attempt fails", func() {
			for i := 0; i < 10; i++ {
				backend.FailNext(testingPkg.OpList, testingPkg.StatusErr(testingPkg.OpList, 500))
			}

			_, err := bucket.List(ctx, "")
			Expect(err).To(testingPkg.BeRetriesExhaustedError(5))
			Expect(err).To(testingPkg.BeStatusError(storage.KindServer))
		})

		Context("with a short attempt timeout", func() {
			BeforeEach(func() {
				opts.Retry.AttemptTimeout = 20 * time.Millisecond
				var first atomic.Bool
				backend.Hook = func(ctx context.Context, op, path string) error {
					if op == testingPkg.OpGet && first.CompareAndSwap(false, true) {
						<-ctx.Done()
						return ctx.Err()
					}
					return nil
				}
			})

			It("retries an attempt that ran past its deadline", func() {
				backend.SetObject("slow", []byte("eventually"))

				data, found, err := bucket.Download(ctx, "slow")
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(BeTrue())
				Expect(string(data)).To(Equal("eventually"))
				Expect(backend.Calls(testingPkg.OpGet)).To(Equal(2))
			})
		})
	})

	Context("DeleteDirectory", func() {
		BeforeEach(func() {
			opts.DeleteConcurrency = 4
		})

		It("deletes every object under the prefix with bounded concurrency", func() {
			for i := 0; i < 40; i++ {
				backend.SetObject(fmt.Sprintf("std/0.1.0/%02d.ts", i), []byte("x"))
			}
			backend.SetObject("std/0.2.0/mod.ts", []byte("keep"))

			var inFlight, peak atomic.Int32
			backend.Hook = func(ctx context.Context, op, path string) error {
				if op != testingPkg.OpDelete {
					return nil
				}
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				return nil
			}

			n, err := bucket.DeleteDirectory(ctx, "std/0.1.0/")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(40))
			Expect(peak.Load()).To(BeNumerically("<=", 4))
			Expect(peak.Load()).To(BeNumerically(">", 1))

			remaining, err := bucket.List(ctx, "std/")
			Expect(err).NotTo(HaveOccurred())
			Expect(remaining).To(HaveLen(1))
		})

		It("treats objects removed concurrently as deleted", func() {
			backend.SetObject("docs/a", []byte("a"))
			backend.SetObject("docs/b", []byte("b"))

			var once sync.Once
			backend.Hook = func(ctx context.Context, op, path string) error {
				if op == testingPkg.OpDelete {
					once.Do(func() { backend.RemoveObject("docs/b") })
				}
				return nil
			}

			n, err := bucket.DeleteDirectory(ctx, "docs/")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("reports every failed delete", func() {
			backend.SetObject("p/a", []byte("a"))
			backend.SetObject("p/b", []byte("b"))
			backend.SetObject("p/c", []byte("c"))
			backend.FailNext(testingPkg.OpDelete,
				testingPkg.StatusErr(testingPkg.OpDelete, 403),
				testingPkg.StatusErr(testingPkg.OpDelete, 403),
			)

			n, err := bucket.DeleteDirectory(ctx, "p/")
			Expect(n).To(Equal(3))
			Expect(err).To(HaveOccurred())

			merr, ok := err.(*multierror.Error)
			Expect(ok).To(BeTrue())
			Expect(merr.Errors).To(HaveLen(2))
			Expect(err).To(testingPkg.BeStatusError(storage.KindClient))
		})

		It("fails without deleting when the listing fails", func() {
			backend.FailNext(testingPkg.OpList, testingPkg.StatusErr(testingPkg.OpList, 401))

			n, err := bucket.DeleteDirectory(ctx, "p/")
			Expect(n).To(BeZero())
			Expect(err).To(MatchError(ContainSubstring("listing p/")))
			Expect(backend.Calls(testingPkg.OpDelete)).To(BeZero())
		})
	})

	Context("after Close", func() {
		It("rejects new operations", func() {
			bucket.Close()

			_, _, err := bucket.Download(ctx, "x")
			Expect(err).To(MatchError(storage.ErrQueueClosed))
		})
	})
})

// closeCountingBackend counts how many readers returned by Open were closed.
type closeCountingBackend struct {
	*testingPkg.FakeBackend
	closed atomic.Int32
}

func (b *closeCountingBackend) Open(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	rc, err := b.FakeBackend.Open(ctx, path, offset)
	if err != nil {
		return nil, err
	}
	return &countingCloser{ReadCloser: rc, closed: &b.closed}, nil
}

type countingCloser struct {
	io.ReadCloser
	closed *atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return c.ReadCloser.Close()
}

var _ = Describe("Bucket Open", func() {
	var (
		backend *closeCountingBackend
		opts    storage.BucketOptions
		bucket  *storage.Bucket
	)

	BeforeEach(func() {
		backend = &closeCountingBackend{FakeBackend: testingPkg.NewFakeBackend("registry-modules")}
		backend.SetObject("x/mod.ts", []byte("export {};"))
		opts = storage.BucketOptions{Retry: fastRetry()}
	})

	JustBeforeEach(func() {
		bucket = storage.NewBucket(storage.BucketModules, backend, opts, nil)
		DeferCleanup(bucket.Close)
	})

	It("closes a reader opened after the caller gave up", func() {
		release := make(chan struct{})
		backend.Hook = func(ctx context.Context, op, path string) error {
			if op == testingPkg.OpOpen {
				<-release
			}
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		rc, found, err := bucket.Open(ctx, "x/mod.ts", 0)
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(found).To(BeFalse())
		Expect(rc).To(BeNil())

		close(release)
		Eventually(backend.closed.Load).Should(Equal(int32(1)))
	})

	It("does not call the backend for a caller that already gave up", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := bucket.Open(ctx, "x/mod.ts", 0)
		Expect(err).To(MatchError(context.Canceled))
		Consistently(func() int { return backend.Calls(testingPkg.OpOpen) }, 50*time.Millisecond).Should(BeZero())
	})

	Context("with a short attempt timeout", func() {
		BeforeEach(func() {
			opts.Retry.AttemptTimeout = 50 * time.Millisecond
			opts.Retry.MaxAttempts = 1
		})

		It("bounds opening the stream by the attempt timeout", func() {
			backend.Hook = func(ctx context.Context, op, path string) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(2 * time.Second):
					return nil
				}
			}

			start := time.Now()
			_, _, err := bucket.Open(context.Background(), "x/mod.ts", 0)
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
			Expect(err).To(testingPkg.BeRetriesExhaustedError(1))
			Expect(err).To(testingPkg.BeStatusError(storage.KindRequestTimeout))
		})

		It("keeps the stream open past the attempt until it is closed", func() {
			var streamCtx context.Context
			backend.Hook = func(ctx context.Context, op, path string) error {
				streamCtx = ctx
				return nil
			}

			rc, found, err := bucket.Open(context.Background(), "x/mod.ts", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())

			time.Sleep(100 * time.Millisecond)
			Expect(streamCtx.Err()).NotTo(HaveOccurred())
			data, err := io.ReadAll(rc)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("export {};"))

			Expect(rc.Close()).To(Succeed())
			Expect(streamCtx.Err()).To(MatchError(context.Canceled))
			Expect(backend.closed.Load()).To(Equal(int32(1)))
		})
	})
})
