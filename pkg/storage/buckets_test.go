package storage_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/sgl-project/registry/pkg/logging"
	"github.com/sgl-project/registry/pkg/storage"
	testingPkg "github.com/sgl-project/registry/pkg/testing"
)

// closableBackend counts how often the bucket closed its backend.
type closableBackend struct {
	*testingPkg.FakeBackend
	closed *atomic.Int32
}

func (c closableBackend) Close() error {
	c.closed.Add(1)
	return nil
}

func testConfig() *storage.Config {
	config := storage.DefaultConfig()
	config.Provider = storage.ProviderGCS
	config.Buckets = storage.BucketsConfig{
		Publishing: "registry-publishing",
		Modules:    "registry-modules",
		Docs:       "registry-docs",
		Npm:        "registry-npm",
	}
	config.Retry = fastRetry()
	return config
}

var _ = Describe("Buckets", func() {
	var (
		ctx      context.Context
		registry *storage.Registry
		created  map[string]*testingPkg.FakeBackend
		closed   atomic.Int32
		failOn   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = storage.NewRegistry()
		created = map[string]*testingPkg.FakeBackend{}
		closed.Store(0)
		failOn = ""

		Expect(registry.Register(storage.ProviderGCS, func(ctx context.Context, config *storage.Config, bucket string, logger logging.Interface) (storage.Backend, error) {
			if bucket == failOn {
				return nil, errors.New("no credentials")
			}
			fake := testingPkg.NewFakeBackend(bucket)
			created[bucket] = fake
			return closableBackend{FakeBackend: fake, closed: &closed}, nil
		})).To(Succeed())
	})

	It("creates one bucket per logical name on its provider-side bucket", func() {
		buckets, err := storage.NewBuckets(ctx, testConfig(), registry, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		defer buckets.Close()

		Expect(created).To(HaveLen(4))
		Expect(buckets.All()).To(HaveLen(4))
		Expect(buckets.Npm.Name()).To(Equal("npm"))
		Expect(buckets.Npm.Backend().Bucket()).To(Equal("registry-npm"))

		for _, name := range storage.BucketNames {
			bucket, err := buckets.Get(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(bucket.Name()).To(Equal(name))
		}
	})

	It("keeps buckets isolated from each other", func() {
		buckets, err := storage.NewBuckets(ctx, testConfig(), registry, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		defer buckets.Close()

		Expect(buckets.Modules.Upload(ctx, "x/mod.ts", storage.BytesBody([]byte("m")), storage.UploadOptions{})).To(Succeed())

		_, found, err := buckets.Docs.Download(ctx, "x/mod.ts")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())

		_, ok := created["registry-modules"].Object("x/mod.ts")
		Expect(ok).To(BeTrue())
	})

	It("rejects an unknown bucket name", func() {
		buckets, err := storage.NewBuckets(ctx, testConfig(), registry, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		defer buckets.Close()

		_, err = buckets.Get("apiland")
		Expect(err).To(MatchError(storage.ErrUnknownBucket))
	})

	It("closes every backend on Close", func() {
		buckets, err := storage.NewBuckets(ctx, testConfig(), registry, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		buckets.Close()
		Expect(closed.Load()).To(BeEquivalentTo(4))
	})

	It("closes the buckets already created when one backend fails", func() {
		failOn = "registry-docs"

		_, err := storage.NewBuckets(ctx, testConfig(), registry, nil, nil)
		Expect(err).To(MatchError(ContainSubstring("bucket docs")))
		Expect(closed.Load()).To(BeEquivalentTo(2))
	})

	It("refuses an invalid configuration", func() {
		config := testConfig()
		config.Buckets.Docs = ""

		_, err := storage.NewBuckets(ctx, config, registry, nil, nil)
		Expect(err).To(MatchError(storage.ErrInvalidConfig))
		Expect(created).To(BeEmpty())
	})

	It("fails for a provider nobody registered", func() {
		config := testConfig()
		config.Provider = storage.ProviderS3

		_, err := storage.NewBuckets(ctx, config, registry, storage.NewMetrics(prometheus.NewRegistry()), nil)
		Expect(err).To(MatchError(ContainSubstring("unsupported storage provider")))
	})
})

const fxConfigYAML = `
storage:
  provider: local
  buckets:
    publishing: publishing
    modules: modules
    docs: docs
    npm: npm
  local:
    in_memory: true
`

func TestModule(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(fxConfigYAML)))

	registry := storage.NewRegistry()
	backends := map[string]*testingPkg.FakeBackend{}
	require.NoError(t, registry.Register(storage.ProviderLocal, func(ctx context.Context, config *storage.Config, bucket string, logger logging.Interface) (storage.Backend, error) {
		backends[bucket] = testingPkg.NewFakeBackend(bucket)
		return backends[bucket], nil
	}))

	var buckets *storage.Buckets
	app := fxtest.New(t,
		fx.Supply(v, registry),
		fx.Provide(func() logging.Interface { return logging.NewNopLogger() }),
		storage.Module,
		fx.Populate(&buckets),
	)
	app.RequireStart()

	require.NotNil(t, buckets)
	require.NoError(t, buckets.Publishing.Upload(context.Background(), "a", storage.BytesBody([]byte("a")), storage.UploadOptions{}))
	_, ok := backends["publishing"].Object("a")
	assert.True(t, ok)

	app.RequireStop()

	_, _, err := buckets.Publishing.Download(context.Background(), "a")
	assert.ErrorIs(t, err, storage.ErrQueueClosed)
}
