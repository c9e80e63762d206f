package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/clinivox/clinivox/internal/observe"
)

// Resolver turns input references into local file paths, downloading and
// caching S3 objects as needed. It is safe for concurrent use.
type Resolver struct {
	defaultBucket string
	region        string
	cacheDir      string

	clientFor ClientFactory
	metrics   *observe.Metrics

	// clients caches one S3 client per region; buckets outside the
	// configured region are reached through a rebound client.
	mu      sync.Mutex
	clients map[string]Client
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver)

// WithClientFactory replaces the S3 client factory, mainly for tests.
func WithClientFactory(f ClientFactory) Option {
	return func(r *Resolver) { r.clientFor = f }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver. defaultBucket may be empty, in which
// case only full s3://bucket/key URIs and local paths resolve. region
// defaults to [DefaultRegion]; cacheDir defaults to a directory under the
// system temp dir.
func NewResolver(defaultBucket, region, cacheDir string, opts ...Option) (*Resolver, error) {
	if region == "" {
		region = DefaultRegion
	}
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "clinivox-s3")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("source: create cache dir %q: %w", cacheDir, err)
	}

	r := &Resolver{
		defaultBucket: defaultBucket,
		region:        region,
		cacheDir:      cacheDir,
		clientFor:     defaultClientFactory,
		metrics:       observe.DefaultMetrics(),
		clients:       make(map[string]Client),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// CacheDir returns the directory downloaded objects are stored in.
func (r *Resolver) CacheDir() string { return r.cacheDir }

// Resolve returns a local path for the given reference. Local paths that
// exist are returned unchanged; S3 references are verified, downloaded on
// first use, and served from the cache afterwards.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if _, err := os.Stat(ref); err == nil {
		return ref, nil
	}

	loc, err := ParseURI(ref, r.defaultBucket)
	if err != nil {
		return "", err
	}

	// The cache is keyed by the key's basename: consultation recordings
	// carry unique upload names, and re-resolving the same object must
	// not re-download.
	local := filepath.Join(r.cacheDir, filepath.Base(loc.Key))
	if _, err := os.Stat(local); err == nil {
		slog.Debug("using cached download", "uri", loc.String(), "path", local)
		r.metrics.RecordCacheLookup(ctx, observe.CacheHit)
		return local, nil
	}
	r.metrics.RecordCacheLookup(ctx, observe.CacheMiss)

	client, err := r.clientForBucket(ctx, loc.Bucket)
	if err != nil {
		return "", err
	}

	if _, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &loc.Bucket,
		Key:    &loc.Key,
	}); err != nil {
		return "", classify(loc, err)
	}

	if err := r.download(ctx, client, loc, local); err != nil {
		return "", err
	}
	return local, nil
}

// clientForBucket returns an S3 client bound to the bucket's region.
// Buckets in the configured region share the base client; others get a
// client rebound to wherever GetBucketLocation says they live.
func (r *Resolver) clientForBucket(ctx context.Context, bucket string) (Client, error) {
	base, err := r.clientForRegion(ctx, r.region)
	if err != nil {
		return nil, err
	}

	region, err := bucketRegion(ctx, base, bucket)
	if err != nil {
		return nil, classify(Location{Bucket: bucket}, err)
	}
	if region == r.region {
		return base, nil
	}

	slog.Debug("rebinding s3 client", "bucket", bucket, "region", region)
	return r.clientForRegion(ctx, region)
}

// clientForRegion returns the cached client for a region, creating it on
// first use.
func (r *Resolver) clientForRegion(ctx context.Context, region string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[region]; ok {
		return c, nil
	}
	c, err := r.clientFor(ctx, region)
	if err != nil {
		return nil, err
	}
	r.clients[region] = c
	return c, nil
}

// download fetches the object into the cache. It writes to a temp file
// first so a partial download never masquerades as a cached object.
func (r *Resolver) download(ctx context.Context, client Client, loc Location, local string) error {
	tmp, err := os.CreateTemp(r.cacheDir, filepath.Base(loc.Key)+".part-*")
	if err != nil {
		return fmt.Errorf("source: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	dl := manager.NewDownloader(client)
	n, err := dl.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: &loc.Bucket,
		Key:    &loc.Key,
	})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return classify(loc, err)
	}

	if err := os.Rename(tmp.Name(), local); err != nil {
		return fmt.Errorf("source: move download into cache: %w", err)
	}
	slog.Info("downloaded audio", "uri", loc.String(), "path", local, "bytes", n)
	return nil
}
