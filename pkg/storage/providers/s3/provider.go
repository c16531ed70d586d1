package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sgl-project/registry/pkg/logging"
	"github.com/sgl-project/registry/pkg/storage"
)

const (
	// Part size used by the streaming uploader; bodies below it go out as a
	// single PutObject.
	defaultPartSize    = 8 * 1024 * 1024
	defaultConcurrency = 4
	maxIdleConns       = 100
)

// S3Provider is a storage.Backend for one bucket of an S3-compatible service.
//
// The SDK retryer is disabled: attempts are retried by the storage queues, and
// a second retry layer underneath would multiply the attempt count.
type S3Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	logger   logging.Interface
}

// NewS3Provider creates a backend for bucket from the s3 section of config.
func NewS3Provider(ctx context.Context, config *storage.Config, bucket string, logger logging.Interface) (*S3Provider, error) {
	if config.Provider != storage.ProviderS3 {
		return nil, fmt.Errorf("invalid provider: expected %s, got %s", storage.ProviderS3, config.Provider)
	}
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	client, err := initializeS3Client(ctx, config.S3)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = defaultPartSize
		u.Concurrency = defaultConcurrency
		u.LeavePartsOnError = false
	})

	logger.WithField("provider", "s3").
		WithField("bucket", bucket).
		WithField("region", config.S3.Region).
		WithField("endpoint", config.S3.Endpoint).
		Debug("S3 storage provider initialized")

	return &S3Provider{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		logger:   logger,
	}, nil
}

// initializeS3Client creates and configures the S3 client
func initializeS3Client(ctx context.Context, cfg storage.S3Config) (*s3.Client, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{
		// A buildable client lets the SDK add the roots from AWS_CA_BUNDLE.
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			tr.MaxIdleConns = maxIdleConns
			tr.MaxIdleConnsPerHost = maxIdleConns
			tr.IdleConnTimeout = 90 * time.Second
		})),
		awsconfig.WithRetryer(func() aws.Retryer {
			return aws.NopRetryer{}
		}),
	}

	if cfg.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
		// S3-compatible services commonly reject the trailing checksums the
		// SDK sends by default.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return client, nil
}

// Provider returns the provider type
func (p *S3Provider) Provider() storage.Provider {
	return storage.ProviderS3
}

// Bucket returns the S3 bucket name
func (p *S3Provider) Bucket() string {
	return p.bucket
}

// Get reads the whole object at key.
func (p *S3Provider) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapError("get", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapError("get", key, err)
	}
	return data, nil
}

// Open streams the object at key from offset.
func (p *S3Provider) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := p.client.GetObject(ctx, input)
	if err != nil {
		return nil, wrapError("open", key, err)
	}
	return out.Body, nil
}

// Put uploads data to key with a single PutObject.
func (p *S3Provider) Put(ctx context.Context, key string, data []byte, opts storage.UploadOptions) error {
	input := p.putInput(key, opts)
	input.Body = bytes.NewReader(data)
	input.ContentLength = aws.Int64(int64(len(data)))

	if _, err := p.client.PutObject(ctx, input); err != nil {
		return wrapError("put", key, err)
	}
	return nil
}

// PutStream uploads r to key through the multipart upload manager.
func (p *S3Provider) PutStream(ctx context.Context, key string, r io.Reader, opts storage.UploadOptions) error {
	input := p.putInput(key, opts)
	input.Body = r

	if _, err := p.uploader.Upload(ctx, input); err != nil {
		return wrapError("put", key, err)
	}
	return nil
}

func (p *S3Provider) putInput(key string, opts storage.UploadOptions) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	}
	if enc := opts.ContentEncoding(); enc != "" {
		input.ContentEncoding = aws.String(enc)
	}
	return input
}

// Delete removes the object at key. S3 answers a delete of a missing key with
// success, so the object is looked up first to report storage.ErrNotFound.
func (p *S3Provider) Delete(ctx context.Context, key string) error {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrapError("delete", key, err)
	}

	_, err = p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrapError("delete", key, err)
	}
	return nil
}

// List returns every object whose key starts with prefix.
func (p *S3Provider) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []storage.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError("list", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, storage.ObjectInfo{
				Name:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         aws.ToString(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}
