package storage

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ConfigKey is the root configuration key (in Viper) for this package.
var ConfigKey = "storage"

// Logical bucket names.
const (
	BucketPublishing = "publishing"
	BucketModules    = "modules"
	BucketDocs       = "docs"
	BucketNpm        = "npm"
)

// BucketNames lists the logical buckets in a stable order.
var BucketNames = []string{BucketPublishing, BucketModules, BucketDocs, BucketNpm}

// Config holds the configuration of the storage layer.
type Config struct {
	// Provider selects the backend implementation for every bucket.
	Provider Provider `mapstructure:"provider" validate:"required,oneof=gcs s3 local"`

	// Buckets maps each logical bucket to its provider-side bucket name.
	Buckets BucketsConfig `mapstructure:"buckets"`

	// DeleteConcurrency bounds the parallel deletes of a directory delete.
	DeleteConcurrency int `mapstructure:"delete_concurrency" validate:"gte=0"`

	// StreamChunkSize is the read size used when forwarding upload streams.
	StreamChunkSize int `mapstructure:"stream_chunk_size" validate:"gte=0"`

	Retry RetryConfig `mapstructure:"retry"`

	GCS   GCSConfig   `mapstructure:"gcs"`
	S3    S3Config    `mapstructure:"s3"`
	Local LocalConfig `mapstructure:"local"`
}

// BucketsConfig names the provider-side bucket of each logical bucket.
type BucketsConfig struct {
	Publishing string `mapstructure:"publishing" validate:"required"`
	Modules    string `mapstructure:"modules" validate:"required"`
	Docs       string `mapstructure:"docs" validate:"required"`
	Npm        string `mapstructure:"npm" validate:"required"`
}

// Name returns the provider-side name of the logical bucket.
func (c BucketsConfig) Name(logical string) (string, error) {
	switch logical {
	case BucketPublishing:
		return c.Publishing, nil
	case BucketModules:
		return c.Modules, nil
	case BucketDocs:
		return c.Docs, nil
	case BucketNpm:
		return c.Npm, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBucket, logical)
	}
}

// GCSConfig configures the GCS-compatible backend.
type GCSConfig struct {
	// Endpoint overrides the JSON API endpoint, e.g. for an emulator.
	Endpoint string `mapstructure:"endpoint"`
	// CredentialsFile is a service account key file; application default
	// credentials are used when empty.
	CredentialsFile string `mapstructure:"credentials_file"`
	// WithoutAuthentication disables credentials, for emulators.
	WithoutAuthentication bool `mapstructure:"without_authentication"`
}

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	// Static credentials; the AWS default credential chain is used when empty.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`
	SessionToken    string `mapstructure:"session_token"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// LocalConfig configures the filesystem backend.
type LocalConfig struct {
	// Root directory holding one sub-directory per bucket.
	Root string `mapstructure:"root"`
	// InMemory keeps objects in memory instead of on disk.
	InMemory bool `mapstructure:"in_memory"`
}

// Option is a configuration option for storage.
type Option func(*Config) error

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DeleteConcurrency: DefaultDeleteConcurrency,
		StreamChunkSize:   DefaultStreamChunkSize,
		Retry:             DefaultRetryConfig(),
	}
}

// WithViper applies the configuration found under ConfigKey.
func WithViper(v *viper.Viper) Option {
	return func(c *Config) error {
		if v == nil {
			return fmt.Errorf("%w: nil Viper", ErrInvalidConfig)
		}
		if !v.IsSet(ConfigKey) {
			return nil
		}
		return v.UnmarshalKey(ConfigKey, c)
	}
}

// Apply takes the supplied options and applies them to the configuration.
func (c *Config) Apply(opts ...Option) error {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(c); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig builds a configuration from defaults and the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate ensures the storage Config is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Provider == ProviderLocal && c.Local.Root == "" && !c.Local.InMemory {
		return fmt.Errorf("%w: local provider needs a root directory or in_memory", ErrInvalidConfig)
	}
	return c.Retry.Validate()
}
