package filestore

import "github.com/koustreak/dblens/internal/errs"

// Provider identifies the object storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"

	// ProviderMemory keeps objects in process memory. Useful for local runs
	// and tests; nothing survives a restart.
	ProviderMemory Provider = "memory"
)

// Config holds the settings needed to reach an S3-compatible object store.
type Config struct {
	// Provider is the storage backend. Empty means ProviderMinIO.
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server, e.g. "localhost:9000".
	Endpoint string `yaml:"endpoint"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// Region is used by region-aware backends such as AWS S3.
	Region string `yaml:"region"`

	// Bucket receives archived objects. It is created on first use.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    "dblens-snapshots",
		Prefix:    "monitoring",
	}
}

// Validate checks the fields every provider needs.
func (c *Config) Validate() error {
	switch {
	case c.Provider != "" && c.Provider != ProviderMinIO && c.Provider != ProviderMemory:
		return errs.Invalid("archive.provider", "must be minio or memory")
	case c.Provider != ProviderMemory && c.Endpoint == "":
		return errs.Invalid("archive.endpoint", "is required")
	case c.Bucket == "":
		return errs.Invalid("archive.bucket", "is required")
	}
	return nil
}
