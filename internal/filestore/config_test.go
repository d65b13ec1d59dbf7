package filestore

import (
	"testing"

	"github.com/koustreak/dblens/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "dblens-snapshots", cfg.Bucket)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "gcs" }},
		{"memory without bucket", func(c *Config) { c.Provider = ProviderMemory; c.Endpoint = ""; c.Bucket = "" }},
		{"no endpoint", func(c *Config) { c.Endpoint = "" }},
		{"no bucket", func(c *Config) { c.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			tt.mutate(&c)
			assert.True(t, errs.IsValidation(c.Validate()))
		})
	}
}

func TestConfig_ValidateMemory(t *testing.T) {
	cfg := &Config{Provider: ProviderMemory, Bucket: "snapshots"}
	assert.NoError(t, cfg.Validate())
}
