package storage

import (
	"net/url"
	"strings"

	"github.com/featurebasedb/lakeingest/errors"
)

// Backends selectable through Config.URL.
const (
	BackendMemory = "memory"
	BackendLocal  = "file"
	BackendS3     = "s3"
)

const ErrInvalidURL errors.Code = "InvalidStorageURL"

// DefaultURL is used when no storage URL is configured.
const DefaultURL = "file:./lakeingest-data"

// Config represents the configuration of the object store the data files are
// written to.
type Config struct {
	// URL selects the backend: "memory:", "file:/some/dir" (or a bare
	// path), or "s3://bucket".
	URL string `toml:"url"`

	// S3 options; ignored by the other backends.
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	ForcePathStyle bool   `toml:"force-path-style"`
}

// NewDefaultConfig returns a new Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		URL: DefaultURL,
	}
}

// Backend parses c.URL and returns the backend name and its location: a
// directory for BackendLocal, a bucket for BackendS3.
func (c *Config) Backend() (backend, location string, err error) {
	raw := strings.TrimSpace(c.URL)
	switch {
	case raw == "":
		return "", "", errors.New(ErrInvalidURL, "empty storage url")
	case raw == "memory:" || raw == "memory":
		return BackendMemory, "", nil
	case strings.HasPrefix(raw, "file:"):
		dir := strings.TrimPrefix(strings.TrimPrefix(raw, "file:"), "//")
		if dir == "" {
			return "", "", errors.New(ErrInvalidURL, "file storage url needs a directory: "+raw)
		}
		return BackendLocal, dir, nil
	case strings.HasPrefix(raw, "s3://"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", errors.New(ErrInvalidURL, "parsing s3 url: "+err.Error())
		}
		if u.Host == "" {
			return "", "", errors.New(ErrInvalidURL, "s3 url needs a bucket: "+raw)
		}
		return BackendS3, u.Host, nil
	case !strings.Contains(raw, "://"):
		return BackendLocal, raw, nil
	}
	return "", "", errors.New(ErrInvalidURL, "unsupported storage url: "+raw)
}
