package config

import (
	"fmt"
	"strings"
)

// validCompressions are the parquet codecs the lake writer supports.
var validCompressions = map[string]bool{
	"snappy":       true,
	"zstd":         true,
	"gzip":         true,
	"uncompressed": true,
}

// IsRemoteRoot reports whether root is an object-storage URI. s3a:// is
// accepted as an alias of s3:// for compatibility with Hadoop-style paths.
func IsRemoteRoot(root string) bool {
	return strings.HasPrefix(root, "s3://") || strings.HasPrefix(root, "s3a://")
}

// Validate checks the configuration at load time, so a misconfigured
// root is a startup error rather than a runtime surprise.
func (c *Config) Validate() error {
	if c.InputRoot == "" {
		return fmt.Errorf("input_root is required (set it in sparkify.yaml or via --input-root)")
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("output_root is required (set it in sparkify.yaml or via --output-root)")
	}
	if c.InputRoot == c.OutputRoot {
		return fmt.Errorf("input_root and output_root must differ (both are %s)", c.InputRoot)
	}
	if err := validateRoot("input_root", c.InputRoot); err != nil {
		return err
	}
	if err := validateRoot("output_root", c.OutputRoot); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if !validCompressions[c.Compression] {
		return fmt.Errorf("unknown compression %q (supported: snappy, zstd, gzip, uncompressed)", c.Compression)
	}
	return nil
}

func validateRoot(name, root string) error {
	if !IsRemoteRoot(root) {
		if strings.Contains(root, "://") {
			return fmt.Errorf("%s has unsupported scheme in %q (use a local path or s3://)", name, root)
		}
		return nil
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(root, "s3a://"), "s3://")
	if rest == "" || strings.HasPrefix(rest, "/") {
		return fmt.Errorf("%s %q is missing a bucket name", name, root)
	}
	return nil
}
