package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cordum/modhost/core/infra/schema"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxArchiveBytes int64 = 20 << 20
	defaultMaxFileCount          = 500
	defaultMaxExtractBytes int64 = 200 << 20
)

// Policy bounds what an uploaded module archive may contain.
type Policy struct {
	MaxArchiveBytes   int64    `yaml:"maxArchiveBytes"`
	MaxFileCount      int      `yaml:"maxFileCount"`
	// MaxExtractBytes caps the total uncompressed size written on install.
	MaxExtractBytes   int64    `yaml:"maxExtractBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	BannedPaths       []string `yaml:"bannedPaths"`
}

// DefaultPolicy returns the built-in archive policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxArchiveBytes: defaultMaxArchiveBytes,
		MaxFileCount:    defaultMaxFileCount,
		MaxExtractBytes: defaultMaxExtractBytes,
		AllowedExtensions: []string{
			".ts", ".tsx", ".js", ".jsx", ".json", ".css", ".scss",
			".md", ".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp",
		},
		BannedPaths: []string{
			"src/App.tsx",
			"src/main.tsx",
			"src/index.tsx",
			"package.json",
			"package-lock.json",
			"tsconfig.json",
			"vite.config.ts",
			".env",
			"node_modules",
			".git",
		},
	}
}

// ParsePolicy parses a policy document from YAML/JSON bytes. Fields left
// unset keep their default values.
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	if len(bytes.TrimSpace(data)) == 0 {
		return policy, nil
	}
	if err := validatePolicySchema(data); err != nil {
		return Policy{}, err
	}
	var raw struct {
		MaxArchiveBytes   *int64    `yaml:"maxArchiveBytes"`
		MaxFileCount      *int      `yaml:"maxFileCount"`
		MaxExtractBytes   *int64    `yaml:"maxExtractBytes"`
		AllowedExtensions *[]string `yaml:"allowedExtensions"`
		BannedPaths       *[]string `yaml:"bannedPaths"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if raw.MaxArchiveBytes != nil {
		policy.MaxArchiveBytes = *raw.MaxArchiveBytes
	}
	if raw.MaxFileCount != nil {
		policy.MaxFileCount = *raw.MaxFileCount
	}
	if raw.MaxExtractBytes != nil {
		policy.MaxExtractBytes = *raw.MaxExtractBytes
	}
	if raw.AllowedExtensions != nil {
		policy.AllowedExtensions = *raw.AllowedExtensions
	}
	if raw.BannedPaths != nil {
		policy.BannedPaths = *raw.BannedPaths
	}
	if policy.MaxArchiveBytes <= 0 || policy.MaxFileCount <= 0 || policy.MaxExtractBytes <= 0 {
		return Policy{}, errors.New("policy limits must be positive")
	}
	return policy, nil
}

// LoadPolicy reads a YAML policy file.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return Policy{}, errors.New("policy path is empty")
	}
	// #nosec G304 -- policy path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return Policy{}, fmt.Errorf("load policy %s: %w", path, err)
	}
	return policy, nil
}

func validatePolicySchema(data []byte) error {
	schemaBytes, err := configSchemaFS.ReadFile(policySchemaFile)
	if err != nil {
		return fmt.Errorf("load policy schema: %w", err)
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	if err := schema.ValidateSchema("policy", schemaBytes, payload); err != nil {
		return fmt.Errorf("validate policy: %w", err)
	}
	return nil
}
