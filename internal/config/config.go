// Package config loads runtime tuning from an optional HCL file.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config tunes cache sizing and the preload budget. Every field has a
// working default; a config file only overrides.
type Config struct {
	// CacheEntries bounds the pixel cache (decoded frames retained).
	CacheEntries int `hcl:"cache_entries,optional"`

	// BudgetDivisor sets the whole-series prefetch threshold: a series
	// is loaded in full when its estimated size fits total/BudgetDivisor.
	BudgetDivisor int64 `hcl:"budget_divisor,optional"`

	// TotalBytes and FreeBytes, when non-zero, pin the memory gauge
	// instead of reading the host. Useful for containers with limits the
	// host gauge cannot see.
	TotalBytes uint64 `hcl:"total_bytes,optional"`
	FreeBytes  uint64 `hcl:"free_bytes,optional"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CacheEntries:  2048,
		BudgetDivisor: 3,
	}
}

// Load reads path over the defaults. An empty path or a missing file
// yields the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = Default().CacheEntries
	}
	if cfg.BudgetDivisor <= 0 {
		cfg.BudgetDivisor = Default().BudgetDivisor
	}
	return cfg, nil
}
