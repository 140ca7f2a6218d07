package device

import (
	"github.com/jonas-koeritz/ramdisk"
	"github.com/jonas-koeritz/ramdisk/store"
)

type Config struct {
	// Name is used in log lines and as the exported file name.
	Name     string
	Size     int64
	Strategy ramdisk.Strategy

	// Allocator reserves the backing buffer. Nil selects
	// store.DefaultAllocator.
	Allocator store.Allocator
}

func DefaultConfig() *Config {
	return &Config{
		Name:     ramdisk.DefaultName,
		Size:     ramdisk.DefaultSize,
		Strategy: ramdisk.Queued,
	}
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Name == "" {
		cfg.Name = ramdisk.DefaultName
	}
	if cfg.Allocator == nil {
		cfg.Allocator = store.DefaultAllocator()
	}
	return cfg
}
