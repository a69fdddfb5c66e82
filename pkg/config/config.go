// Package config provides the configuration system for slabpool.
// It defines a single PoolConfig structure covering pool sizing,
// alignment, and observability settings, plus a YAML loader with
// environment-variable substitution.
//
// Example usage:
//
//	cfg := config.NewPoolConfig("frame-buffers")
//	cfg.Sizing.ObjectSize = 4096
//	cfg.Sizing.MaxObjects = 65536
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"github.com/ajitpratap0/slabpool/pkg/slaberrors"
)

// PoolConfig is the configuration for one pool instance.
type PoolConfig struct {
	// Name identifies the pool instance in logs and metrics
	Name string `yaml:"name" json:"name"`

	// Sizing controls capacity and slot layout
	Sizing SizingConfig `yaml:"sizing" json:"sizing"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// SizingConfig contains capacity and layout settings. ObjectsPerChunk
// and MaxObjects must be powers of two; the pool turns index lookups
// into a shift and a mask on that assumption.
type SizingConfig struct {
	// ObjectSize is the usable payload size in bytes
	ObjectSize int `yaml:"object_size" json:"object_size"`
	// ObjectsPerChunk is the slot count of each bulk allocation
	ObjectsPerChunk uint32 `yaml:"objects_per_chunk" json:"objects_per_chunk"`
	// MaxObjects is the hard cap on total slots
	MaxObjects uint32 `yaml:"max_objects" json:"max_objects"`
	// Align pads payloads to 64-byte boundaries
	Align bool `yaml:"align" json:"align"`
	// NoGeneration declares callers never consult generation counters
	NoGeneration bool `yaml:"no_generation" json:"no_generation"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics activates Prometheus collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates bench-phase tracing
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewPoolConfig creates a PoolConfig with defaults sized for a
// medium-traffic pool: 256-byte objects, 64-slot chunks, 4096 cap.
func NewPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name: name,
		Sizing: SizingConfig{
			ObjectSize:      256,
			ObjectsPerChunk: 64,
			MaxObjects:      4096,
			Align:           false,
			NoGeneration:    false,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			EnableTracing: false,
			LogLevel:      "info",
		},
	}
}

// Validate checks required fields and the sizing constraints the pool
// itself will enforce, so misconfiguration surfaces before a pool is
// built.
func (pc *PoolConfig) Validate() error {
	if pc.Name == "" {
		return slaberrors.New(slaberrors.ErrorTypeConfig, "name is required")
	}
	if pc.Sizing.ObjectSize <= 0 {
		return slaberrors.New(slaberrors.ErrorTypeConfig, "object_size must be positive").
			WithDetail("object_size", pc.Sizing.ObjectSize)
	}
	if !isPowerOfTwo(pc.Sizing.ObjectsPerChunk) {
		return slaberrors.New(slaberrors.ErrorTypeConfig, "objects_per_chunk must be a power of two").
			WithDetail("objects_per_chunk", pc.Sizing.ObjectsPerChunk)
	}
	if !isPowerOfTwo(pc.Sizing.MaxObjects) {
		return slaberrors.New(slaberrors.ErrorTypeConfig, "max_objects must be a power of two").
			WithDetail("max_objects", pc.Sizing.MaxObjects)
	}
	if pc.Sizing.MaxObjects < pc.Sizing.ObjectsPerChunk {
		return slaberrors.New(slaberrors.ErrorTypeConfig, "max_objects must be at least objects_per_chunk").
			WithDetail("objects_per_chunk", pc.Sizing.ObjectsPerChunk).
			WithDetail("max_objects", pc.Sizing.MaxObjects)
	}
	return nil
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}
