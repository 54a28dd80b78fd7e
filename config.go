// Package guda configuration constants
package guda

import (
	"go.uber.org/zap"
)

// Thread and block dimensions
const (
	// Default block size for kernels
	DefaultBlockSize = 256

	// Maximum threads per block (CUDA compatibility)
	MaxThreadsPerBlock = 1024

	// Maximum dynamic shared memory per block in bytes
	MaxSharedMemoryPerBlock = 64 * 1024

	// Warp width reported in device properties
	WarpSize = 32

	// Grid dimension limits (CUDA compatibility)
	MaxGridDimX  = 1<<31 - 1
	MaxGridDimYZ = 65535
)

// Memory pool parameters
const (
	// Minimum allocation size to prevent fragmentation
	MinAllocationSize = 64

	// Memory alignment for allocations
	MemoryAlignment = 64
)

// Config controls the behavior of a Context.
type Config struct {
	// Upper bound on blockDim.Size() accepted by launches.
	MaxThreadsPerBlock int

	// Upper bound on the dynamic shared memory of one launch, in bytes.
	MaxSharedMemoryPerBlock int

	// LegacyStreamSync orders the default stream against blocking streams.
	LegacyStreamSync bool

	// SerializeTasks makes unparallelized tasks take the kernel lock, so
	// they never overlap a kernel's execution window.
	SerializeTasks bool

	Logger *zap.Logger
}

// DefaultConfig returns the configuration used by the default context.
func DefaultConfig() Config {
	return Config{
		MaxThreadsPerBlock:      MaxThreadsPerBlock,
		MaxSharedMemoryPerBlock: MaxSharedMemoryPerBlock,
		LegacyStreamSync:        true,
		SerializeTasks:          false,
	}
}

// Option configures a Context.
type Option func(*Config)

// WithLogger sets the logger used by the context. A nil logger falls back
// to the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMaxThreadsPerBlock overrides the block size limit.
func WithMaxThreadsPerBlock(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxThreadsPerBlock = n
		}
	}
}

// WithMaxSharedMemory overrides the dynamic shared memory limit.
func WithMaxSharedMemory(bytes int) Option {
	return func(c *Config) {
		if bytes >= 0 {
			c.MaxSharedMemoryPerBlock = bytes
		}
	}
}

// WithLegacyStreamSync enables or disables the implicit ordering between
// the default stream and blocking streams.
func WithLegacyStreamSync(enabled bool) Option {
	return func(c *Config) {
		c.LegacyStreamSync = enabled
	}
}

// WithSerializedTasks makes unparallelized tasks exclusive with kernels.
func WithSerializedTasks(enabled bool) Option {
	return func(c *Config) {
		c.SerializeTasks = enabled
	}
}
