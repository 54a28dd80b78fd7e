package guda

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// Device represents a compute device. In GUDA, this is the CPU with its
// cores and available memory.
type Device struct {
	ID                 int    // Unique device identifier
	Name               string // Human-readable device name
	TotalMem           uint64 // Total available memory in bytes
	NumCores           int    // Number of CPU cores
	MaxThreads         int    // Maximum concurrent threads
	MaxThreadsPerBlock int
	MaxGridSize        Dim3
	SharedMemPerBlock  int
	WarpSize           int
	Features           string // Detected instruction set extensions
}

var defaultDevice = &Device{
	ID:                 0,
	Name:               "CPU",
	TotalMem:           getSystemMemory(),
	NumCores:           runtime.NumCPU(),
	MaxThreads:         runtime.NumCPU() * 2, // Hyperthreading
	MaxThreadsPerBlock: MaxThreadsPerBlock,
	MaxGridSize:        Dim3{X: MaxGridDimX, Y: MaxGridDimYZ, Z: MaxGridDimYZ},
	SharedMemPerBlock:  MaxSharedMemoryPerBlock,
	WarpSize:           WarpSize,
	Features:           cpuFeatureString(),
}

// GetDevice returns the current device information.
// In GUDA, this always returns the CPU device.
func GetDevice() *Device {
	return defaultDevice
}

// SetDevice sets the active device (no-op for CPU)
func SetDevice(id int) error {
	if id != 0 {
		return ErrInvalidDevice
	}
	return nil
}

// GetDeviceCount returns the number of available devices.
// GUDA always returns 1 as it only supports CPU execution.
func GetDeviceCount() int {
	return 1
}

// GetDeviceProperties returns device properties
func GetDeviceProperties(id int) (*Device, error) {
	if id != 0 {
		return nil, NewInvalidValueError("GetDeviceProperties", fmt.Sprintf("invalid device ID: %d", id))
	}
	return defaultDevice, nil
}

// cpuFeatureString lists the SIMD extensions golang.org/x/sys/cpu detected.
func cpuFeatureString() string {
	var features []string

	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 || cpu.X86.HasSSE42 {
			features = append(features, "SSE4")
		}
		if cpu.X86.HasAVX {
			features = append(features, "AVX")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "AVX2")
		}
		if cpu.X86.HasFMA {
			features = append(features, "FMA")
		}
		if cpu.X86.HasAVX512F {
			features = append(features, "AVX512F")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "NEON")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "FP16")
		}
		if cpu.ARM64.HasSVE {
			features = append(features, "SVE")
		}
	}

	if len(features) == 0 {
		return "none"
	}
	return strings.Join(features, ", ")
}
