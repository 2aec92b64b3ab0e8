// capabilities.go resolves the device capability profile once at startup.
// Components read their caps from here instead of branching on platform
// conditions inline.
package conf

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/mem"
)

// Capabilities is the resolved device capability profile. All
// platform-dependent caps live here so the rest of the core stays free of
// per-platform conditionals.
type Capabilities struct {
	Constrained   bool   // true on low-core or low-memory devices
	LogicalCores  int    // detected logical CPU count
	TotalMemoryMB uint64 // detected total system memory

	ViewportCap      int // maximum markers delivered to the map
	PreloadMaxHome   int // prediction cap for the home screen
	PreloadMaxOther  int // prediction cap for explore/map/search screens
	MaxURLsPerPlace  int // image URLs extracted per place when queueing
	HighPriorityHead int // queue positions assigned the high tier
	MediumPriorityN  int // queue positions assigned the medium tier
}

const (
	constrainedCoreLimit = 4
	constrainedMemoryMB  = 4096
)

// ResolveCapabilities detects the host profile and returns the capability
// set. Detection failures fall back to the unconstrained profile.
func ResolveCapabilities() Capabilities {
	cores := cpuid.CPU.LogicalCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}

	var totalMB uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMB = vm.Total / (1024 * 1024)
	}

	constrained := cores <= constrainedCoreLimit ||
		(totalMB > 0 && totalMB < constrainedMemoryMB)

	caps := Capabilities{
		Constrained:      constrained,
		LogicalCores:     cores,
		TotalMemoryMB:    totalMB,
		ViewportCap:      120,
		PreloadMaxHome:   30,
		PreloadMaxOther:  20,
		MaxURLsPerPlace:  3,
		HighPriorityHead: 5,
		MediumPriorityN:  10,
	}
	if constrained {
		caps.ViewportCap = 60
		caps.PreloadMaxHome = 15
		caps.PreloadMaxOther = 10
	}
	return caps
}
