package engine

import (
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// DefaultWorkers is the number of physical cores, falling back to the logical
// CPU count when the processor does not report it.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if pc := cpuid.CPU.PhysicalCores; pc > 0 && pc < n {
		n = pc
	}
	if n < 1 {
		n = 1
	}
	return n
}

// DefaultQueueDepth sizes the reader -> pool channel. Hosts with little
// memory get a short queue so in-flight fragments stay small.
func DefaultQueueDepth() int {
	const gib = 1 << 30
	switch total := memory.TotalMemory(); {
	case total == 0:
		return 256
	case total < 2*gib:
		return 32
	case total < 8*gib:
		return 128
	default:
		return 512
	}
}
