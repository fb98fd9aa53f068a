package pixel

import "golang.org/x/sys/unix"

// MemoryGauge answers read-only memory-budget queries used for preload
// window sizing. Inaccuracy or staleness degrades prefetch quality but
// never correctness.
type MemoryGauge interface {
	TotalBytes() uint64
	FreeBytes() uint64
}

// SysinfoGauge reads the kernel's memory counters via sysinfo(2).
type SysinfoGauge struct{}

func (SysinfoGauge) TotalBytes() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0
	}
	return uint64(si.Totalram) * uint64(si.Unit)
}

func (SysinfoGauge) FreeBytes() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0
	}
	return uint64(si.Freeram) * uint64(si.Unit)
}

// FixedGauge answers with constant values. Used in tests and when the
// configuration pins the budget explicitly.
type FixedGauge struct {
	Total uint64
	Free  uint64
}

func (g FixedGauge) TotalBytes() uint64 { return g.Total }
func (g FixedGauge) FreeBytes() uint64  { return g.Free }
