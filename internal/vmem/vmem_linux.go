//go:build linux

package vmem

import "golang.org/x/sys/unix"

// hasAvailablePhysical guards Commit against backing more memory than the
// OS currently has free, matching VirtualMemory::Commit's
// check(Memory::GetMemoryStatus().availPhys >= size_) in the original
// source.
func hasAvailablePhysical(size uintptr) bool {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return true
	}
	return uint64(info.Freeram)*uint64(info.Unit) >= uint64(size)
}
