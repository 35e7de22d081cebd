//go:build windows

package handler

import "golang.org/x/sys/windows"

// getDiskStats returns disk usage for the volume holding path.
func getDiskStats(path string) (total, free, used int64, usedPct float64) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFreeBytes); err != nil {
		return
	}

	total = int64(totalBytes)
	free = int64(freeBytes)
	used = total - int64(totalFreeBytes)
	if total > 0 {
		usedPct = float64(used) / float64(total) * 100
	}
	return
}
