//go:build linux

package toolrun

import (
	"fmt"

	"github.com/prometheus/procfs"
)

func availableMemoryMB() (uint64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, err
	}
	return meminfoAvailableMB(fs)
}

func meminfoAvailableMB(fs procfs.FS) (uint64, error) {
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("toolrun: read meminfo: %w", err)
	}
	if mi.MemAvailableBytes == nil {
		return 0, fmt.Errorf("toolrun: MemAvailable missing from meminfo")
	}
	return *mi.MemAvailableBytes >> 20, nil
}
