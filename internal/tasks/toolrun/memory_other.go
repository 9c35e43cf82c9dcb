//go:build !linux

package toolrun

func availableMemoryMB() (uint64, error) {
	return 0, errMemoryUnsupported
}
