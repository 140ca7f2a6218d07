//go:build linux || darwin || freebsd || netbsd || openbsd

package store

import (
	"github.com/chzyer/logex"
	"github.com/jonas-koeritz/ramdisk"
	"golang.org/x/sys/unix"
)

// MmapAllocator reserves anonymous private mappings outside the Go heap.
type MmapAllocator struct{}

func (MmapAllocator) Alloc(size int64) ([]byte, error) {
	if size <= 0 || int64(int(size)) != size {
		return nil, ramdisk.ErrAllocation.Trace("mmap", size)
	}
	buf, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, ramdisk.ErrAllocation.Trace("mmap", size, err)
	}
	return buf, nil
}

func (MmapAllocator) Free(buf []byte) error {
	return logex.Trace(unix.Munmap(buf))
}

func DefaultAllocator() Allocator {
	return MmapAllocator{}
}
