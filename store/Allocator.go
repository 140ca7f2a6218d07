package store

import (
	"github.com/jonas-koeritz/ramdisk"
)

type Allocator interface {
	Alloc(size int64) ([]byte, error)
	Free(buf []byte) error
}

// HeapAllocator reserves buffers on the Go heap. A non-zero Limit caps the
// size of a single reservation.
type HeapAllocator struct {
	Limit int64
}

func (h HeapAllocator) Alloc(size int64) ([]byte, error) {
	if size <= 0 || (h.Limit > 0 && size > h.Limit) || int64(int(size)) != size {
		return nil, ramdisk.ErrAllocation.Trace("heap", size)
	}
	return make([]byte, size), nil
}

func (h HeapAllocator) Free(buf []byte) error {
	return nil
}
