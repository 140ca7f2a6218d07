//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package store

func DefaultAllocator() Allocator {
	return HeapAllocator{}
}
