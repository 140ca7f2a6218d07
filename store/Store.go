package store

import (
	"io"

	"github.com/chzyer/logex"
	"github.com/jonas-koeritz/ramdisk"
	"github.com/klauspost/crc32"
)

// Store owns the fixed-size buffer behind a device. It does no locking of
// its own; the dispatch engine serializes every access.
type Store struct {
	buf   []byte
	size  int64
	alloc Allocator
}

var _ ramdisk.Backend = (*Store)(nil)

// New reserves size bytes through alloc. The buffer is never resized.
func New(size int64, alloc Allocator) (*Store, error) {
	if alloc == nil {
		alloc = DefaultAllocator()
	}
	if size <= 0 {
		return nil, ramdisk.ErrAllocation.Trace("size", size)
	}
	buf, err := alloc.Alloc(size)
	if err != nil {
		return nil, logex.Trace(err)
	}
	if int64(len(buf)) != size {
		if err := alloc.Free(buf); err != nil {
			logex.Error("free short buffer:", err)
		}
		return nil, ramdisk.ErrAllocation.Trace("short buffer", len(buf))
	}
	return &Store{buf: buf, size: size, alloc: alloc}, nil
}

func (s *Store) Size() int64 {
	return s.size
}

func (s *Store) check(off int64, n int) error {
	if s.buf == nil {
		return ramdisk.ErrReleased.Trace()
	}
	if off < 0 || n < 0 || off > s.size || int64(n) > s.size-off {
		return ramdisk.ErrOutOfRange.Trace(off, n)
	}
	return nil
}

func (s *Store) ReadAt(b []byte, off int64) (int, error) {
	if err := s.check(off, len(b)); err != nil {
		return 0, err
	}
	return copy(b, s.buf[off:]), nil
}

func (s *Store) WriteAt(b []byte, off int64) (int, error) {
	if err := s.check(off, len(b)); err != nil {
		return 0, err
	}
	return copy(s.buf[off:], b), nil
}

func (s *Store) Read(off int64, n int) ([]byte, error) {
	if err := s.check(off, n); err != nil {
		return nil, err
	}
	data := make([]byte, n)
	copy(data, s.buf[off:])
	return data, nil
}

func (s *Store) Write(off int64, b []byte) error {
	_, err := s.WriteAt(b, off)
	return err
}

// Checksum is the IEEE CRC-32 of the whole buffer.
func (s *Store) Checksum() uint32 {
	return crc32.ChecksumIEEE(s.buf)
}

func (s *Store) WriteTo(w io.Writer) (int64, error) {
	if s.buf == nil {
		return 0, ramdisk.ErrReleased.Trace()
	}
	n, err := w.Write(s.buf)
	return int64(n), logex.Trace(err)
}

// Release hands the buffer back to its allocator. The store is unusable
// afterwards.
func (s *Store) Release() error {
	if s.buf == nil {
		return ramdisk.ErrReleased.Trace()
	}
	buf := s.buf
	s.buf = nil
	if err := s.alloc.Free(buf); err != nil {
		return logex.Trace(err)
	}
	return nil
}

func (s *Store) Released() bool {
	return s.buf == nil
}
