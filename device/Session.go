package device

import (
	"sync/atomic"

	"github.com/jonas-koeritz/ramdisk"
)

// Session is an open handle on a device. Any number of sessions may be used
// concurrently.
type Session struct {
	dev    *Device
	closed int32
}

func (s *Session) Device() *Device {
	return s.dev
}

// Close ends the session. Closing twice has no further effect.
func (s *Session) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.dev.release()
	return nil
}

func (s *Session) check() error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return ramdisk.ErrClosed.Trace("session")
	}
	return nil
}

func (s *Session) Read(sector uint64, length uint32) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	off, err := ramdisk.SectorAddress(sector).Offset()
	if err != nil {
		return nil, err
	}
	if off > s.dev.Size()-int64(length) {
		return nil, ramdisk.ErrOutOfRange.Trace(sector, length)
	}
	buf := make([]byte, length)
	if err := s.dev.submit(ramdisk.NewRequest(ramdisk.Read, sector, buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Session) Write(sector uint64, data []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.dev.submit(ramdisk.NewRequest(ramdisk.Write, sector, data))
}

// SubmitSegments transfers segs as one request over the contiguous range
// starting at sector. Only devices using direct dispatch accept it.
func (s *Session) SubmitSegments(sector uint64, dir ramdisk.Direction, segs []ramdisk.Segment) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.dev.strategy != ramdisk.Direct {
		return ramdisk.ErrUnsupported.Trace("segments on", s.dev.strategy)
	}
	return s.dev.submit(&ramdisk.Request{Dir: dir, Sector: ramdisk.SectorAddress(sector), Segments: segs})
}

// Submit hands a batch of prepared requests to the device in order. Every
// request records its own outcome; the first error is returned.
func (s *Session) Submit(reqs ...*ramdisk.Request) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.dev.submitBatch(reqs)
}
