package direct

import (
	"sync"

	"github.com/chzyer/logex"
	"github.com/jonas-koeritz/ramdisk"
)

// Engine executes every request inline, walking its segments in order
// against one running device offset. Nothing is queued.
type Engine struct {
	lock    sync.Locker
	backend ramdisk.Backend
	closed  bool

	submitted uint64
	segments  uint64
}

var _ ramdisk.Engine = (*Engine)(nil)

func New(backend ramdisk.Backend, lock sync.Locker) *Engine {
	return &Engine{lock: lock, backend: backend}
}

func (e *Engine) Strategy() ramdisk.Strategy {
	return ramdisk.Direct
}

// Submit transfers all segments of req while holding the lock and completes
// it before returning. The whole range is checked before the first
// segment, so an out of range request leaves the backend untouched. A
// failing segment aborts the remaining ones.
func (e *Engine) Submit(req *ramdisk.Request) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	req.Reset()
	err := e.submitLocked(req)
	if err != nil {
		logex.Error("direct:", req, err)
	}
	req.Complete(err)
	return err
}

func (e *Engine) submitLocked(req *ramdisk.Request) error {
	if e.closed {
		return ramdisk.ErrClosed.Trace()
	}
	e.submitted++

	off, end, err := req.Range()
	if err != nil {
		return err
	}
	if end > e.backend.Size() {
		return ramdisk.ErrOutOfRange.Trace(off, end)
	}

	for i, seg := range req.Segments {
		var n int
		switch req.Dir {
		case ramdisk.Read:
			n, err = e.backend.ReadAt(seg.Buf, off)
		case ramdisk.Write:
			n, err = e.backend.WriteAt(seg.Buf, off)
		default:
			return ramdisk.ErrUnsupported.Trace("direction", req.Dir)
		}
		if err != nil {
			return ramdisk.TransferError(err)
		}
		if n != len(seg.Buf) {
			return ramdisk.ErrTransfer.Trace("segment", i, "short", n)
		}
		e.segments++
		off += int64(n)
	}
	return nil
}

// Stats returns the number of requests submitted and segments transferred.
func (e *Engine) Stats() (submitted, segments uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.submitted, e.segments
}

func (e *Engine) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.closed = true
	return nil
}
