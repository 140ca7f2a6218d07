package queued

import (
	"container/list"
	"sync"

	"github.com/chzyer/logex"
	"github.com/jonas-koeritz/ramdisk"
)

type State int

const (
	Idle State = iota
	Fetch
	Execute
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetch:
		return "fetch"
	case Execute:
		return "execute"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Engine services requests from a FIFO queue. Every Run drains the queue
// completely before returning, one contiguous transfer per request.
type Engine struct {
	lock    sync.Locker
	backend ramdisk.Backend

	queue  *list.List
	state  State
	closed bool

	serviced uint64
	failed   uint64
}

var _ ramdisk.Engine = (*Engine)(nil)

func New(backend ramdisk.Backend, lock sync.Locker) *Engine {
	return &Engine{
		lock:    lock,
		backend: backend,
		queue:   list.New(),
	}
}

func (e *Engine) Strategy() ramdisk.Strategy {
	return ramdisk.Queued
}

// Enqueue appends requests in arrival order without servicing them. A
// request that is not a single contiguous buffer is completed with
// ErrUnsupported and not queued.
func (e *Engine) Enqueue(reqs ...*ramdisk.Request) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.enqueueLocked(reqs)
}

func (e *Engine) enqueueLocked(reqs []*ramdisk.Request) error {
	var first error
	for _, req := range reqs {
		req.Reset()
		var err error
		switch {
		case e.closed:
			err = ramdisk.ErrClosed.Trace()
		case len(req.Segments) != 1:
			err = ramdisk.ErrUnsupported.Trace("segments", len(req.Segments))
		}
		if err != nil {
			req.Complete(err)
			if first == nil {
				first = err
			}
			continue
		}
		e.queue.PushBack(req)
	}
	return first
}

// Run drains the queue and returns the number of requests it completed.
func (e *Engine) Run() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.runLocked()
}

func (e *Engine) runLocked() int {
	var (
		n   int
		req *ramdisk.Request
		err error
	)
	e.state = Fetch
	for {
		switch e.state {
		case Fetch:
			req = e.fetchLocked()
			if req == nil {
				e.state = Idle
				return n
			}
			e.state = Execute
		case Execute:
			err = e.transfer(req)
			e.state = Complete
		case Complete:
			e.serviced++
			if err != nil {
				e.failed++
				logex.Error("queued:", req, err)
			}
			req.Complete(err)
			req, err = nil, nil
			n++
			e.state = Fetch
		}
	}
}

func (e *Engine) fetchLocked() *ramdisk.Request {
	front := e.queue.Front()
	if front == nil {
		return nil
	}
	return e.queue.Remove(front).(*ramdisk.Request)
}

func (e *Engine) transfer(req *ramdisk.Request) error {
	off, _, err := req.Range()
	if err != nil {
		return err
	}
	buf := req.Segments[0].Buf

	var n int
	switch req.Dir {
	case ramdisk.Read:
		n, err = e.backend.ReadAt(buf, off)
	case ramdisk.Write:
		n, err = e.backend.WriteAt(buf, off)
	default:
		return ramdisk.ErrUnsupported.Trace("direction", req.Dir)
	}
	if err != nil {
		return ramdisk.TransferError(err)
	}
	if n != len(buf) {
		return ramdisk.ErrTransfer.Trace("short", n, len(buf))
	}
	return nil
}

// Submit queues req, drains the queue and reports the outcome of req.
func (e *Engine) Submit(req *ramdisk.Request) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.enqueueLocked([]*ramdisk.Request{req}); err != nil {
		return err
	}
	e.runLocked()
	return req.Err()
}

// SubmitBatch queues all requests and drains them in one pass. It returns
// the first error among them; each request keeps its own outcome.
func (e *Engine) SubmitBatch(reqs ...*ramdisk.Request) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	first := e.enqueueLocked(reqs)
	e.runLocked()
	if first != nil {
		return first
	}
	for _, req := range reqs {
		if req.Err() != nil {
			return req.Err()
		}
	}
	return nil
}

func (e *Engine) Pending() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.queue.Len()
}

func (e *Engine) State() State {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.state
}

// Stats returns the number of requests serviced and how many of them failed.
func (e *Engine) Stats() (serviced, failed uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.serviced, e.failed
}

func (e *Engine) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.queue.Len() > 0 {
		return ramdisk.ErrBusy.Trace("pending", e.queue.Len())
	}
	e.closed = true
	return nil
}
