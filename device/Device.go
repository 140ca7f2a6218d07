package device

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/chzyer/logex"
	"github.com/jonas-koeritz/ramdisk"
	"github.com/jonas-koeritz/ramdisk/direct"
	"github.com/jonas-koeritz/ramdisk/queued"
	"github.com/jonas-koeritz/ramdisk/store"
)

// Device is one in-memory disk: a backing store and the dispatch engine
// selected at creation, sharing a single lock.
type Device struct {
	name     string
	strategy ramdisk.Strategy

	lock   sync.Mutex
	store  *store.Store
	engine ramdisk.Engine

	// life is held for reading by every request in flight; Destroy needs
	// it exclusively.
	life   sync.RWMutex
	closed bool

	opened int32
}

func Create(cfg *Config) (*Device, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := cfg.withDefaults()

	s, err := store.New(c.Size, c.Allocator)
	if err != nil {
		logex.Error(c.Name+": allocation failed:", err)
		return nil, logex.Trace(err)
	}

	d := &Device{name: c.Name, strategy: c.Strategy, store: s}
	switch c.Strategy {
	case ramdisk.Queued:
		d.engine = queued.New(s, &d.lock)
	case ramdisk.Direct:
		d.engine = direct.New(s, &d.lock)
	default:
		s.Release()
		return nil, ramdisk.ErrUnsupported.Trace("strategy", c.Strategy)
	}

	logex.Infof("%s: %d sectors, geometry %v, %s dispatch", d.name, d.CapacitySectors(), d.Geometry(), d.strategy)
	return d, nil
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Strategy() ramdisk.Strategy {
	return d.strategy
}

func (d *Device) Size() int64 {
	return d.store.Size()
}

func (d *Device) CapacitySectors() uint64 {
	return ramdisk.CapacitySectors(d.store.Size())
}

func (d *Device) Geometry() ramdisk.Geometry {
	return ramdisk.GeometryFor(d.store.Size())
}

// Open starts a session. Sessions carry no I/O state; the device only
// counts them.
func (d *Device) Open() *Session {
	n := atomic.AddInt32(&d.opened, 1)
	logex.Infof("%s: open, %d sessions", d.name, n)
	return &Session{dev: d}
}

func (d *Device) release() {
	n := atomic.AddInt32(&d.opened, -1)
	logex.Infof("%s: release, %d sessions", d.name, n)
}

func (d *Device) OpenCount() int {
	return int(atomic.LoadInt32(&d.opened))
}

// enter marks a request in flight. Callers must call d.life.RUnlock when
// it returned nil.
func (d *Device) enter() error {
	d.life.RLock()
	if d.closed {
		d.life.RUnlock()
		return ramdisk.ErrClosed.Trace(d.name)
	}
	return nil
}

func (d *Device) submit(req *ramdisk.Request) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.life.RUnlock()
	return d.engine.Submit(req)
}

// submitBatch hands all requests to the engine at once. A queued engine
// services them in one drain.
func (d *Device) submitBatch(reqs []*ramdisk.Request) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.life.RUnlock()

	if e, ok := d.engine.(*queued.Engine); ok {
		return e.SubmitBatch(reqs...)
	}
	var first error
	for _, req := range reqs {
		if err := d.engine.Submit(req); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Checksum is the CRC-32 of the whole device content.
func (d *Device) Checksum() (uint32, error) {
	if err := d.enter(); err != nil {
		return 0, err
	}
	defer d.life.RUnlock()

	d.lock.Lock()
	defer d.lock.Unlock()
	return d.store.Checksum(), nil
}

// WriteTo copies the device image to w.
func (d *Device) WriteTo(w io.Writer) (int64, error) {
	if err := d.enter(); err != nil {
		return 0, err
	}
	defer d.life.RUnlock()

	d.lock.Lock()
	defer d.lock.Unlock()
	return d.store.WriteTo(w)
}

// Destroy releases the backing store. It fails with ErrBusy while any
// request is in flight.
func (d *Device) Destroy() error {
	if !d.life.TryLock() {
		return ramdisk.ErrBusy.Trace(d.name)
	}
	defer d.life.Unlock()
	if d.closed {
		return ramdisk.ErrClosed.Trace(d.name)
	}

	if err := d.engine.Close(); err != nil {
		return logex.Trace(err)
	}
	d.lock.Lock()
	err := d.store.Release()
	d.lock.Unlock()
	if err != nil {
		return logex.Trace(err)
	}
	d.closed = true

	if n := d.OpenCount(); n > 0 {
		logex.Warn(d.name, "destroyed with", n, "open sessions")
	}
	logex.Info(d.name + ": destroyed")
	return nil
}

func (d *Device) String() string {
	g := d.Geometry()
	return fmt.Sprintf("DEVICE:     %s\nCAPACITY:   %d sectors (%d bytes)\nGEOMETRY:   C/H/S %v\nPARTITIONS: %d\nDISPATCH:   %s\n",
		d.name, d.CapacitySectors(), d.Size(), g, ramdisk.Partitions, d.strategy)
}
