package direct

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/chzyer/test"
	"github.com/jonas-koeritz/ramdisk"
	"github.com/jonas-koeritz/ramdisk/store"
)

type faultyBackend struct {
	*store.Store
	bad map[int64]bool
}

var errMedia = errors.New("media error")

func (f *faultyBackend) WriteAt(b []byte, off int64) (int, error) {
	if f.bad[off] {
		return 0, errMedia
	}
	return f.Store.WriteAt(b, off)
}

func newEngine(t *testing.T) (*Engine, *store.Store) {
	s, err := store.New(ramdisk.DefaultSize, store.HeapAllocator{})
	test.Nil(err)
	return New(s, new(sync.Mutex)), s
}

func TestDirectTwoSegments(t *testing.T) {
	defer test.New(t)

	e, s := newEngine(t)
	defer s.Release()
	test.Equal(e.Strategy(), ramdisk.Direct)

	first := bytes.Repeat([]byte{0x5A}, 300)
	second := bytes.Repeat([]byte{0xC3}, 212)
	req := ramdisk.NewRequest(ramdisk.Write, 5, first, second)
	test.Nil(e.Submit(req))
	test.True(req.Done())

	got, err := s.Read(5*ramdisk.SectorSize, 512)
	test.Nil(err)
	test.EqualBytes(got, append(append([]byte{}, first...), second...))

	// neighbours stay untouched
	edge, err := s.Read(5*ramdisk.SectorSize-1, 1)
	test.Nil(err)
	test.EqualBytes(edge, []byte{0})
	edge, err = s.Read(6*ramdisk.SectorSize, 1)
	test.Nil(err)
	test.EqualBytes(edge, []byte{0})

	submitted, segments := e.Stats()
	test.Equals(submitted, uint64(1), segments, uint64(2))
}

func TestDirectScatterRead(t *testing.T) {
	defer test.New(t)

	e, s := newEngine(t)
	defer s.Release()

	data := test.SeqBytes(3 * ramdisk.SectorSize)
	test.Nil(s.Write(40*ramdisk.SectorSize, data))

	a, b, c := make([]byte, 100), make([]byte, 1000), make([]byte, 436)
	test.Nil(e.Submit(ramdisk.NewRequest(ramdisk.Read, 40, a, b, c)))
	test.EqualBytes(a, data[:100])
	test.EqualBytes(b, data[100:1100])
	test.EqualBytes(c, data[1100:])
}

func TestDirectOutOfRangeTouchesNothing(t *testing.T) {
	defer test.New(t)

	e, s := newEngine(t)
	defer s.Release()
	before := s.Checksum()

	req := ramdisk.NewRequest(ramdisk.Write, 4095,
		bytes.Repeat([]byte{1}, ramdisk.SectorSize),
		bytes.Repeat([]byte{2}, ramdisk.SectorSize))
	test.Equal(e.Submit(req), ramdisk.ErrOutOfRange)
	test.Equal(req.Err(), ramdisk.ErrOutOfRange)
	test.Equal(s.Checksum(), before)

	test.Equal(e.Submit(ramdisk.NewRequest(ramdisk.Write, 4090, make([]byte, 4096))), ramdisk.ErrOutOfRange)
	test.Equal(s.Checksum(), before)
}

func TestDirectSegmentErrorAborts(t *testing.T) {
	defer test.New(t)

	s, err := store.New(ramdisk.DefaultSize, store.HeapAllocator{})
	test.Nil(err)
	defer s.Release()
	e := New(&faultyBackend{Store: s, bad: map[int64]bool{ramdisk.SectorSize + 256: true}}, new(sync.Mutex))

	req := ramdisk.NewRequest(ramdisk.Write, 1,
		bytes.Repeat([]byte{0x11}, 256),
		bytes.Repeat([]byte{0x22}, 256),
		bytes.Repeat([]byte{0x33}, 256))
	test.Equal(e.Submit(req), ramdisk.ErrTransfer)
	test.Equal(req.Err(), ramdisk.ErrTransfer)

	got, err := s.Read(ramdisk.SectorSize, 768)
	test.Nil(err)
	test.EqualBytes(got[:256], bytes.Repeat([]byte{0x11}, 256))
	test.EqualBytes(got[256:], make([]byte, 512))

	_, segments := e.Stats()
	test.Equal(segments, uint64(1))
}

func TestDirectClose(t *testing.T) {
	defer test.New(t)

	e, s := newEngine(t)
	defer s.Release()

	test.Nil(e.Close())
	req := ramdisk.NewRequest(ramdisk.Read, 0, make([]byte, 1))
	test.Equal(e.Submit(req), ramdisk.ErrClosed)
	test.True(req.Done())
}

func TestDirectConcurrentOverlapNeverInterleaves(t *testing.T) {
	defer test.New(t)

	e, s := newEngine(t)
	defer s.Release()

	const size = 8 * ramdisk.SectorSize
	var wg sync.WaitGroup
	for _, fill := range []byte{0x01, 0x02, 0x03, 0x04} {
		wg.Add(1)
		go func(fill byte) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				half := bytes.Repeat([]byte{fill}, size/2)
				if err := e.Submit(ramdisk.NewRequest(ramdisk.Write, 7, half, half)); err != nil {
					panic(err)
				}
			}
		}(fill)
	}
	wg.Wait()

	got, err := s.Read(7*ramdisk.SectorSize, size)
	test.Nil(err)
	test.EqualBytes(got, bytes.Repeat(got[:1], size))
}
