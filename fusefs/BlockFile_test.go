package fusefs

import (
	"bytes"
	"context"
	"math"
	"syscall"
	"testing"

	"github.com/chzyer/test"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/jonas-koeritz/ramdisk"
	"github.com/jonas-koeritz/ramdisk/device"
	"github.com/jonas-koeritz/ramdisk/store"
	"golang.org/x/sync/errgroup"
)

const noErr = syscall.Errno(0)

func newRoot(strategy ramdisk.Strategy) (*Root, *device.Device) {
	dev, err := device.Create(&device.Config{
		Size:      ramdisk.DefaultSize,
		Strategy:  strategy,
		Allocator: store.HeapAllocator{},
	})
	test.Nil(err)
	return New(dev), dev
}

func read(f *BlockFile, off int64, n int) ([]byte, syscall.Errno) {
	res, errno := f.Read(context.Background(), nil, make([]byte, n), off)
	if errno != 0 {
		return nil, errno
	}
	data, _ := res.Bytes(make([]byte, res.Size()))
	return data, 0
}

func write(f *BlockFile, off int64, data []byte) syscall.Errno {
	n, errno := f.Write(context.Background(), nil, data, off)
	if errno == 0 && int(n) != len(data) {
		return syscall.EIO
	}
	return errno
}

func TestUnalignedRoundTrip(t *testing.T) {
	defer test.New(t)

	for _, s := range []ramdisk.Strategy{ramdisk.Queued, ramdisk.Direct} {
		root, dev := newRoot(s)
		f := root.File()

		test.Equal(write(f, 0, bytes.Repeat([]byte{0xFF}, 4096)), noErr)

		data := test.RandBytes(1000)
		test.Equal(write(f, 700, data), noErr)

		got, errno := read(f, 700, 1000)
		test.Equal(errno, noErr)
		test.EqualBytes(got, data)

		// the rest of the touched sectors survives
		head, errno := read(f, 0, 700)
		test.Equal(errno, noErr)
		test.EqualBytes(head, bytes.Repeat([]byte{0xFF}, 700))
		tail, errno := read(f, 1700, 4096-1700)
		test.Equal(errno, noErr)
		test.EqualBytes(tail, bytes.Repeat([]byte{0xFF}, 4096-1700))

		test.Nil(root.Close())
		test.Nil(dev.Destroy())
	}
}

func TestReadClampsAtEnd(t *testing.T) {
	defer test.New(t)

	root, dev := newRoot(ramdisk.Queued)
	defer dev.Destroy()
	f := root.File()
	size := dev.Size()

	got, errno := read(f, size-10, 100)
	test.Equal(errno, noErr)
	test.Equal(len(got), 10)

	got, errno = read(f, size, 100)
	test.Equal(errno, noErr)
	test.Equal(len(got), 0)

	_, errno = read(f, -1, 100)
	test.Equal(errno, syscall.EINVAL)
}

func TestWritePastEnd(t *testing.T) {
	defer test.New(t)

	root, dev := newRoot(ramdisk.Direct)
	defer dev.Destroy()
	f := root.File()
	before, err := dev.Checksum()
	test.Nil(err)

	test.Equal(write(f, dev.Size()-10, make([]byte, 11)), syscall.ENOSPC)
	test.Equal(write(f, dev.Size(), []byte{1}), syscall.ENOSPC)
	test.Equal(write(f, math.MaxInt64-10, make([]byte, 512)), syscall.ENOSPC)

	after, err := dev.Checksum()
	test.Nil(err)
	test.Equal(after, before)

	test.Equal(write(f, dev.Size()-10, bytes.Repeat([]byte{3}, 10)), noErr)
	got, errno := read(f, dev.Size()-10, 10)
	test.Equal(errno, noErr)
	test.EqualBytes(got, bytes.Repeat([]byte{3}, 10))
}

func TestAttributes(t *testing.T) {
	defer test.New(t)

	root, dev := newRoot(ramdisk.Queued)
	defer dev.Destroy()
	f := root.File()
	ctx := context.Background()

	var out fuse.AttrOut
	test.Equal(f.Getattr(ctx, nil, &out), noErr)
	test.Equal(out.Size, uint64(ramdisk.DefaultSize))
	test.Equal(out.Blocks, uint64(4096))
	test.Equal(out.Mode, uint32(fuse.S_IFREG|0644))

	in := &fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_SIZE
	in.Size = 0
	test.Equal(f.Setattr(ctx, nil, in, &out), syscall.EINVAL)

	in.Size = uint64(dev.Size())
	test.Equal(f.Setattr(ctx, nil, in, &out), noErr)
	test.Equal(out.Size, uint64(dev.Size()))

	var st fuse.StatfsOut
	test.Equal(root.Statfs(ctx, &st), noErr)
	test.Equal(st.Blocks, uint64(4096))
	test.Equal(st.Bsize, uint32(ramdisk.SectorSize))

	_, flags, errno := f.Open(ctx, 0)
	test.Equal(errno, noErr)
	test.Equal(flags, uint32(fuse.FOPEN_DIRECT_IO))
	test.Equal(f.Fsync(ctx, nil, 0), noErr)
}

func TestNeighbouringPartialWrites(t *testing.T) {
	defer test.New(t)

	root, dev := newRoot(ramdisk.Queued)
	defer dev.Destroy()
	f := root.File()

	var g errgroup.Group
	for _, w := range []struct {
		off int64
		b   byte
	}{{0, 0x0A}, {100, 0x0B}, {300, 0x0C}} {
		w := w
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				if errno := write(f, w.off, bytes.Repeat([]byte{w.b}, 100)); errno != 0 {
					return errno
				}
			}
			return nil
		})
	}
	test.Nil(g.Wait())

	got, errno := read(f, 0, 400)
	test.Equal(errno, noErr)
	want := append(bytes.Repeat([]byte{0x0A}, 100), bytes.Repeat([]byte{0x0B}, 100)...)
	want = append(want, make([]byte, 100)...)
	want = append(want, bytes.Repeat([]byte{0x0C}, 100)...)
	test.EqualBytes(got, want)
}

func TestDestroyedDevice(t *testing.T) {
	defer test.New(t)

	root, dev := newRoot(ramdisk.Direct)
	f := root.File()
	test.Equal(dev.OpenCount(), 1)
	test.Nil(dev.Destroy())

	_, errno := read(f, 0, 512)
	test.Equal(errno, syscall.ENODEV)
	test.Equal(write(f, 0, make([]byte, 512)), syscall.ENODEV)

	test.Nil(root.Close())
	test.Equal(dev.OpenCount(), 0)
}

func TestErrno(t *testing.T) {
	defer test.New(t)

	for _, c := range []struct {
		err   error
		errno syscall.Errno
	}{
		{nil, 0},
		{ramdisk.ErrOutOfRange.Trace(1), syscall.ENOSPC},
		{ramdisk.ErrBusy, syscall.EBUSY},
		{ramdisk.ErrUnsupported, syscall.ENOTSUP},
		{ramdisk.ErrClosed.Trace("x"), syscall.ENODEV},
		{ramdisk.ErrReleased, syscall.ENODEV},
		{ramdisk.ErrTransfer, syscall.EIO},
	} {
		test.Equal(errno(c.err), c.errno)
	}
}
