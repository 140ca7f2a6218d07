package fusefs

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/chzyer/logex"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/jonas-koeritz/ramdisk"
	"github.com/jonas-koeritz/ramdisk/device"
)

// BlockFile is the device content seen as a fixed-size regular file.
type BlockFile struct {
	fs.Inode

	dev  *device.Device
	sess *device.Session

	// mu serializes writes so partial-sector read-modify-write cycles
	// do not overlap.
	mu    sync.Mutex
	mtime time.Time
}

var _ = (fs.NodeReader)((*BlockFile)(nil))
var _ = (fs.NodeWriter)((*BlockFile)(nil))
var _ = (fs.NodeOpener)((*BlockFile)(nil))
var _ = (fs.NodeGetattrer)((*BlockFile)(nil))
var _ = (fs.NodeSetattrer)((*BlockFile)(nil))
var _ = (fs.NodeFsyncer)((*BlockFile)(nil))

func newBlockFile(dev *device.Device) *BlockFile {
	return &BlockFile{dev: dev, sess: dev.Open(), mtime: time.Now()}
}

// span widens [off, end) to whole sectors, cut at the end of the device.
func (f *BlockFile) span(off, end int64) (sector uint64, start, stop int64) {
	start = off &^ (ramdisk.SectorSize - 1)
	stop = (end + ramdisk.SectorSize - 1) &^ (ramdisk.SectorSize - 1)
	if size := f.dev.Size(); stop > size {
		stop = size
	}
	return uint64(start / ramdisk.SectorSize), start, stop
}

func (f *BlockFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	size := f.dev.Size()
	if off < 0 {
		return nil, syscall.EINVAL
	}
	if off >= size || len(dest) == 0 {
		return fuse.ReadResultData([]byte{}), 0
	}

	end := off + int64(len(dest))
	if end > size {
		end = size
	}

	sector, start, stop := f.span(off, end)
	data, err := f.sess.Read(sector, uint32(stop-start))
	if err != nil {
		logex.Error("read", off, len(dest), err)
		return nil, errno(err)
	}
	return fuse.ReadResultData(data[off-start : end-start]), 0
}

func (f *BlockFile) Write(ctx context.Context, fh fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	if off > f.dev.Size()-int64(len(data)) {
		return 0, syscall.ENOSPC
	}
	end := off + int64(len(data))
	if len(data) == 0 {
		return 0, 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sector, start, stop := f.span(off, end)
	buf := data
	if start != off || stop != end {
		old, err := f.sess.Read(sector, uint32(stop-start))
		if err != nil {
			logex.Error("write: fetch", sector, err)
			return 0, errno(err)
		}
		copy(old[off-start:], data)
		buf = old
	}

	if err := f.sess.Write(sector, buf); err != nil {
		logex.Error("write", off, len(data), err)
		return 0, errno(err)
	}
	f.mtime = time.Now()
	return uint32(len(data)), 0
}

func (f *BlockFile) Open(ctx context.Context, openFlags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (f *BlockFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	f.mu.Lock()
	mtime := f.mtime
	f.mu.Unlock()

	size := uint64(f.dev.Size())
	out.Mode = fuse.S_IFREG | 0644
	out.Size = size
	out.Blocks = (size + ramdisk.SectorSize - 1) / ramdisk.SectorSize
	out.Blksize = ramdisk.SectorSize
	out.Mtime = uint64(mtime.Unix())
	out.Ctime = uint64(mtime.Unix())
	return 0
}

// Setattr only accepts truncation to the current size.
func (f *BlockFile) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok && size != uint64(f.dev.Size()) {
		return syscall.EINVAL
	}
	return f.Getattr(ctx, fh, out)
}

func (f *BlockFile) Fsync(ctx context.Context, fh fs.FileHandle, flags uint32) syscall.Errno {
	return 0
}

func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case logex.Equal(err, ramdisk.ErrOutOfRange):
		return syscall.ENOSPC
	case logex.Equal(err, ramdisk.ErrBusy):
		return syscall.EBUSY
	case logex.Equal(err, ramdisk.ErrUnsupported):
		return syscall.ENOTSUP
	case logex.EqualAny(err, []error{ramdisk.ErrClosed, ramdisk.ErrReleased}):
		return syscall.ENODEV
	default:
		return syscall.EIO
	}
}
