package fusefs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/jonas-koeritz/ramdisk"
	"github.com/jonas-koeritz/ramdisk/device"
)

const fileIno = 2

// Root is the mount root. It holds a single regular file named after the
// device that maps byte offsets onto device sectors.
type Root struct {
	fs.Inode

	dev  *device.Device
	file *BlockFile
}

var _ = (fs.NodeOnAdder)((*Root)(nil))
var _ = (fs.NodeStatfser)((*Root)(nil))

// New opens a session on dev for the lifetime of the mount.
func New(dev *device.Device) *Root {
	return &Root{dev: dev, file: newBlockFile(dev)}
}

func (r *Root) OnAdd(ctx context.Context) {
	p := &r.Inode
	child := p.NewPersistentInode(ctx, r.file, fs.StableAttr{
		Mode: fuse.S_IFREG,
		Ino:  fileIno,
	})
	p.AddChild(r.dev.Name(), child, true)
}

func (r *Root) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Blocks = r.dev.CapacitySectors()
	out.Bfree = 0
	out.Bavail = 0
	out.Files = 1
	out.Bsize = ramdisk.SectorSize
	out.Frsize = ramdisk.SectorSize
	out.NameLen = 255
	return 0
}

func (r *Root) File() *BlockFile {
	return r.file
}

// Close ends the session held by the exported file.
func (r *Root) Close() error {
	return r.file.sess.Close()
}

// Mount exports dev at dir. The returned server is already serving.
func Mount(dir string, dev *device.Device, opts *fs.Options) (*fuse.Server, *Root, error) {
	if opts == nil {
		opts = &fs.Options{}
	}
	if opts.FsName == "" {
		opts.FsName = dev.Name()
	}
	if opts.Name == "" {
		opts.Name = "ramdisk"
	}

	root := New(dev)
	server, err := fs.Mount(dir, root, opts)
	if err != nil {
		root.Close()
		return nil, nil, err
	}
	return server, root, nil
}
