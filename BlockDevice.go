package ramdisk

import (
	"io"
	"math"
	"strings"

	"github.com/chzyer/logex"
)

const (
	SectorSize  = 512
	sectorShift = 9

	DefaultName = "ramdisk"
	DefaultSize = 2 * 1024 * 1024

	// Partitions is the number of minors reserved for the disk. It is only
	// reported, nothing partitions the store.
	Partitions = 3
)

var (
	ErrInvalidAddress = logex.Define("invalid sector address")
	ErrOutOfRange     = logex.Define("request exceeds device capacity")
	ErrAllocation     = logex.Define("cannot reserve backing memory")
	ErrTransfer       = logex.Define("transfer failed")
	ErrUnsupported    = logex.Define("request not supported by dispatch strategy")
	ErrBusy           = logex.Define("device busy")
	ErrClosed         = logex.Define("device is closed")
	ErrReleased       = logex.Define("backing store released")
)

// Backend is the byte-addressed storage the dispatch engines transfer
// against. It must reject ranges outside [0, Size()) with ErrOutOfRange.
type Backend interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// Engine turns requests into Backend transfers. Submit returns only after
// the request has completed.
type Engine interface {
	Submit(req *Request) error
	Strategy() Strategy
	Close() error
}

type Strategy int

const (
	Queued Strategy = iota
	Direct
)

func (s Strategy) String() string {
	switch s {
	case Queued:
		return "queued"
	case Direct:
		return "direct"
	default:
		return "unknown"
	}
}

func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "queued", "rq":
		return Queued, nil
	case "direct", "bio":
		return Direct, nil
	}
	return 0, ErrUnsupported.Trace("strategy", name)
}

type SectorAddress uint64

// Offset converts the sector index into a byte offset on the device.
func (a SectorAddress) Offset() (int64, error) {
	if uint64(a) > math.MaxInt64>>sectorShift {
		return 0, ErrOutOfRange.Trace(uint64(a))
	}
	return int64(a) << sectorShift, nil
}

// TransferError classifies an error returned by a Backend. Range errors are
// kept, everything else is reported as ErrTransfer.
func TransferError(err error) error {
	if err == nil {
		return nil
	}
	if logex.EqualAny(err, []error{ErrOutOfRange, ErrReleased, ErrClosed}) {
		return logex.Trace(err)
	}
	return ErrTransfer.Trace(err)
}
