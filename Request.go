package ramdisk

import "fmt"

type Direction int

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// Segment is one buffer of a scatter-gather request. Reads fill Buf, writes
// copy it out. Its length is len(Buf).
type Segment struct {
	Buf []byte
}

// Request describes one I/O against the device: a direction, a starting
// sector and the segments covering the contiguous range that follows it.
type Request struct {
	Dir      Direction
	Sector   SectorAddress
	Segments []Segment

	// End is called once when the request completes. It runs with the
	// device lock held and must not submit I/O.
	End func(req *Request, err error)

	err  error
	done bool
}

func NewRequest(dir Direction, sector uint64, bufs ...[]byte) *Request {
	segs := make([]Segment, len(bufs))
	for i, b := range bufs {
		segs[i] = Segment{Buf: b}
	}
	return &Request{Dir: dir, Sector: SectorAddress(sector), Segments: segs}
}

// Len is the number of bytes the request covers.
func (r *Request) Len() int64 {
	var n int64
	for _, seg := range r.Segments {
		n += int64(len(seg.Buf))
	}
	return n
}

// Range returns the byte range [off, off+Len()) of the request.
func (r *Request) Range() (off, end int64, err error) {
	off, err = r.Sector.Offset()
	if err != nil {
		return 0, 0, err
	}
	end = off + r.Len()
	if end < off {
		return 0, 0, ErrOutOfRange.Trace(uint64(r.Sector))
	}
	return off, end, nil
}

// Complete records the outcome of the request. Only the first call counts.
func (r *Request) Complete(err error) {
	if r.done {
		return
	}
	r.done = true
	r.err = err
	if r.End != nil {
		r.End(r, err)
	}
}

// Reset clears the outcome of a previous submission so the request can be
// handed to an engine again.
func (r *Request) Reset() {
	r.done = false
	r.err = nil
}

func (r *Request) Done() bool {
	return r.done
}

func (r *Request) Err() error {
	return r.err
}

func (r *Request) String() string {
	return fmt.Sprintf("%s sector=%d segments=%d len=%d", r.Dir, r.Sector, len(r.Segments), r.Len())
}
