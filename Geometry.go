package ramdisk

import "fmt"

const (
	Heads     = 2
	Cylinders = 32
)

// Geometry is the legacy CHS view of the disk, as reported by HDIO_GETGEO.
type Geometry struct {
	Heads           int
	Cylinders       int
	SectorsPerTrack int
}

func CapacitySectors(totalSize int64) uint64 {
	if totalSize <= 0 {
		return 0
	}
	return uint64(totalSize) / SectorSize
}

func GeometryFor(totalSize int64) Geometry {
	return Geometry{
		Heads:           Heads,
		Cylinders:       Cylinders,
		SectorsPerTrack: int(CapacitySectors(totalSize) / (Heads * Cylinders)),
	}
}

// Sectors is the number of sectors addressable through the geometry.
func (g Geometry) Sectors() uint64 {
	return uint64(g.Heads) * uint64(g.Cylinders) * uint64(g.SectorsPerTrack)
}

func (g Geometry) Bytes() int64 {
	return int64(g.Sectors()) * SectorSize
}

func (g Geometry) String() string {
	return fmt.Sprintf("%d/%d/%d", g.Cylinders, g.Heads, g.SectorsPerTrack)
}

// CHS addresses a sector by cylinder, head and 1-based sector number.
type CHS struct {
	Cylinder int
	Head     int
	Sector   int
}

func (g Geometry) trackSize() uint64 {
	return uint64(g.SectorsPerTrack)
}

// CHS converts a linear sector address into its cylinder/head/sector form.
func (g Geometry) CHS(a SectorAddress) (CHS, error) {
	if g.SectorsPerTrack == 0 || uint64(a) >= g.Sectors() {
		return CHS{}, ErrInvalidAddress.Trace(uint64(a))
	}
	track := uint64(a) / g.trackSize()
	return CHS{
		Cylinder: int(track / uint64(g.Heads)),
		Head:     int(track % uint64(g.Heads)),
		Sector:   int(uint64(a)%g.trackSize()) + 1,
	}, nil
}

func (g Geometry) LBA(c CHS) (SectorAddress, error) {
	if c.Cylinder < 0 || c.Cylinder >= g.Cylinders ||
		c.Head < 0 || c.Head >= g.Heads ||
		c.Sector < 1 || c.Sector > g.SectorsPerTrack {
		return 0, ErrInvalidAddress.Trace(c)
	}
	track := uint64(c.Cylinder)*uint64(g.Heads) + uint64(c.Head)
	return SectorAddress(track*g.trackSize() + uint64(c.Sector-1)), nil
}

func (c CHS) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Cylinder, c.Head, c.Sector)
}
