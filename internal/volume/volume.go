// Package volume provides the 3D intensity volume model and grid operations
// used by electrode detection.
package volume

import (
	"fmt"
	"math"
	"sort"
)

// DefaultVoxelSizeMM is assumed when a volume carries no spacing information.
const DefaultVoxelSizeMM = 0.55

// Volume is a dense 3D scalar intensity grid with isotropic voxel size in mm.
// The detection pipeline treats volumes as immutable and works on masked
// copies; nothing here mutates a caller's volume in place.
type Volume struct {
	NX, NY, NZ  int
	VoxelSizeMM float64

	data []float64 // C-order: index = (x*NY+y)*NZ + z
}

// New creates a zero-filled volume with the given shape.
func New(nx, ny, nz int) *Volume {
	return &Volume{
		NX:          nx,
		NY:          ny,
		NZ:          nz,
		VoxelSizeMM: DefaultVoxelSizeMM,
		data:        make([]float64, nx*ny*nz),
	}
}

// FromSlice wraps an existing C-ordered intensity buffer. The buffer length
// must equal nx*ny*nz.
func FromSlice(data []float64, nx, ny, nz int) (*Volume, error) {
	if len(data) != nx*ny*nz {
		return nil, fmt.Errorf("volume data length %d does not match shape (%d,%d,%d)",
			len(data), nx, ny, nz)
	}
	return &Volume{NX: nx, NY: ny, NZ: nz, VoxelSizeMM: DefaultVoxelSizeMM, data: data}, nil
}

// IsEmpty reports whether the volume is nil or has no voxels.
func (v *Volume) IsEmpty() bool {
	return v == nil || len(v.data) == 0
}

// Shape returns the (nx, ny, nz) dimensions.
func (v *Volume) Shape() (int, int, int) {
	return v.NX, v.NY, v.NZ
}

// Size returns the total voxel count.
func (v *Volume) Size() int {
	return len(v.data)
}

// At returns the intensity at an integer voxel coordinate.
func (v *Volume) At(x, y, z int) float64 {
	return v.data[(x*v.NY+y)*v.NZ+z]
}

// Set writes the intensity at an integer voxel coordinate.
func (v *Volume) Set(x, y, z int, value float64) {
	v.data[(x*v.NY+y)*v.NZ+z] = value
}

// InBounds reports whether an integer voxel coordinate lies inside the grid.
func (v *Volume) InBounds(x, y, z int) bool {
	return x >= 0 && x < v.NX && y >= 0 && y < v.NY && z >= 0 && z < v.NZ
}

// Clone returns a deep copy sharing no storage with the receiver.
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.data))
	copy(data, v.data)
	return &Volume{NX: v.NX, NY: v.NY, NZ: v.NZ, VoxelSizeMM: v.VoxelSizeMM, data: data}
}

// Min returns the minimum intensity. Zero for an empty volume.
func (v *Volume) Min() float64 {
	if len(v.data) == 0 {
		return 0
	}
	min := v.data[0]
	for _, val := range v.data[1:] {
		if val < min {
			min = val
		}
	}
	return min
}

// Max returns the maximum intensity. Zero for an empty volume.
func (v *Volume) Max() float64 {
	if len(v.data) == 0 {
		return 0
	}
	max := v.data[0]
	for _, val := range v.data[1:] {
		if val > max {
			max = val
		}
	}
	return max
}

// PositiveVoxels returns all intensities strictly greater than zero.
func (v *Volume) PositiveVoxels() []float64 {
	var out []float64
	for _, val := range v.data {
		if val > 0 {
			out = append(out, val)
		}
	}
	return out
}

// CountAbove returns the number of voxels strictly above the threshold.
func (v *Volume) CountAbove(threshold float64) int {
	n := 0
	for _, val := range v.data {
		if val > threshold {
			n++
		}
	}
	return n
}

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation between closest ranks: rank = p/100 * (n-1), interpolating
// between the surrounding order statistics. The input is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// ZeroOutsideMask returns a copy of the volume with every voxel outside the
// mask set to zero. The mask must have the same shape.
func (v *Volume) ZeroOutsideMask(mask *Mask) *Volume {
	out := v.Clone()
	for i := range out.data {
		if !mask.bits[i] {
			out.data[i] = 0
		}
	}
	return out
}

// Mask is a boolean voxel grid aligned with a Volume.
type Mask struct {
	NX, NY, NZ int
	bits       []bool
}

// NewMask creates an all-false mask with the given shape.
func NewMask(nx, ny, nz int) *Mask {
	return &Mask{NX: nx, NY: ny, NZ: nz, bits: make([]bool, nx*ny*nz)}
}

// At returns the mask value at an integer voxel coordinate.
func (m *Mask) At(x, y, z int) bool {
	return m.bits[(x*m.NY+y)*m.NZ+z]
}

// Set writes the mask value at an integer voxel coordinate.
func (m *Mask) Set(x, y, z int, value bool) {
	m.bits[(x*m.NY+y)*m.NZ+z] = value
}

// Count returns the number of true voxels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Fill sets every voxel to the given value.
func (m *Mask) Fill(value bool) {
	for i := range m.bits {
		m.bits[i] = value
	}
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	bits := make([]bool, len(m.bits))
	copy(bits, m.bits)
	return &Mask{NX: m.NX, NY: m.NY, NZ: m.NZ, bits: bits}
}

// StampSphere sets all voxels within radius of the center to the given value.
func (m *Mask) StampSphere(cx, cy, cz, radius int, value bool) {
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				if dx*dx+dy*dy+dz*dz > radius*radius {
					continue
				}
				x, y, z := cx+dx, cy+dy, cz+dz
				if x >= 0 && x < m.NX && y >= 0 && y < m.NY && z >= 0 && z < m.NZ {
					m.Set(x, y, z, value)
				}
			}
		}
	}
}

// StampBox sets all voxels within an axis-aligned box of half-width radius
// around the center to the given value, clipped to the grid.
func (m *Mask) StampBox(cx, cy, cz, radius int, value bool) {
	xMin, xMax := clamp(cx-radius, 0, m.NX), clamp(cx+radius, 0, m.NX)
	yMin, yMax := clamp(cy-radius, 0, m.NY), clamp(cy+radius, 0, m.NY)
	zMin, zMax := clamp(cz-radius, 0, m.NZ), clamp(cz+radius, 0, m.NZ)
	for x := xMin; x < xMax; x++ {
		for y := yMin; y < yMax; y++ {
			for z := zMin; z < zMax; z++ {
				m.Set(x, y, z, value)
			}
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
