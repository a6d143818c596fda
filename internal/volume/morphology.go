package volume

import (
	"electrode-locator/pkg/geometry"
)

// neighbors6 is the face-connected structuring element used for morphology
// and component labeling.
var neighbors6 = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// MaximumFilter returns a volume where each voxel holds the maximum intensity
// within a cubic window of the given size centered on it. The window is
// clipped at the grid borders. Implemented as three separable 1D passes.
func (v *Volume) MaximumFilter(size int) *Volume {
	if size <= 1 {
		return v.Clone()
	}
	lo := size / 2
	hi := size - 1 - lo

	out := v.Clone()
	tmp := New(v.NX, v.NY, v.NZ)
	tmp.VoxelSizeMM = v.VoxelSizeMM

	// Pass along x
	for y := 0; y < v.NY; y++ {
		for z := 0; z < v.NZ; z++ {
			for x := 0; x < v.NX; x++ {
				max := out.At(x, y, z)
				for d := -lo; d <= hi; d++ {
					xi := x + d
					if xi < 0 || xi >= v.NX {
						continue
					}
					if val := out.At(xi, y, z); val > max {
						max = val
					}
				}
				tmp.Set(x, y, z, max)
			}
		}
	}
	out, tmp = tmp, out

	// Pass along y
	for x := 0; x < v.NX; x++ {
		for z := 0; z < v.NZ; z++ {
			for y := 0; y < v.NY; y++ {
				max := out.At(x, y, z)
				for d := -lo; d <= hi; d++ {
					yi := y + d
					if yi < 0 || yi >= v.NY {
						continue
					}
					if val := out.At(x, yi, z); val > max {
						max = val
					}
				}
				tmp.Set(x, y, z, max)
			}
		}
	}
	out, tmp = tmp, out

	// Pass along z
	for x := 0; x < v.NX; x++ {
		for y := 0; y < v.NY; y++ {
			for z := 0; z < v.NZ; z++ {
				max := out.At(x, y, z)
				for d := -lo; d <= hi; d++ {
					zi := z + d
					if zi < 0 || zi >= v.NZ {
						continue
					}
					if val := out.At(x, y, zi); val > max {
						max = val
					}
				}
				tmp.Set(x, y, z, max)
			}
		}
	}
	return tmp
}

// Threshold returns a mask of voxels with intensity strictly above the value.
func (v *Volume) Threshold(value float64) *Mask {
	m := NewMask(v.NX, v.NY, v.NZ)
	i := 0
	for x := 0; x < v.NX; x++ {
		for y := 0; y < v.NY; y++ {
			for z := 0; z < v.NZ; z++ {
				m.bits[i] = v.data[i] > value
				i++
			}
		}
	}
	return m
}

// BinaryErode erodes the mask with the face-connected structuring element for
// the given number of iterations. Voxels outside the grid count as false, so
// border voxels erode away.
func BinaryErode(m *Mask, iterations int) *Mask {
	out := m
	for it := 0; it < iterations; it++ {
		next := NewMask(out.NX, out.NY, out.NZ)
		for x := 0; x < out.NX; x++ {
			for y := 0; y < out.NY; y++ {
				for z := 0; z < out.NZ; z++ {
					if !out.At(x, y, z) {
						continue
					}
					keep := true
					for _, n := range neighbors6 {
						xi, yi, zi := x+n[0], y+n[1], z+n[2]
						if xi < 0 || xi >= out.NX || yi < 0 || yi >= out.NY || zi < 0 || zi >= out.NZ {
							keep = false
							break
						}
						if !out.At(xi, yi, zi) {
							keep = false
							break
						}
					}
					next.Set(x, y, z, keep)
				}
			}
		}
		out = next
	}
	return out
}

// BinaryDilate dilates the mask with the face-connected structuring element
// for the given number of iterations.
func BinaryDilate(m *Mask, iterations int) *Mask {
	out := m
	for it := 0; it < iterations; it++ {
		next := out.Clone()
		for x := 0; x < out.NX; x++ {
			for y := 0; y < out.NY; y++ {
				for z := 0; z < out.NZ; z++ {
					if !out.At(x, y, z) {
						continue
					}
					for _, n := range neighbors6 {
						xi, yi, zi := x+n[0], y+n[1], z+n[2]
						if xi >= 0 && xi < out.NX && yi >= 0 && yi < out.NY && zi >= 0 && zi < out.NZ {
							next.Set(xi, yi, zi, true)
						}
					}
				}
			}
		}
		out = next
	}
	return out
}

// BinaryOpen applies erosion followed by dilation, removing isolated noise
// voxels while preserving larger structures.
func BinaryOpen(m *Mask, iterations int) *Mask {
	if iterations <= 0 {
		return m
	}
	return BinaryDilate(BinaryErode(m, iterations), iterations)
}

// Component is one face-connected region of a labeled mask.
type Component struct {
	Label    int
	Size     int              // voxel count
	Centroid geometry.Point3D // mean voxel position
}

// LabelComponents partitions the true voxels of a mask into face-connected
// components and returns one Component per region, ordered by label.
// Labels start at 1; label 0 is background.
func LabelComponents(m *Mask) []Component {
	labels := make([]int32, len(m.bits))
	var components []Component

	var queue [][3]int
	next := 0
	for x := 0; x < m.NX; x++ {
		for y := 0; y < m.NY; y++ {
			for z := 0; z < m.NZ; z++ {
				idx := (x*m.NY+y)*m.NZ + z
				if !m.bits[idx] || labels[idx] != 0 {
					continue
				}
				next++
				label := int32(next)
				labels[idx] = label

				var sumX, sumY, sumZ float64
				size := 0
				queue = queue[:0]
				queue = append(queue, [3]int{x, y, z})
				for len(queue) > 0 {
					cur := queue[0]
					queue = queue[1:]
					size++
					sumX += float64(cur[0])
					sumY += float64(cur[1])
					sumZ += float64(cur[2])

					for _, n := range neighbors6 {
						xi, yi, zi := cur[0]+n[0], cur[1]+n[1], cur[2]+n[2]
						if xi < 0 || xi >= m.NX || yi < 0 || yi >= m.NY || zi < 0 || zi >= m.NZ {
							continue
						}
						nIdx := (xi*m.NY+yi)*m.NZ + zi
						if m.bits[nIdx] && labels[nIdx] == 0 {
							labels[nIdx] = label
							queue = append(queue, [3]int{xi, yi, zi})
						}
					}
				}

				components = append(components, Component{
					Label: next,
					Size:  size,
					Centroid: geometry.Point3D{
						X: sumX / float64(size),
						Y: sumY / float64(size),
						Z: sumZ / float64(size),
					},
				})
			}
		}
	}
	return components
}
