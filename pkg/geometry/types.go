// Package geometry provides basic 3D geometric types used throughout the application.
package geometry

import (
	"math"
)

// Point3D represents a 3D point with floating-point voxel coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewPoint3D creates a new Point3D.
func NewPoint3D(x, y, z float64) Point3D {
	return Point3D{X: x, Y: y, Z: z}
}

// Distance returns the Euclidean distance to another point.
func (p Point3D) Distance(other Point3D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Add returns the sum of two points.
func (p Point3D) Add(other Point3D) Point3D {
	return Point3D{X: p.X + other.X, Y: p.Y + other.Y, Z: p.Z + other.Z}
}

// Sub returns the difference of two points.
func (p Point3D) Sub(other Point3D) Point3D {
	return Point3D{X: p.X - other.X, Y: p.Y - other.Y, Z: p.Z - other.Z}
}

// Scale returns the point scaled by a factor.
func (p Point3D) Scale(factor float64) Point3D {
	return Point3D{X: p.X * factor, Y: p.Y * factor, Z: p.Z * factor}
}

// Dot returns the dot product with another point treated as a vector.
func (p Point3D) Dot(other Point3D) float64 {
	return p.X*other.X + p.Y*other.Y + p.Z*other.Z
}

// Norm returns the Euclidean length of the point treated as a vector.
func (p Point3D) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Mid returns the midpoint between two points.
func (p Point3D) Mid(other Point3D) Point3D {
	return Point3D{
		X: (p.X + other.X) / 2,
		Y: (p.Y + other.Y) / 2,
		Z: (p.Z + other.Z) / 2,
	}
}

// Round converts to integer voxel coordinates. Exact halves round to even,
// so centroids of even-sized voxel groups land deterministically.
func (p Point3D) Round() PointInt3 {
	return PointInt3{
		X: int(math.RoundToEven(p.X)),
		Y: int(math.RoundToEven(p.Y)),
		Z: int(math.RoundToEven(p.Z)),
	}
}

// PointInt3 represents a 3D point with integer voxel coordinates.
type PointInt3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// ToFloat converts to Point3D.
func (p PointInt3) ToFloat() Point3D {
	return Point3D{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

// Distance returns the Euclidean distance to a floating-point point.
func (p PointInt3) Distance(other Point3D) float64 {
	return p.ToFloat().Distance(other)
}

// Centroid returns the mean position of a point set.
// Returns the zero point for an empty set.
func Centroid(points []Point3D) Point3D {
	if len(points) == 0 {
		return Point3D{}
	}
	var sum Point3D
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(points)))
}

// SpacingStats returns the mean and population standard deviation of
// consecutive point distances along an ordered sequence.
func SpacingStats(ordered []Point3D) (mean, std float64) {
	if len(ordered) < 2 {
		return 0, 0
	}
	spacings := ConsecutiveDistances(ordered)
	for _, d := range spacings {
		mean += d
	}
	mean /= float64(len(spacings))
	for _, d := range spacings {
		std += (d - mean) * (d - mean)
	}
	std = math.Sqrt(std / float64(len(spacings)))
	return mean, std
}

// ConsecutiveDistances returns the Euclidean distances between consecutive
// points of an ordered sequence. Length is len(ordered)-1.
func ConsecutiveDistances(ordered []Point3D) []float64 {
	if len(ordered) < 2 {
		return nil
	}
	dists := make([]float64, len(ordered)-1)
	for i := 0; i < len(ordered)-1; i++ {
		dists[i] = ordered[i].Distance(ordered[i+1])
	}
	return dists
}
