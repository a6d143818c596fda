package geometry

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// AxisFit holds the result of a 1-component principal axis fit over a point set.
type AxisFit struct {
	Center    Point3D // Mean of the fitted points
	Direction Point3D // Unit direction of the principal axis
	Linearity float64 // Fraction of variance explained by the principal axis (0-1)
}

// FitAxis fits a principal axis to a point set via SVD of the centered
// coordinate matrix. The explained-variance ratio of the first component
// serves as a linearity score: 1.0 means perfectly collinear.
//
// Point sets with fewer than 3 points are trivially linear (linearity 1.0).
func FitAxis(points []Point3D) AxisFit {
	center := Centroid(points)

	if len(points) < 2 {
		return AxisFit{Center: center, Direction: Point3D{}, Linearity: 1.0}
	}

	centered := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		d := p.Sub(center)
		centered.Set(i, 0, d.X)
		centered.Set(i, 1, d.Y)
		centered.Set(i, 2, d.Z)
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return AxisFit{Center: center, Direction: Point3D{}, Linearity: 1.0}
	}

	values := svd.Values(nil)
	var total float64
	for _, s := range values {
		total += s * s
	}
	if total <= 0 {
		// Degenerate: all points coincide.
		return AxisFit{Center: center, Direction: Point3D{}, Linearity: 1.0}
	}

	var v mat.Dense
	svd.VTo(&v)
	direction := Point3D{X: v.At(0, 0), Y: v.At(1, 0), Z: v.At(2, 0)}

	return AxisFit{
		Center:    center,
		Direction: direction,
		Linearity: values[0] * values[0] / total,
	}
}

// Projections returns the signed offset of each point along the fitted axis.
func (f AxisFit) Projections(points []Point3D) []float64 {
	proj := make([]float64, len(points))
	for i, p := range points {
		proj[i] = p.Sub(f.Center).Dot(f.Direction)
	}
	return proj
}

// Deviations returns the perpendicular distance of each point from the fitted line.
func (f AxisFit) Deviations(points []Point3D) []float64 {
	dev := make([]float64, len(points))
	for i, p := range points {
		t := p.Sub(f.Center).Dot(f.Direction)
		onLine := f.Center.Add(f.Direction.Scale(t))
		dev[i] = p.Distance(onLine)
	}
	return dev
}

// OrderAlongAxis returns the points sorted by their projection onto the
// principal axis of the set. Ties keep input order.
func OrderAlongAxis(points []Point3D) []Point3D {
	if len(points) < 2 {
		return append([]Point3D(nil), points...)
	}
	fit := FitAxis(points)
	proj := fit.Projections(points)

	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return proj[idx[a]] < proj[idx[b]]
	})

	ordered := make([]Point3D, len(points))
	for i, j := range idx {
		ordered[i] = points[j]
	}
	return ordered
}
