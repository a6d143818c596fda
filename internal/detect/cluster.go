package detect

import (
	"fmt"

	"electrode-locator/pkg/geometry"
)

// NoiseLabel marks centroids that belong to no cluster.
const NoiseLabel = -1

// ClusterContacts groups contact centroids into electrode candidates using
// density-based clustering (DBSCAN, Euclidean metric). This is the classic
// fallback when spacing-aware chaining is disabled.
//
// Returns one label per centroid; NoiseLabel for unclustered points. Fewer
// centroids than minClusterSize yields all noise.
func ClusterContacts(centroids []geometry.Point3D, minClusterSize, minSamples int, eps float64) []int {
	labels := make([]int, len(centroids))
	for i := range labels {
		labels[i] = NoiseLabel
	}
	if len(centroids) < minClusterSize {
		return labels
	}

	// The point itself counts toward its own neighborhood.
	neighborsOf := func(i int) []int {
		var out []int
		for j, p := range centroids {
			if centroids[i].Distance(p) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	visited := make([]bool, len(centroids))
	cluster := 0
	for i := range centroids {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := neighborsOf(i)
		if len(neighbors) < minSamples {
			continue // noise, may still be claimed as a border point
		}

		labels[i] = cluster
		for k := 0; k < len(neighbors); k++ {
			j := neighbors[k]
			if labels[j] == NoiseLabel {
				labels[j] = cluster
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			expansion := neighborsOf(j)
			if len(expansion) >= minSamples {
				neighbors = append(neighbors, expansion...)
			}
		}
		cluster++
	}
	return labels
}

// FilterLinearClusters relabels clusters whose PCA linearity falls below the
// threshold as noise. Clusters with fewer than 3 points pass through
// unchanged, since linearity is not assessable.
func FilterLinearClusters(centroids []geometry.Point3D, labels []int, linearityThreshold float64) []int {
	filtered := make([]int, len(labels))
	copy(filtered, labels)

	for _, label := range uniqueLabels(labels) {
		var points []geometry.Point3D
		for i, l := range labels {
			if l == label {
				points = append(points, centroids[i])
			}
		}
		if len(points) < 3 {
			continue
		}
		if geometry.FitAxis(points).Linearity < linearityThreshold {
			for i, l := range labels {
				if l == label {
					filtered[i] = NoiseLabel
				}
			}
		}
	}
	return filtered
}

// uniqueLabels returns the sorted distinct non-noise labels.
func uniqueLabels(labels []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, l := range labels {
		if l != NoiseLabel && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	// Labels are assigned in increasing order, so insertion order is sorted
	// only when points arrive cluster by cluster; sort to be safe.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// FitElectrodeAxis fits a principal axis to contact points and orders them
// from tip to entry. The tip is the extreme with the lower z-coordinate
// (deeper in standard orientation); the ordered sequence is reversed when
// needed so it always runs tip first.
//
// A single point is returned as both tip and entry.
func FitElectrodeAxis(points []geometry.Point3D) (tip, entry geometry.PointInt3, ordered []geometry.Point3D) {
	if len(points) == 0 {
		return geometry.PointInt3{}, geometry.PointInt3{}, nil
	}
	if len(points) < 2 {
		p := points[0].Round()
		return p, p, append([]geometry.Point3D(nil), points...)
	}

	ordered = geometry.OrderAlongAxis(points)
	first := ordered[0]
	last := ordered[len(ordered)-1]

	if first.Z <= last.Z {
		tip = first.Round()
		entry = last.Round()
	} else {
		tip = last.Round()
		entry = first.Round()
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	return tip, entry, ordered
}

// SuggestElectrodeName derives a positional name for an electrode from its
// tip: hemisphere from x relative to the volume midline ("L"/"R") and
// anterior/posterior from y ("A"/"P"). Collisions with existing names get an
// increasing integer suffix starting at 2.
func SuggestElectrodeName(tip geometry.PointInt3, nx, ny int, existing []string) string {
	side := "L"
	if float64(tip.X) > float64(nx)/2 {
		side = "R"
	}
	position := "P"
	if float64(tip.Y) > float64(ny)/2 {
		position = "A"
	}
	base := side + position

	name := base
	counter := 1
	for contains(existing, name) {
		counter++
		name = fmt.Sprintf("%s%d", base, counter)
	}
	return name
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
