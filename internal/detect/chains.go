package detect

import (
	"electrode-locator/pkg/geometry"
)

// chain is one spacing-consistent connected group of candidate contacts.
type chain struct {
	points    []geometry.Point3D
	center    geometry.Point3D
	linearity float64
}

// findSpacingChains groups candidates whose pairwise distances fall inside
// [minSpacing, maxSpacing] voxels into connected components and keeps those
// that are long and linear enough to be electrodes.
//
// The adjacency test is O(n^2) in candidate count; typical volumes produce
// tens to low hundreds of candidates, so this is acceptable. A spatial index
// would be the substitution point if candidate counts grow.
func findSpacingChains(centroids []geometry.Point3D, minSpacing, maxSpacing float64, minLength int, linearityThreshold float64) []chain {
	n := len(centroids)
	adjacency := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := centroids[i].Distance(centroids[j])
			if d >= minSpacing && d <= maxSpacing {
				adjacency[i] = append(adjacency[i], j)
				adjacency[j] = append(adjacency[j], i)
			}
		}
	}

	visited := make([]bool, n)
	var chains []chain

	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}

		var component []int
		queue := []int{start}
		visited[start] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			component = append(component, node)
			for _, neighbor := range adjacency[node] {
				if !visited[neighbor] {
					visited[neighbor] = true
					queue = append(queue, neighbor)
				}
			}
		}

		if len(component) < minLength {
			continue
		}
		points := make([]geometry.Point3D, len(component))
		for i, idx := range component {
			points[i] = centroids[idx]
		}
		fit := geometry.FitAxis(points)
		if fit.Linearity < linearityThreshold {
			continue
		}
		chains = append(chains, chain{
			points:    points,
			center:    geometry.Centroid(points),
			linearity: fit.Linearity,
		})
	}
	return chains
}

// dedupeChains merges chains found by different spacing bands. Two chains
// whose centers lie within 5 voxels cover the same electrode; the one with
// more points wins.
func dedupeChains(all []chain) []chain {
	const sameElectrodeDist = 5.0

	var unique []chain
	for _, c := range all {
		duplicate := false
		for i, u := range unique {
			if c.center.Distance(u.center) < sameElectrodeDist {
				if len(c.points) > len(u.points) {
					unique = append(unique[:i], unique[i+1:]...)
					unique = append(unique, c)
				}
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, c)
		}
	}
	return unique
}
