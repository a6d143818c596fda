package detect

import (
	"math"
	"sort"

	"electrode-locator/internal/volume"
	"electrode-locator/pkg/geometry"
)

// CTDetector locates electrodes in CT volumes with classical computer
// vision. Implanted electrode contacts are metal and show up as very bright
// voxels (roughly 1600+ HU), so the pipeline is: threshold, find candidate
// contacts, group candidates into spacing-consistent linear chains, and fit
// a trajectory to each chain.
type CTDetector struct {
	config Config
}

// NewCTDetector creates a CT detector with the given configuration.
func NewCTDetector(config Config) *CTDetector {
	return &CTDetector{config: config}
}

// Name implements Detector.
func (d *CTDetector) Name() string {
	return "CT Classical CV Detector"
}

// SupportedModalities implements Detector.
func (d *CTDetector) SupportedModalities() []string {
	return []string{"CT"}
}

// Detect finds electrodes in a CT volume. Overrides are flat option keys
// merged over the detector configuration for this call only. A volume that
// is nil, empty, or produces too few candidates yields an empty result.
func (d *CTDetector) Detect(vol *volume.Volume, overrides map[string]any) []*DetectedElectrode {
	if !validVolume(vol) {
		return nil
	}

	params := d.config.Apply(overrides)
	if _, ok := overrides["voxel_size_mm"]; !ok && vol.VoxelSizeMM > 0 {
		params.VoxelSizeMM = vol.VoxelSizeMM
	}

	if params.UseSpacingAwareDetection {
		return d.detectSpacingAware(vol, params)
	}
	return d.detectClassic(vol, params)
}

// detectSpacingAware finds candidate contacts as local intensity maxima and
// chains them by known electrode contact spacing. This is the primary mode:
// it leverages the fixed pitch of SEEG electrode contacts (3.5mm standard,
// up to 6.5mm for wide variants).
func (d *CTDetector) detectSpacingAware(vol *volume.Volume, params Config) []*DetectedElectrode {
	threshold := d.determineThreshold(vol, params)

	// A voxel is a candidate iff it equals its local maximum and exceeds
	// the threshold. Adjacent maxima merge into one candidate per region.
	localMax := vol.MaximumFilter(params.LocalMaximaNeighborhood)
	maximaMask := volume.NewMask(vol.NX, vol.NY, vol.NZ)
	for x := 0; x < vol.NX; x++ {
		for y := 0; y < vol.NY; y++ {
			for z := 0; z < vol.NZ; z++ {
				v := vol.At(x, y, z)
				maximaMask.Set(x, y, z, v == localMax.At(x, y, z) && v > threshold)
			}
		}
	}

	components := volume.LabelComponents(maximaMask)
	if len(components) == 0 {
		return nil
	}
	centroids := make([]geometry.Point3D, len(components))
	for i, c := range components {
		centroids[i] = c.Centroid
	}
	if len(centroids) < params.MinContactsPerElectrode {
		return nil
	}

	centroids = d.filterSkullBase(centroids, vol.NZ, params)
	if len(centroids) < params.MinContactsPerElectrode {
		return nil
	}

	// Chain within each spacing band independently, then merge duplicates
	// found by overlapping bands.
	var allChains []chain
	for _, band := range spacingRanges {
		chains := findSpacingChains(
			centroids,
			band[0]/params.VoxelSizeMM,
			band[1]/params.VoxelSizeMM,
			params.MinContactsPerElectrode,
			params.LinearityThreshold,
		)
		allChains = append(allChains, chains...)
	}
	unique := dedupeChains(allChains)

	var electrodes []*DetectedElectrode
	var existingNames []string
	for _, c := range unique {
		electrode := d.buildElectrode(c.points, vol, params, &existingNames)
		electrodes = append(electrodes, electrode)
	}

	sortByConfidence(electrodes)
	return electrodes
}

// detectClassic is the fallback mode: binarize, clean up with morphological
// opening, label connected components, and cluster component centroids with
// DBSCAN.
func (d *CTDetector) detectClassic(vol *volume.Volume, params Config) []*DetectedElectrode {
	threshold := d.determineThreshold(vol, params)

	mask := vol.Threshold(threshold)
	mask = volume.BinaryOpen(mask, params.MorphologyIterations)

	components := volume.LabelComponents(mask)
	if len(components) == 0 {
		return nil
	}

	// Size-filter: too small is noise, too large is a non-contact artifact.
	var centroids []geometry.Point3D
	for _, c := range components {
		if c.Size >= params.MinContactSize && c.Size <= params.MaxContactSize {
			centroids = append(centroids, c.Centroid)
		}
	}
	if len(centroids) < params.MinContactsPerElectrode {
		return nil
	}

	centroids = d.filterSkullBase(centroids, vol.NZ, params)
	if len(centroids) < params.MinContactsPerElectrode {
		return nil
	}

	labels := ClusterContacts(centroids, params.MinContactsPerElectrode, 2, params.ClusteringEps)
	labels = FilterLinearClusters(centroids, labels, params.LinearityThreshold)

	var electrodes []*DetectedElectrode
	var existingNames []string
	for _, label := range uniqueLabels(labels) {
		var points []geometry.Point3D
		for i, l := range labels {
			if l == label {
				points = append(points, centroids[i])
			}
		}
		if len(points) < params.MinContactsPerElectrode {
			continue
		}
		electrode := d.buildElectrode(points, vol, params, &existingNames)
		electrodes = append(electrodes, electrode)
	}

	sortByConfidence(electrodes)
	return electrodes
}

// buildElectrode turns one accepted contact group into a DetectedElectrode.
func (d *CTDetector) buildElectrode(points []geometry.Point3D, vol *volume.Volume, params Config, existingNames *[]string) *DetectedElectrode {
	tip, entry, ordered := FitElectrodeAxis(points)
	meanDist, stdDist := geometry.SpacingStats(ordered)
	confidence := calculateConfidence(ordered, meanDist, stdDist)

	name := SuggestElectrodeName(tip, vol.NX, vol.NY, *existingNames)
	*existingNames = append(*existingNames, name)

	return &DetectedElectrode{
		Tip:           tip,
		Entry:         entry,
		Contacts:      ordered,
		Confidence:    confidence,
		SuggestedName: name,
		ElectrodeType: InferElectrodeType(len(ordered), meanDist*params.VoxelSizeMM),
	}
}

// filterSkullBase drops candidates in the bottom margin of the z-axis, where
// bright skull-base bone routinely produces false contacts.
func (d *CTDetector) filterSkullBase(centroids []geometry.Point3D, nz int, params Config) []geometry.Point3D {
	if !params.SkullBaseFilterEnabled {
		return centroids
	}
	minZ := float64(int(float64(nz) * params.SkullBaseMarginPercent / 100))
	var kept []geometry.Point3D
	for _, c := range centroids {
		if c.Z >= minZ {
			kept = append(kept, c)
		}
	}
	return kept
}

// determineThreshold picks the intensity threshold for metal detection.
//
// With adaptive thresholding the histogram drives the choice. Volumes that
// look pre-processed (electrodes already isolated, so the 99.9th percentile
// of positive voxels runs far above the 99th) use a high percentile floored
// at the configured threshold. Standard CT uses the 95th percentile of
// positive voxels bounded to [0.8, 1.5] times the configured threshold,
// which adapts across scanning protocols.
func (d *CTDetector) determineThreshold(vol *volume.Volume, params Config) float64 {
	if !params.UseAdaptiveThreshold {
		return params.Threshold
	}

	base := params.Threshold
	isPreprocessed := params.PreprocessedCT

	positive := vol.PositiveVoxels()
	if !isPreprocessed && len(positive) > 0 {
		p99 := volume.Percentile(positive, 99)
		p999 := volume.Percentile(positive, 99.9)
		if p999 > p99*1.3 {
			isPreprocessed = true
		}
	}

	if isPreprocessed && len(positive) > 0 {
		return math.Max(volume.Percentile(positive, 97.5), base)
	}

	if vol.CountAbove(base*0.5) == 0 {
		return base
	}

	p95 := volume.Percentile(positive, 95)
	adaptive := math.Max(p95, base*0.8)
	return math.Min(adaptive, base*1.5)
}

// calculateConfidence scores an assembled electrode before validation.
// More contacts, regular spacing, and a plausible pitch all raise it.
func calculateConfidence(ordered []geometry.Point3D, meanDist, stdDist float64) float64 {
	if len(ordered) < 2 {
		return 0.5
	}

	contactFactor := math.Min(1.0, float64(len(ordered))/15.0)

	regularityFactor := 0.5
	if meanDist > 0 {
		regularityFactor = math.Max(0.0, 1.0-stdDist/meanDist)
	}

	// Plausible inter-contact pitch in voxels; anything outside is suspect
	// but not disqualifying.
	spacingFactor := 1.0
	if meanDist < 2.0 || meanDist > 20.0 {
		spacingFactor = 0.7
	}

	confidence := contactFactor*0.3 + regularityFactor*0.4 + spacingFactor*0.3
	return math.Min(1.0, math.Max(0.0, confidence))
}

// InferElectrodeType guesses the electrode model from contact count and mean
// spacing in mm. Dixi SEEG leads come in three pitch variants (AM 3.5mm,
// BM 4.3mm, CM 4.6-4.9mm) and a small set of contact counts.
func InferElectrodeType(numContacts int, meanDistanceMM float64) string {
	variant := "CM"
	switch {
	case meanDistanceMM < 4.0:
		variant = "AM"
	case meanDistanceMM < 4.5:
		variant = "BM"
	}

	closest := DefaultValidContactCounts[0]
	for _, count := range DefaultValidContactCounts {
		if abs(count-numContacts) < abs(closest-numContacts) {
			closest = count
		}
	}
	return formatElectrodeType(closest, variant)
}

// DetectWithROI runs detection restricted to a region of interest. Voxels
// outside the mask are zeroed in a working copy; the input volume is not
// touched.
func (d *CTDetector) DetectWithROI(vol *volume.Volume, roi *volume.Mask, overrides map[string]any) []*DetectedElectrode {
	if !validVolume(vol) {
		return nil
	}
	masked := vol.ZeroOutsideMask(roi)
	return d.Detect(masked, overrides)
}

// RefineDetection re-runs detection locally around each initial electrode
// and swaps in the best local result, keeping the coarse detection's name
// and type. Electrodes whose local re-detection finds nothing are kept
// unchanged. The relaxed minimum contact count lets short local fragments
// replace a coarse trajectory.
func (d *CTDetector) RefineDetection(vol *volume.Volume, initial []*DetectedElectrode, searchRadius int) []*DetectedElectrode {
	refined := make([]*DetectedElectrode, 0, len(initial))

	for _, electrode := range initial {
		roi := volume.NewMask(vol.NX, vol.NY, vol.NZ)
		for _, contact := range electrode.Contacts {
			roi.StampSphere(int(contact.X), int(contact.Y), int(contact.Z), searchRadius, true)
		}

		local := d.DetectWithROI(vol, roi, map[string]any{
			"min_contacts_per_electrode": 2,
		})
		if len(local) == 0 {
			refined = append(refined, electrode)
			continue
		}

		best := local[0]
		for _, candidate := range local[1:] {
			if candidate.Confidence > best.Confidence {
				best = candidate
			}
		}
		best.SuggestedName = electrode.SuggestedName
		best.ElectrodeType = electrode.ElectrodeType
		refined = append(refined, best)
	}
	return refined
}

func sortByConfidence(electrodes []*DetectedElectrode) {
	sort.SliceStable(electrodes, func(i, j int) bool {
		return electrodes[i].Confidence > electrodes[j].Confidence
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
