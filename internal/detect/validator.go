package detect

import (
	"math"
	"sort"

	"electrode-locator/internal/volume"
	"electrode-locator/pkg/geometry"
)

// ValidatorLimits holds the artifact-validation thresholds. Defaults come
// from a full benchmark pass over implanted-electrode CTs; the deliberately
// relaxed values reflect a recall-biased design (better to keep a flagged
// artifact than to filter out a real electrode).
type ValidatorLimits struct {
	MaxLineDeviationMM       float64 // Recorded only; never rejects (see QualityFlags)
	MaxSpacingCV             float64 // Confidence scale for spacing regularity
	MaxIntensityCV           float64 // Confidence scale for intensity consistency
	MaxContactCount          int     // Fallback ceiling when no catalog is loaded
	MinLinearity             float64 // Below this an electrode is an artifact
	MinContactSpacingMM      float64 // Spacings under this indicate shaft detection
	ExpectedContactSpacingMM float64 // Standard electrode pitch
	MinContactsForElectrode  int     // Fewer original contacts is an artifact
}

// DefaultValidatorLimits returns the benchmark-tuned validation thresholds.
func DefaultValidatorLimits() ValidatorLimits {
	return ValidatorLimits{
		MaxLineDeviationMM:       5.0,
		MaxSpacingCV:             0.50,
		MaxIntensityCV:           0.5,
		MaxContactCount:          18,
		MinLinearity:             0.88,
		MinContactSpacingMM:      2.0,
		ExpectedContactSpacingMM: 3.5,
		MinContactsForElectrode:  6,
	}
}

// Validator re-examines assembled electrodes for known artifact signatures
// and recomputes their confidence. It checks linearity, spacing regularity,
// shaft continuity (both spacing- and intensity-based), contact count,
// intensity consistency, and trajectory direction.
type Validator struct {
	// Volume enables the intensity-based checks when non-nil.
	Volume *volume.Volume
	// VoxelSizeMM converts mm thresholds to voxel distances.
	VoxelSizeMM float64
	// ShapeNX/NY/NZ give the volume extent for the direction check. Filled
	// from Volume when available; all zero means unknown.
	ShapeNX, ShapeNY, ShapeNZ int

	Limits ValidatorLimits

	validCounts []int
	maxContacts int
}

// NewValidator creates a validator. The volume is optional; without it the
// intensity checks are skipped. validCounts is the externally loaded catalog
// of valid contact counts; nil falls back to DefaultValidContactCounts.
func NewValidator(vol *volume.Volume, voxelSizeMM float64, validCounts []int) *Validator {
	if voxelSizeMM <= 0 {
		voxelSizeMM = volume.DefaultVoxelSizeMM
	}
	if len(validCounts) == 0 {
		validCounts = append([]int(nil), DefaultValidContactCounts...)
	}
	maxContacts := validCounts[0]
	for _, n := range validCounts[1:] {
		if n > maxContacts {
			maxContacts = n
		}
	}

	v := &Validator{
		Volume:      vol,
		VoxelSizeMM: voxelSizeMM,
		Limits:      DefaultValidatorLimits(),
		validCounts: validCounts,
		maxContacts: maxContacts,
	}
	if vol != nil {
		v.ShapeNX, v.ShapeNY, v.ShapeNZ = vol.Shape()
	}
	return v
}

// MaxContacts returns the trimming ceiling derived from the catalog.
func (v *Validator) MaxContacts() int {
	return v.maxContacts
}

// Validate runs all checks on an electrode and returns its quality flags.
// The electrode itself is not modified; see ValidateAndUpdate.
func (v *Validator) Validate(e *DetectedElectrode) *QualityFlags {
	flags := &QualityFlags{MinDipRatio: 1.0}

	if len(e.Contacts) < 2 {
		flags.IsArtifact = true
		flags.Reason = "Too few contacts"
		return flags
	}

	linearity, maxDeviation := v.checkLinearity(e.Contacts)
	flags.Linearity = linearity
	flags.MaxDeviationMM = maxDeviation * v.VoxelSizeMM

	spacingCV, meanSpacing := v.checkSpacingRegularity(e.Contacts)
	flags.SpacingCV = spacingCV
	flags.MeanSpacingMM = meanSpacing * v.VoxelSizeMM

	isShaftSpacing, minSpacing, pctTooClose := v.checkShaftDetection(e.Contacts)
	flags.MinSpacingMM = minSpacing * v.VoxelSizeMM
	flags.PctTooClose = pctTooClose

	isContinuous := false
	if v.Volume != nil {
		var minDip float64
		var segmentsNoDip int
		isContinuous, minDip, segmentsNoDip = v.checkIntensityProfile(e.Contacts)
		flags.IsContinuous = isContinuous
		flags.MinDipRatio = minDip
		flags.SegmentsNoDip = segmentsNoDip
	}

	// Shaft detection from either signal: implausibly tight spacing, or a
	// bright profile with no intensity dips between contacts.
	flags.IsShaft = isShaftSpacing || isContinuous

	trimmed, originalCount := v.checkContactCount(e)
	flags.OriginalContacts = originalCount
	flags.TrimmedContacts = originalCount - len(trimmed)

	if v.Volume != nil {
		intensityCV, meanIntensity := v.checkIntensityConsistency(e.Contacts)
		flags.HasIntensity = true
		flags.IntensityCV = intensityCV
		flags.MeanIntensity = meanIntensity
	}

	flags.PointsOutward = v.checkDirection(e)
	flags.IsArtifact = v.isArtifact(flags)
	return flags
}

// checkLinearity returns the PCA linearity of the contacts and the maximum
// perpendicular deviation from the fitted line, in voxels.
func (v *Validator) checkLinearity(contacts []geometry.Point3D) (float64, float64) {
	if len(contacts) < 3 {
		return 1.0, 0.0
	}
	fit := geometry.FitAxis(contacts)
	maxDeviation := 0.0
	for _, d := range fit.Deviations(contacts) {
		if d > maxDeviation {
			maxDeviation = d
		}
	}
	return fit.Linearity, maxDeviation
}

// checkSpacingRegularity returns the coefficient of variation and mean of
// consecutive contact spacings along the electrode axis, in voxels.
func (v *Validator) checkSpacingRegularity(contacts []geometry.Point3D) (float64, float64) {
	if len(contacts) < 2 {
		return 0.0, 0.0
	}
	ordered := geometry.OrderAlongAxis(contacts)
	mean, std := geometry.SpacingStats(ordered)
	if mean <= 0 {
		return 0.0, mean
	}
	return std / mean, mean
}

// checkShaftDetection flags groups whose contacts sit implausibly close
// together. Real contacts are ~3.5mm apart; a detected shaft shows many
// sub-2mm spacings. Requires at least 3 spacing gaps so small clusters do
// not trip it.
func (v *Validator) checkShaftDetection(contacts []geometry.Point3D) (bool, float64, float64) {
	if len(contacts) < 2 {
		return false, 0.0, 0.0
	}
	ordered := geometry.OrderAlongAxis(contacts)
	spacings := geometry.ConsecutiveDistances(ordered)

	minSpacing := spacings[0]
	for _, s := range spacings[1:] {
		if s < minSpacing {
			minSpacing = s
		}
	}

	minThresholdVoxels := v.Limits.MinContactSpacingMM / v.VoxelSizeMM
	tooClose := 0
	for _, s := range spacings {
		if s < minThresholdVoxels {
			tooClose++
		}
	}
	pctTooClose := float64(tooClose) / float64(len(spacings))

	isShaft := pctTooClose > 0.5 && len(spacings) >= 3
	return isShaft, minSpacing, pctTooClose
}

// checkIntensityProfile samples the midpoint between each consecutive
// contact pair. Real contacts show an intensity dip between them; a
// continuous bright shaft does not. Flags continuity only when more than
// 80% of at least 4 segments show no dip.
func (v *Validator) checkIntensityProfile(contacts []geometry.Point3D) (bool, float64, int) {
	if v.Volume == nil || len(contacts) < 3 {
		return false, 1.0, 0
	}
	ordered := geometry.OrderAlongAxis(contacts)

	segmentsNoDip := 0
	minDipRatio := 1.0

	for i := 0; i < len(ordered)-1; i++ {
		start := ordered[i].Round()
		end := ordered[i+1].Round()
		if !v.inBounds(start) || !v.inBounds(end) {
			continue
		}

		contactIntensity := (v.Volume.At(start.X, start.Y, start.Z) +
			v.Volume.At(end.X, end.Y, end.Z)) / 2
		if contactIntensity <= 0 {
			continue
		}

		mid := ordered[i].Mid(ordered[i+1]).Round()
		if !v.inBounds(mid) {
			continue
		}

		dipRatio := v.Volume.At(mid.X, mid.Y, mid.Z) / contactIntensity
		if dipRatio < minDipRatio {
			minDipRatio = dipRatio
		}
		if dipRatio >= 0.95 {
			segmentsNoDip++
		}
	}

	totalSegments := len(ordered) - 1
	isContinuous := totalSegments > 0 &&
		float64(segmentsNoDip)/float64(totalSegments) > 0.8 &&
		totalSegments >= 4
	return isContinuous, minDipRatio, segmentsNoDip
}

func (v *Validator) inBounds(p geometry.PointInt3) bool {
	return v.Volume != nil && v.Volume.InBounds(p.X, p.Y, p.Z)
}

// checkContactCount trims electrodes that exceed the catalog's maximum
// contact count, keeping the contacts nearest the tip in their original
// order. Outer contacts are the likely artifacts.
func (v *Validator) checkContactCount(e *DetectedElectrode) ([]geometry.Point3D, int) {
	originalCount := len(e.Contacts)
	if originalCount <= v.maxContacts {
		return append([]geometry.Point3D(nil), e.Contacts...), originalCount
	}

	tip := e.Tip.ToFloat()
	indices := make([]int, originalCount)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return e.Contacts[indices[a]].Distance(tip) < e.Contacts[indices[b]].Distance(tip)
	})

	kept := indices[:v.maxContacts]
	sort.Ints(kept)
	trimmed := make([]geometry.Point3D, len(kept))
	for i, idx := range kept {
		trimmed[i] = e.Contacts[idx]
	}
	return trimmed, originalCount
}

// checkIntensityConsistency returns the coefficient of variation and mean of
// the per-contact voxel intensities. Diagnostic only.
func (v *Validator) checkIntensityConsistency(contacts []geometry.Point3D) (float64, float64) {
	if v.Volume == nil {
		return 0.0, 0.0
	}
	var intensities []float64
	for _, c := range contacts {
		p := c.Round()
		if v.inBounds(p) {
			intensities = append(intensities, v.Volume.At(p.X, p.Y, p.Z))
		}
	}
	if len(intensities) < 2 {
		return 0.0, 0.0
	}

	var mean float64
	for _, val := range intensities {
		mean += val
	}
	mean /= float64(len(intensities))
	var variance float64
	for _, val := range intensities {
		variance += (val - mean) * (val - mean)
	}
	std := math.Sqrt(variance / float64(len(intensities)))

	if mean <= 0 {
		return 0.0, mean
	}
	return std / mean, mean
}

// checkDirection reports whether the electrode points outward: entry closer
// to the volume center than the tip suggests the trajectory is flipped
// toward the skull, a common artifact signature.
func (v *Validator) checkDirection(e *DetectedElectrode) bool {
	if v.ShapeNX == 0 && v.ShapeNY == 0 && v.ShapeNZ == 0 {
		return false
	}
	center := geometry.Point3D{
		X: float64(v.ShapeNX) / 2,
		Y: float64(v.ShapeNY) / 2,
		Z: float64(v.ShapeNZ) / 2,
	}
	tipToCenter := e.Tip.Distance(center)
	entryToCenter := e.Entry.Distance(center)
	return entryToCenter < tipToCenter
}

// isArtifact applies the rejection rules in order, short-circuiting:
// shaft detection, minimum contact count, very low linearity, and the
// combined outward-pointing plus borderline-linearity rule.
//
// SpacingCV and MaxDeviationMM are intentionally not consulted here: on the
// benchmark both flagged large shares of real electrodes, so they stay
// diagnostics only. Wiring them in would change recall against the
// validated baseline.
func (v *Validator) isArtifact(flags *QualityFlags) bool {
	if flags.IsShaft {
		return true
	}
	if flags.OriginalContacts < v.Limits.MinContactsForElectrode {
		return true
	}
	if flags.Linearity < v.Limits.MinLinearity {
		return true
	}
	if flags.PointsOutward && flags.Linearity < 0.96 {
		return true
	}
	return false
}

// CalculateConfidence recomputes the confidence from quality flags.
// Artifacts get a fixed low score; everything else is a weighted sum over
// linearity, spacing regularity, intensity consistency, direction, and how
// much trimming was needed.
func (v *Validator) CalculateConfidence(flags *QualityFlags) float64 {
	if flags.IsArtifact {
		return 0.2
	}

	score := math.Min(1.0, flags.Linearity/0.95) * 0.3
	score += math.Max(0.0, 1.0-flags.SpacingCV/v.Limits.MaxSpacingCV) * 0.25

	if flags.HasIntensity {
		score += math.Max(0.0, 1.0-flags.IntensityCV/v.Limits.MaxIntensityCV) * 0.2
	} else {
		score += 0.15
	}

	if !flags.PointsOutward {
		score += 0.15
	}

	countScore := 1.0
	if flags.OriginalContacts > 0 {
		countScore = 1.0 - float64(flags.TrimmedContacts)/float64(flags.OriginalContacts)
	}
	score += countScore * 0.1

	return score
}

// ValidateAndUpdate validates an electrode and writes the quality flags and
// recomputed confidence back onto it. When trimming applies, the contact
// list is replaced and tip/entry are refitted from the trimmed set.
func (v *Validator) ValidateAndUpdate(e *DetectedElectrode) *DetectedElectrode {
	flags := v.Validate(e)
	e.QualityFlags = flags
	e.Confidence = v.CalculateConfidence(flags)

	if flags.TrimmedContacts > 0 {
		trimmed, _ := v.checkContactCount(e)
		e.Contacts = trimmed

		if len(trimmed) > 0 {
			fit := geometry.FitAxis(trimmed)
			proj := fit.Projections(trimmed)
			tipIdx, entryIdx := 0, 0
			for i, p := range proj {
				if p < proj[tipIdx] {
					tipIdx = i
				}
				if p > proj[entryIdx] {
					entryIdx = i
				}
			}
			e.Tip = trimmed[tipIdx].Round()
			e.Entry = trimmed[entryIdx].Round()
		}
	}
	return e
}
