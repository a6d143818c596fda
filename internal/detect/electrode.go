package detect

import (
	"fmt"

	"electrode-locator/pkg/geometry"
)

// DetectedElectrode is an automatically detected electrode trajectory with
// its ordered contact positions.
//
// Contacts run from tip (deepest in brain) to entry (skull side) along the
// fitted principal axis. The validator may trim contacts and recompute
// tip/entry in place; consumers treat electrodes as read-only afterwards.
type DetectedElectrode struct {
	Tip           geometry.PointInt3 `json:"tip"`
	Entry         geometry.PointInt3 `json:"entry"`
	Contacts      []geometry.Point3D `json:"contacts"`
	Confidence    float64            `json:"confidence"`
	SuggestedName string             `json:"suggested_name,omitempty"`
	ElectrodeType string             `json:"electrode_type,omitempty"` // e.g. "Dixi-D08-10BM"; empty when unknown

	// QualityFlags is nil until the electrode passes through the validator.
	QualityFlags *QualityFlags `json:"quality_flags,omitempty"`
}

// NumContacts returns the number of detected contacts.
func (e *DetectedElectrode) NumContacts() int {
	return len(e.Contacts)
}

// Length returns the tip-to-entry trajectory length in voxels.
func (e *DetectedElectrode) Length() float64 {
	return e.Tip.ToFloat().Distance(e.Entry.ToFloat())
}

// DirectionVector returns the unit vector from tip to entry, or the zero
// vector when tip and entry coincide.
func (e *DetectedElectrode) DirectionVector() geometry.Point3D {
	dir := e.Entry.ToFloat().Sub(e.Tip.ToFloat())
	norm := dir.Norm()
	if norm > 0 {
		return dir.Scale(1 / norm)
	}
	return dir
}

// ContactsAsInt returns the contacts rounded to integer voxel coordinates.
func (e *DetectedElectrode) ContactsAsInt() []geometry.PointInt3 {
	out := make([]geometry.PointInt3, len(e.Contacts))
	for i, c := range e.Contacts {
		out[i] = c.Round()
	}
	return out
}

func (e *DetectedElectrode) String() string {
	name := e.SuggestedName
	if name == "" {
		name = "unnamed"
	}
	return fmt.Sprintf("DetectedElectrode(name=%s, contacts=%d, confidence=%.2f)",
		name, len(e.Contacts), e.Confidence)
}

// QualityFlags holds the validator's diagnostic metrics for one electrode.
//
// SpacingCV and MaxDeviationMM are recorded but deliberately excluded from
// the artifact decision; benchmarking showed they flag a large share of real
// electrodes (72% of correctly matched electrodes have spacing CV above
// 0.30), so they remain diagnostics only.
type QualityFlags struct {
	Linearity      float64 `json:"linearity"`
	MaxDeviationMM float64 `json:"max_deviation_mm"`

	SpacingCV     float64 `json:"spacing_cv"`
	MeanSpacingMM float64 `json:"mean_spacing_mm"`
	MinSpacingMM  float64 `json:"min_spacing_mm"`
	PctTooClose   float64 `json:"pct_too_close"`

	IsContinuous  bool    `json:"is_continuous"`
	MinDipRatio   float64 `json:"min_dip_ratio"`
	SegmentsNoDip int     `json:"segments_no_dip"`
	IsShaft       bool    `json:"is_shaft"`

	OriginalContacts int `json:"original_contacts"`
	TrimmedContacts  int `json:"trimmed_contacts"`

	HasIntensity  bool    `json:"has_intensity"`
	IntensityCV   float64 `json:"intensity_cv"`
	MeanIntensity float64 `json:"mean_intensity"`

	PointsOutward bool `json:"points_outward"`

	IsArtifact bool   `json:"is_artifact"`
	Reason     string `json:"reason,omitempty"`
}
