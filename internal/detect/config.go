// Package detect implements SEEG electrode detection: candidate contact
// extraction, spacing-aware chaining, electrode assembly, artifact
// validation, and the detection service facade.
package detect

// Config holds the detector parameters. The zero value is not useful; start
// from DefaultConfig and override as needed.
//
// Thresholds were tuned against an implanted-electrode CT benchmark:
// min contacts raised from 4 to 6 (41% of artifacts had five or fewer
// contacts) and the linearity filter raised from 0.80 to 0.85.
type Config struct {
	Threshold               float64 // Intensity threshold for metal voxels
	MinContactSize          int     // Minimum voxels for a valid contact component
	MaxContactSize          int     // Maximum voxels (filters large artifacts)
	MinContactsPerElectrode int     // Minimum contacts to form an electrode
	ClusteringEps           float64 // Max distance between contacts for DBSCAN (voxels)
	LinearityThreshold      float64 // PCA linearity filter for contact groups
	MorphologyIterations    int     // Opening iterations in classic mode
	UseAdaptiveThreshold    bool    // Adapt threshold from the intensity histogram
	PreprocessedCT          bool    // Set for electrode-isolated volumes
	LocalMaximaNeighborhood int     // Window size for local maxima detection
	UseSpacingAwareDetection bool   // Chain contacts by known spacing (primary mode)
	SpacingToleranceMM      float64 // Tolerance around expected contact spacing
	VoxelSizeMM             float64 // Voxel size; overridden by the volume when set
	SkullBaseFilterEnabled  bool    // Drop candidates near the skull base
	SkullBaseMarginPercent  float64 // Bottom percentage of the z-axis to exclude
	MaxContactsPerElectrode int     // Ceiling from known electrode definitions
}

// DefaultConfig returns the tuned default detector parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:               1400,
		MinContactSize:          5,
		MaxContactSize:          500,
		MinContactsPerElectrode: 6,
		ClusteringEps:           15.0,
		LinearityThreshold:      0.85,
		MorphologyIterations:    1,
		UseAdaptiveThreshold:    true,
		PreprocessedCT:          false,
		LocalMaximaNeighborhood: 5,
		UseSpacingAwareDetection: true,
		SpacingToleranceMM:      1.5,
		VoxelSizeMM:             0.55,
		SkullBaseFilterEnabled:  true,
		SkullBaseMarginPercent:  15,
		MaxContactsPerElectrode: 18,
	}
}

// spacingRanges are the contact-spacing bands in mm used by spacing-aware
// chaining. They cover the standard 3.5mm pitch plus the 4.3-4.9mm variants
// and the wide 6.5mm pitch.
var spacingRanges = [][2]float64{
	{2.0, 5.0},
	{3.5, 6.0},
	{5.0, 8.0},
}

// Apply returns a copy of the config with recognized keys from a flat option
// map merged in. Unrecognized keys are ignored; values of the wrong kind fall
// back to the existing setting.
func (c Config) Apply(overrides map[string]any) Config {
	for key, raw := range overrides {
		switch key {
		case "threshold":
			c.Threshold = asFloat(raw, c.Threshold)
		case "min_contact_size":
			c.MinContactSize = asInt(raw, c.MinContactSize)
		case "max_contact_size":
			c.MaxContactSize = asInt(raw, c.MaxContactSize)
		case "min_contacts_per_electrode":
			c.MinContactsPerElectrode = asInt(raw, c.MinContactsPerElectrode)
		case "clustering_eps":
			c.ClusteringEps = asFloat(raw, c.ClusteringEps)
		case "linearity_threshold":
			c.LinearityThreshold = asFloat(raw, c.LinearityThreshold)
		case "morphology_iterations":
			c.MorphologyIterations = asInt(raw, c.MorphologyIterations)
		case "use_adaptive_threshold":
			c.UseAdaptiveThreshold = asBool(raw, c.UseAdaptiveThreshold)
		case "preprocessed_ct":
			c.PreprocessedCT = asBool(raw, c.PreprocessedCT)
		case "local_maxima_neighborhood":
			c.LocalMaximaNeighborhood = asInt(raw, c.LocalMaximaNeighborhood)
		case "use_spacing_aware_detection":
			c.UseSpacingAwareDetection = asBool(raw, c.UseSpacingAwareDetection)
		case "spacing_tolerance_mm":
			c.SpacingToleranceMM = asFloat(raw, c.SpacingToleranceMM)
		case "voxel_size_mm":
			c.VoxelSizeMM = asFloat(raw, c.VoxelSizeMM)
		case "skull_base_filter_enabled":
			c.SkullBaseFilterEnabled = asBool(raw, c.SkullBaseFilterEnabled)
		case "skull_base_margin_percent":
			c.SkullBaseMarginPercent = asFloat(raw, c.SkullBaseMarginPercent)
		case "max_contacts_per_electrode":
			c.MaxContactsPerElectrode = asInt(raw, c.MaxContactsPerElectrode)
		}
	}
	return c
}

func asFloat(raw any, fallback float64) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

func asInt(raw any, fallback int) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func asBool(raw any, fallback bool) bool {
	if v, ok := raw.(bool); ok {
		return v
	}
	return fallback
}
