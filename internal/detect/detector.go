package detect

import (
	"electrode-locator/internal/volume"
)

// Detector locates electrode trajectories in a 3D intensity volume.
//
// Implementations are pure with respect to their inputs: the same volume and
// overrides always produce the same result, and the input volume is never
// mutated. Overrides use the flat option keys accepted by Config.Apply;
// unrecognized keys are ignored.
//
// The production set of implementations is small and closed: the classical
// CT detector here, plus an optionally injected ML-based detector owned by
// the caller (see Service).
type Detector interface {
	Detect(vol *volume.Volume, overrides map[string]any) []*DetectedElectrode
	Name() string
	SupportedModalities() []string
}

// validVolume reports whether a volume is usable for detection. Invalid
// input is a normal "nothing found" outcome, never an error, so batch
// pipelines do not crash on a bad scan.
func validVolume(vol *volume.Volume) bool {
	return vol != nil && !vol.IsEmpty()
}
