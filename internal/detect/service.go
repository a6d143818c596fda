package detect

import (
	"log"

	"electrode-locator/internal/volume"
)

// Modality identifies the acquisition type of a volume.
const (
	ModalityAuto = "auto"
	ModalityCT   = "CT"
	ModalityMRI  = "MRI"
)

// Detection method selectors.
const (
	MethodAuto = "auto"
	MethodCT   = "ct"
	MethodML   = "sam"
)

// ServiceConfig configures the detection service.
type ServiceConfig struct {
	// CTOverrides are flat option keys merged into the CT detector config.
	CTOverrides map[string]any
	// PreferML routes even CT volumes to the ML detector when one is set.
	PreferML bool
	// MLDetector is an optionally injected learned detector (e.g. a SAM
	// wrapper). The service never constructs one itself; the caller owns
	// model loading and lifetime.
	MLDetector Detector
}

// Service is the high-level entry point for electrode detection. It infers
// the volume modality, selects a detector, and offers refinement and
// incremental passes on top of plain detection.
//
// A Service holds no per-call state: every Detect call is independent and
// pure with respect to its inputs, so one service may serve many volumes
// concurrently as long as each call gets its own volume.
type Service struct {
	ctDetector *CTDetector
	mlDetector Detector
	preferML   bool
}

// NewService creates a detection service. A zero ServiceConfig gives the
// default CT-only pipeline.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		ctDetector: NewCTDetector(DefaultConfig().Apply(cfg.CTOverrides)),
		mlDetector: cfg.MLDetector,
		preferML:   cfg.PreferML,
	}
}

// NewServiceWithOptions is a convenience factory for the common knobs.
func NewServiceWithOptions(preferML bool, ctThreshold float64) *Service {
	return NewService(ServiceConfig{
		PreferML:    preferML,
		CTOverrides: map[string]any{"threshold": ctThreshold},
	})
}

// MLAvailable reports whether an ML detector has been injected.
func (s *Service) MLAvailable() bool {
	return s.mlDetector != nil
}

// Detect finds electrodes in a volume. Modality and method both default to
// automatic selection; overrides pass through to the chosen detector.
// Invalid volumes yield an empty result, never an error.
func (s *Service) Detect(vol *volume.Volume, modality, method string, overrides map[string]any) []*DetectedElectrode {
	if !validVolume(vol) {
		return nil
	}

	if modality == "" || modality == ModalityAuto {
		modality = DetectModality(vol)
	}

	detector := s.selectDetector(modality, method)
	return detector.Detect(vol, overrides)
}

// DetectModality infers CT vs MRI from intensity statistics. CT volumes have
// Hounsfield units: air and water sit well below zero, metal artifacts run
// above 1500, and the dynamic range is wide. Anything else is treated as MRI.
func DetectModality(vol *volume.Volume) string {
	min, max := vol.Min(), vol.Max()

	hasNegative := min < -100
	hasMetalArtifacts := max > 1500
	wideRange := max-min > 2000

	if hasNegative || hasMetalArtifacts || wideRange {
		return ModalityCT
	}
	return ModalityMRI
}

// selectDetector picks a detector for the modality/method combination.
// An unavailable ML detector is a warning with CT fallback, never a failure.
func (s *Service) selectDetector(modality, method string) Detector {
	switch method {
	case MethodCT:
		return s.ctDetector
	case MethodML:
		if s.mlDetector == nil {
			log.Printf("ML detector requested but not available, falling back to CT detector")
			return s.ctDetector
		}
		return s.mlDetector
	}

	if s.preferML && s.mlDetector != nil {
		return s.mlDetector
	}
	if modality == ModalityMRI {
		if s.mlDetector != nil {
			return s.mlDetector
		}
		log.Printf("MRI volume but no ML detector available, using CT detector")
		return s.ctDetector
	}
	return s.ctDetector
}

// DetectWithRefinement runs detection followed by a local refinement pass:
// each coarse electrode is re-detected inside a spherical region of interest
// around its contacts and replaced by the best local result, keeping its
// assigned name and type.
func (s *Service) DetectWithRefinement(vol *volume.Volume, modality string, searchRadius int, overrides map[string]any) []*DetectedElectrode {
	initial := s.Detect(vol, modality, MethodAuto, overrides)
	if len(initial) == 0 {
		return nil
	}
	if searchRadius <= 0 {
		searchRadius = 10
	}
	return s.ctDetector.RefineDetection(vol, initial, searchRadius)
}

// DetectIncremental finds additional electrodes while preserving existing
// ones: a working copy of the volume is zeroed around every known contact
// and detection runs on the remainder. The result is existing plus new, with
// no merging beyond the exclusion itself.
func (s *Service) DetectIncremental(vol *volume.Volume, existing []*DetectedElectrode, modality string, overrides map[string]any) []*DetectedElectrode {
	if !validVolume(vol) {
		return existing
	}
	const exclusionRadius = 10

	keep := volume.NewMask(vol.NX, vol.NY, vol.NZ)
	keep.Fill(true)
	for _, electrode := range existing {
		for _, contact := range electrode.Contacts {
			keep.StampBox(int(contact.X), int(contact.Y), int(contact.Z), exclusionRadius, false)
		}
	}

	masked := vol.ZeroOutsideMask(keep)
	found := s.Detect(masked, modality, MethodAuto, overrides)

	combined := make([]*DetectedElectrode, 0, len(existing)+len(found))
	combined = append(combined, existing...)
	combined = append(combined, found...)
	return combined
}

// DetectorInfo describes one detector's availability for UI display.
type DetectorInfo struct {
	Name       string   `json:"name"`
	Available  bool     `json:"available"`
	Modalities []string `json:"modalities,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Info returns metadata about the detectors this service can use.
func (s *Service) Info() map[string]DetectorInfo {
	info := map[string]DetectorInfo{
		"ct_detector": {
			Name:       s.ctDetector.Name(),
			Available:  true,
			Modalities: s.ctDetector.SupportedModalities(),
		},
	}
	if s.mlDetector != nil {
		info["ml_detector"] = DetectorInfo{
			Name:       s.mlDetector.Name(),
			Available:  true,
			Modalities: s.mlDetector.SupportedModalities(),
		}
	} else {
		info["ml_detector"] = DetectorInfo{
			Name:      "ML Detector",
			Available: false,
			Reason:    "no ML detector injected",
		}
	}
	return info
}
