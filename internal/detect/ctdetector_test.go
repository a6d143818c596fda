package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electrode-locator/internal/volume"
	"electrode-locator/pkg/geometry"
)

// newPhantom builds a synthetic head volume with uniform soft-tissue
// background, onto which contact chains are stamped.
func newPhantom(nx, ny, nz int) *volume.Volume {
	vol := volume.New(nx, ny, nz)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				vol.Set(x, y, z, 50)
			}
		}
	}
	return vol
}

// addChain stamps n metal-bright contacts as 3x3x3 cubes along the z-axis.
func addChain(vol *volume.Volume, x, y, zStart, stepZ, n int) {
	for i := 0; i < n; i++ {
		z := zStart + i*stepZ
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					vol.Set(x+dx, y+dy, z+dz, 2000)
				}
			}
		}
	}
}

func singleChainPhantom() *volume.Volume {
	vol := newPhantom(60, 60, 100)
	addChain(vol, 15, 20, 30, 8, 8)
	return vol
}

func TestDetectSingleElectrode(t *testing.T) {
	detector := NewCTDetector(DefaultConfig())
	electrodes := detector.Detect(singleChainPhantom(), nil)

	require.Len(t, electrodes, 1)
	e := electrodes[0]
	assert.Equal(t, 8, e.NumContacts())
	assert.Equal(t, geometry.PointInt3{X: 15, Y: 20, Z: 30}, e.Tip)
	assert.Equal(t, geometry.PointInt3{X: 15, Y: 20, Z: 86}, e.Entry)
	assert.Equal(t, "LP", e.SuggestedName)
	// 8 voxels at 0.55mm is a 4.4mm pitch, the BM variant
	assert.Equal(t, "Dixi-D08-08BM", e.ElectrodeType)
	assert.InDelta(t, 0.86, e.Confidence, 1e-9)
}

func TestDetectTwoElectrodes(t *testing.T) {
	vol := newPhantom(60, 60, 100)
	addChain(vol, 15, 20, 30, 8, 8)
	addChain(vol, 45, 35, 30, 8, 8)

	detector := NewCTDetector(DefaultConfig())
	electrodes := detector.Detect(vol, nil)

	require.Len(t, electrodes, 2)
	names := []string{electrodes[0].SuggestedName, electrodes[1].SuggestedName}
	assert.Contains(t, names, "LP")
	assert.Contains(t, names, "RA")
	assert.NotEqual(t, names[0], names[1])
	for _, e := range electrodes {
		assert.Equal(t, 8, e.NumContacts())
		assert.InDelta(t, 0.86, e.Confidence, 1e-9)
	}
}

func TestDetectDeterministic(t *testing.T) {
	vol := newPhantom(60, 60, 100)
	addChain(vol, 15, 20, 30, 8, 8)
	addChain(vol, 45, 35, 30, 8, 8)

	detector := NewCTDetector(DefaultConfig())
	first := detector.Detect(vol, nil)
	second := detector.Detect(vol, nil)

	assert.Equal(t, first, second)
}

func TestDetectSortedByConfidence(t *testing.T) {
	vol := newPhantom(60, 60, 100)
	addChain(vol, 15, 20, 30, 8, 8) // 8 contacts
	addChain(vol, 45, 35, 30, 8, 6) // 6 contacts scores lower

	detector := NewCTDetector(DefaultConfig())
	electrodes := detector.Detect(vol, nil)

	require.Len(t, electrodes, 2)
	assert.Equal(t, 8, electrodes[0].NumContacts())
	assert.Equal(t, 6, electrodes[1].NumContacts())
	assert.GreaterOrEqual(t, electrodes[0].Confidence, electrodes[1].Confidence)
}

func TestDetectTipAndEntryMatchContacts(t *testing.T) {
	detector := NewCTDetector(DefaultConfig())
	electrodes := detector.Detect(singleChainPhantom(), nil)

	require.Len(t, electrodes, 1)
	e := electrodes[0]
	assert.Equal(t, e.Contacts[0].Round(), e.Tip)
	assert.Equal(t, e.Contacts[len(e.Contacts)-1].Round(), e.Entry)
	assert.LessOrEqual(t, e.Tip.Z, e.Entry.Z)
}

func TestDetectTooFewContacts(t *testing.T) {
	vol := newPhantom(60, 60, 100)
	addChain(vol, 15, 20, 30, 8, 4) // below the 6-contact minimum

	detector := NewCTDetector(DefaultConfig())
	assert.Empty(t, detector.Detect(vol, nil))
}

func TestDetectThresholdOverride(t *testing.T) {
	vol := singleChainPhantom()
	detector := NewCTDetector(DefaultConfig())

	require.Len(t, detector.Detect(vol, nil), 1)

	// Raising the threshold above the contact intensity finds nothing.
	// 2500 adapts down to 0.8x = 2000, and candidates must exceed it.
	electrodes := detector.Detect(vol, map[string]any{"threshold": 2500.0})
	assert.Empty(t, electrodes)
}

func TestDetectEmptyAndNilVolume(t *testing.T) {
	detector := NewCTDetector(DefaultConfig())

	assert.Empty(t, detector.Detect(nil, nil))
	assert.Empty(t, detector.Detect(volume.New(0, 0, 0), nil))
	assert.Empty(t, detector.Detect(volume.New(20, 20, 20), nil)) // all zero
}

func TestDetectClassicMode(t *testing.T) {
	detector := NewCTDetector(DefaultConfig())
	electrodes := detector.Detect(singleChainPhantom(), map[string]any{
		"use_spacing_aware_detection": false,
	})

	require.Len(t, electrodes, 1)
	e := electrodes[0]
	assert.Equal(t, 8, e.NumContacts())
	assert.Equal(t, "LP", e.SuggestedName)
	assert.InDelta(t, 0.86, e.Confidence, 1e-9)
}

func TestDetectVoxelSizeOverride(t *testing.T) {
	detector := NewCTDetector(DefaultConfig())

	// At 1.0mm voxels the same 8-voxel pitch reads as 8mm, the CM variant.
	electrodes := detector.Detect(singleChainPhantom(), map[string]any{
		"voxel_size_mm": 1.0,
	})
	require.Len(t, electrodes, 1)
	assert.Equal(t, "Dixi-D08-08CM", electrodes[0].ElectrodeType)
}

func TestDetectWithROI(t *testing.T) {
	vol := newPhantom(60, 60, 100)
	addChain(vol, 15, 20, 30, 8, 8)
	addChain(vol, 45, 35, 30, 8, 8)

	roi := volume.NewMask(60, 60, 100)
	for i := 0; i < 8; i++ {
		roi.StampSphere(15, 20, 30+i*8, 10, true)
	}

	detector := NewCTDetector(DefaultConfig())
	electrodes := detector.DetectWithROI(vol, roi, nil)

	require.Len(t, electrodes, 1)
	assert.Equal(t, 15, electrodes[0].Tip.X)
	// Input volume untouched
	assert.Equal(t, 2000.0, vol.At(45, 35, 30))
}

func TestRefineDetectionKeepsIdentity(t *testing.T) {
	vol := singleChainPhantom()
	detector := NewCTDetector(DefaultConfig())

	initial := detector.Detect(vol, nil)
	require.Len(t, initial, 1)

	refined := detector.RefineDetection(vol, initial, 10)
	require.Len(t, refined, 1)
	assert.Equal(t, initial[0].SuggestedName, refined[0].SuggestedName)
	assert.Equal(t, initial[0].ElectrodeType, refined[0].ElectrodeType)
	assert.Equal(t, 8, refined[0].NumContacts())
}

func TestRefineDetectionEmptyLocalKeepsOriginal(t *testing.T) {
	vol := newPhantom(60, 60, 100)
	detector := NewCTDetector(DefaultConfig())

	// Initial electrode placed where the volume has no metal at all.
	stale := &DetectedElectrode{
		Tip:           geometry.PointInt3{X: 30, Y: 30, Z: 40},
		Entry:         geometry.PointInt3{X: 30, Y: 30, Z: 60},
		Contacts:      linePoints(geometry.Point3D{X: 30, Y: 30, Z: 40}, geometry.Point3D{Z: 5}, 5),
		SuggestedName: "RA",
	}

	refined := detector.RefineDetection(vol, []*DetectedElectrode{stale}, 10)
	require.Len(t, refined, 1)
	assert.Same(t, stale, refined[0])
}

func TestDetermineThreshold(t *testing.T) {
	detector := NewCTDetector(DefaultConfig())

	t.Run("fixed", func(t *testing.T) {
		params := DefaultConfig()
		params.UseAdaptiveThreshold = false
		assert.Equal(t, 1400.0, detector.determineThreshold(singleChainPhantom(), params))
	})

	t.Run("adaptive standard CT", func(t *testing.T) {
		// p95 of positives is the 50-intensity background, so the
		// threshold bottoms out at 0.8x the configured value.
		got := detector.determineThreshold(singleChainPhantom(), DefaultConfig())
		assert.InDelta(t, 1120.0, got, 1e-9)
	})

	t.Run("no bright voxels falls back to base", func(t *testing.T) {
		vol := newPhantom(20, 20, 20)
		assert.Equal(t, 1400.0, detector.determineThreshold(vol, DefaultConfig()))
	})

	t.Run("preprocessed uses high percentile floored at base", func(t *testing.T) {
		params := DefaultConfig()
		params.PreprocessedCT = true
		got := detector.determineThreshold(singleChainPhantom(), params)
		assert.GreaterOrEqual(t, got, params.Threshold)
	})
}

func TestConfigApply(t *testing.T) {
	base := DefaultConfig()

	merged := base.Apply(map[string]any{
		"threshold":                  1600.0,
		"min_contacts_per_electrode": 4,
		"preprocessed_ct":            true,
		"bogus_key":                  "ignored",
		"clustering_eps":             "wrong type",
	})

	assert.Equal(t, 1600.0, merged.Threshold)
	assert.Equal(t, 4, merged.MinContactsPerElectrode)
	assert.True(t, merged.PreprocessedCT)
	assert.Equal(t, base.ClusteringEps, merged.ClusteringEps)
	// Value receiver, the base config is untouched
	assert.Equal(t, 1400.0, base.Threshold)
}

func TestInferElectrodeType(t *testing.T) {
	assert.Equal(t, "Dixi-D08-08AM", InferElectrodeType(8, 3.5))
	assert.Equal(t, "Dixi-D08-08BM", InferElectrodeType(8, 4.4))
	assert.Equal(t, "Dixi-D08-18CM", InferElectrodeType(18, 4.9))
	// Off-catalog counts snap to the nearest valid count
	assert.Equal(t, "Dixi-D08-08CM", InferElectrodeType(9, 6.5))
	assert.Equal(t, "Dixi-D08-05AM", InferElectrodeType(2, 3.5))
}
