package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electrode-locator/internal/volume"
	"electrode-locator/pkg/geometry"
)

// fakeMLDetector is a canned Detector standing in for a learned model.
type fakeMLDetector struct {
	result []*DetectedElectrode
	calls  int
}

func (f *fakeMLDetector) Name() string                  { return "Fake ML Detector" }
func (f *fakeMLDetector) SupportedModalities() []string { return []string{"CT", "MRI"} }

func (f *fakeMLDetector) Detect(vol *volume.Volume, overrides map[string]any) []*DetectedElectrode {
	f.calls++
	return f.result
}

func cannedElectrode() *DetectedElectrode {
	return &DetectedElectrode{
		Tip:           geometry.PointInt3{X: 10, Y: 10, Z: 10},
		Entry:         geometry.PointInt3{X: 10, Y: 10, Z: 40},
		Contacts:      linePoints(geometry.Point3D{X: 10, Y: 10, Z: 10}, geometry.Point3D{Z: 5}, 7),
		Confidence:    0.9,
		SuggestedName: "LA",
	}
}

func TestDetectModality(t *testing.T) {
	metal := newPhantom(20, 20, 20)
	metal.Set(10, 10, 10, 2000)
	assert.Equal(t, ModalityCT, DetectModality(metal))

	air := newPhantom(20, 20, 20)
	air.Set(10, 10, 10, -500)
	assert.Equal(t, ModalityCT, DetectModality(air))

	wide := newPhantom(20, 20, 20)
	wide.Set(10, 10, 10, 2100)
	assert.Equal(t, ModalityCT, DetectModality(wide))

	// Narrow non-negative range reads as MRI
	mri := newPhantom(20, 20, 20)
	mri.Set(10, 10, 10, 800)
	assert.Equal(t, ModalityMRI, DetectModality(mri))
}

func TestServiceDetectAuto(t *testing.T) {
	svc := NewService(ServiceConfig{})
	electrodes := svc.Detect(singleChainPhantom(), ModalityAuto, MethodAuto, nil)

	require.Len(t, electrodes, 1)
	assert.Equal(t, "LP", electrodes[0].SuggestedName)
}

func TestServiceDetectInvalidVolume(t *testing.T) {
	svc := NewService(ServiceConfig{})
	assert.Empty(t, svc.Detect(nil, ModalityAuto, MethodAuto, nil))
	assert.Empty(t, svc.Detect(volume.New(0, 0, 0), ModalityAuto, MethodAuto, nil))
}

func TestServiceMLFallbackToCT(t *testing.T) {
	svc := NewService(ServiceConfig{})
	require.False(t, svc.MLAvailable())

	// Requesting the ML method without a model falls back, not fails
	electrodes := svc.Detect(singleChainPhantom(), ModalityCT, MethodML, nil)
	require.Len(t, electrodes, 1)
	assert.Equal(t, "LP", electrodes[0].SuggestedName)
}

func TestServiceInjectedMLDetector(t *testing.T) {
	fake := &fakeMLDetector{result: []*DetectedElectrode{cannedElectrode()}}
	svc := NewService(ServiceConfig{MLDetector: fake})
	require.True(t, svc.MLAvailable())

	// Explicit ML method routes to the injected detector
	electrodes := svc.Detect(singleChainPhantom(), ModalityCT, MethodML, nil)
	require.Len(t, electrodes, 1)
	assert.Equal(t, "LA", electrodes[0].SuggestedName)
	assert.Equal(t, 1, fake.calls)

	// MRI volumes route to it automatically
	mri := newPhantom(20, 20, 20)
	svc.Detect(mri, ModalityAuto, MethodAuto, nil)
	assert.Equal(t, 2, fake.calls)
}

func TestServicePreferML(t *testing.T) {
	fake := &fakeMLDetector{result: []*DetectedElectrode{cannedElectrode()}}
	svc := NewService(ServiceConfig{MLDetector: fake, PreferML: true})

	// PreferML routes even a CT volume to the injected detector
	electrodes := svc.Detect(singleChainPhantom(), ModalityCT, MethodAuto, nil)
	require.Len(t, electrodes, 1)
	assert.Equal(t, "LA", electrodes[0].SuggestedName)
	assert.Equal(t, 1, fake.calls)

	// An explicit CT method still wins over the preference
	electrodes = svc.Detect(singleChainPhantom(), ModalityCT, MethodCT, nil)
	require.Len(t, electrodes, 1)
	assert.Equal(t, "LP", electrodes[0].SuggestedName)
	assert.Equal(t, 1, fake.calls)
}

func TestServicePreferMLWithoutDetector(t *testing.T) {
	svc := NewService(ServiceConfig{PreferML: true})

	electrodes := svc.Detect(singleChainPhantom(), ModalityCT, MethodAuto, nil)
	require.Len(t, electrodes, 1)
	assert.Equal(t, "LP", electrodes[0].SuggestedName)
}

func TestServiceCTOverrides(t *testing.T) {
	// A service-level threshold override above the contact intensity
	// suppresses all detections.
	svc := NewService(ServiceConfig{CTOverrides: map[string]any{"threshold": 2500.0}})
	assert.Empty(t, svc.Detect(singleChainPhantom(), ModalityCT, MethodCT, nil))
}

func TestDetectWithRefinement(t *testing.T) {
	svc := NewService(ServiceConfig{})

	electrodes := svc.DetectWithRefinement(singleChainPhantom(), ModalityCT, 0, nil)
	require.Len(t, electrodes, 1)
	assert.Equal(t, "LP", electrodes[0].SuggestedName)
	assert.Equal(t, 8, electrodes[0].NumContacts())
}

func TestDetectWithRefinementEmpty(t *testing.T) {
	svc := NewService(ServiceConfig{})
	assert.Empty(t, svc.DetectWithRefinement(newPhantom(20, 20, 20), ModalityCT, 10, nil))
}

func TestDetectIncremental(t *testing.T) {
	vol := newPhantom(60, 60, 100)
	addChain(vol, 15, 20, 30, 8, 8)
	addChain(vol, 45, 35, 30, 8, 8)

	svc := NewService(ServiceConfig{})

	// Seed with the left chain only
	left := newPhantom(60, 60, 100)
	addChain(left, 15, 20, 30, 8, 8)
	existing := svc.Detect(left, ModalityCT, MethodCT, nil)
	require.Len(t, existing, 1)

	combined := svc.DetectIncremental(vol, existing, ModalityCT, nil)
	require.Len(t, combined, 2)
	assert.Same(t, existing[0], combined[0])
	// The second pass found only the right chain
	assert.Equal(t, 45, combined[1].Tip.X)
	assert.Equal(t, 8, combined[1].NumContacts())
}

func TestDetectIncrementalInvalidVolume(t *testing.T) {
	svc := NewService(ServiceConfig{})
	existing := []*DetectedElectrode{cannedElectrode()}
	assert.Equal(t, existing, svc.DetectIncremental(nil, existing, ModalityCT, nil))
}

func TestServiceInfo(t *testing.T) {
	svc := NewService(ServiceConfig{})
	info := svc.Info()

	require.Contains(t, info, "ct_detector")
	require.Contains(t, info, "ml_detector")
	assert.True(t, info["ct_detector"].Available)
	assert.Equal(t, []string{"CT"}, info["ct_detector"].Modalities)
	assert.False(t, info["ml_detector"].Available)
	assert.NotEmpty(t, info["ml_detector"].Reason)

	withML := NewService(ServiceConfig{MLDetector: &fakeMLDetector{}})
	assert.True(t, withML.Info()["ml_detector"].Available)
}
