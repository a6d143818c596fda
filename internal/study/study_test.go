package study

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electrode-locator/internal/detect"
	"electrode-locator/pkg/geometry"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patient01.seegstudy")

	s := New("patient01")
	s.SetResults("CT", 0.55, map[string]any{"threshold": 1600.0}, []*detect.DetectedElectrode{
		{
			Tip:           geometry.PointInt3{X: 15, Y: 20, Z: 30},
			Entry:         geometry.PointInt3{X: 15, Y: 20, Z: 86},
			Confidence:    0.86,
			SuggestedName: "LP",
			ElectrodeType: "Dixi-D08-08BM",
		},
	})
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, "patient01", loaded.Name)
	assert.Equal(t, "CT", loaded.Modality)
	assert.Equal(t, 0.55, loaded.VoxelSizeMM)
	require.Len(t, loaded.Electrodes, 1)
	assert.Equal(t, "LP", loaded.Electrodes[0].SuggestedName)
	assert.Equal(t, geometry.PointInt3{X: 15, Y: 20, Z: 30}, loaded.Electrodes[0].Tip)
	assert.False(t, loaded.Modified.Before(loaded.Created))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.seegstudy"))
	assert.Error(t, err)
}

func TestSlicesGlobResolution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.seegstudy")

	s := New("p")
	s.SetSlicesGlob(path, filepath.Join(dir, "slices", "*.tiff"))
	assert.Equal(t, filepath.Join("slices", "*.tiff"), s.SlicesGlob)
	assert.Equal(t, filepath.Join(dir, "slices", "*.tiff"), s.SlicesGlobFor(path))
}
