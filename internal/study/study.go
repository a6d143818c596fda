// Package study provides detection session file handling and persistence.
package study

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"electrode-locator/internal/detect"
)

// File represents a saved electrode detection session (.seegstudy). It
// records where the volume came from, how detection was configured, and the
// resulting electrodes, so a session can be reloaded and re-refined without
// re-running the full pipeline.
type File struct {
	Version  int       `json:"version"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	Modality    string  `json:"modality,omitempty"`
	VoxelSizeMM float64 `json:"voxel_size_mm,omitempty"`

	// SlicesGlob locates the source slice images, relative to the study
	// file when not absolute.
	SlicesGlob string `json:"slices_glob,omitempty"`

	// Overrides are the detector options the session was run with.
	Overrides map[string]any `json:"overrides,omitempty"`

	Electrodes []*detect.DetectedElectrode `json:"electrodes,omitempty"`
}

// New creates an empty study with the given name.
func New(name string) *File {
	now := time.Now()
	return &File{
		Version:  1,
		Name:     name,
		Created:  now,
		Modified: now,
	}
}

// Load reads a study from a .seegstudy file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read study: %w", err)
	}

	var s File
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse study %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the study to a file, updating its modification time.
func (s *File) Save(path string) error {
	s.Modified = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SetSlicesGlob records the slice source, relative to the study file when
// possible.
func (s *File) SetSlicesGlob(studyPath, glob string) {
	rel, err := filepath.Rel(filepath.Dir(studyPath), glob)
	if err != nil {
		s.SlicesGlob = glob
	} else {
		s.SlicesGlob = rel
	}
	s.Modified = time.Now()
}

// SlicesGlobFor returns the slice glob resolved against the study location.
func (s *File) SlicesGlobFor(studyPath string) string {
	if s.SlicesGlob == "" || filepath.IsAbs(s.SlicesGlob) {
		return s.SlicesGlob
	}
	return filepath.Join(filepath.Dir(studyPath), s.SlicesGlob)
}

// SetResults stores a detection result set on the study.
func (s *File) SetResults(modality string, voxelSizeMM float64, overrides map[string]any, electrodes []*detect.DetectedElectrode) {
	s.Modality = modality
	s.VoxelSizeMM = voxelSizeMM
	s.Overrides = overrides
	s.Electrodes = electrodes
	s.Modified = time.Now()
}
