package volume

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/tiff"
)

// LoadSliceStack decodes a z-ordered stack of grayscale image files (TIFF,
// PNG, or JPEG) into a volume. All slices must share the same dimensions.
// Pixel luminance maps to intensity in [0, 65535].
//
// This is a convenience for offline tooling; clinical NIFTI loading is the
// responsibility of the calling application.
func LoadSliceStack(paths []string, voxelSizeMM float64) (*Volume, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no slice files given")
	}

	var vol *Volume
	for z, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open slice %s: %w", path, err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode slice %s: %w", path, err)
		}

		bounds := img.Bounds()
		w, h := bounds.Dx(), bounds.Dy()
		if vol == nil {
			vol = New(w, h, len(paths))
			if voxelSizeMM > 0 {
				vol.VoxelSizeMM = voxelSizeMM
			}
		} else if w != vol.NX || h != vol.NY {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d",
				path, w, h, vol.NX, vol.NY)
		}

		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				// Rec. 601 luma over 16-bit channels
				luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
				vol.Set(x, y, z, luma)
			}
		}
	}
	return vol, nil
}
