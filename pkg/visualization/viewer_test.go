package visualization

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"lungqct/internal/models"
	"lungqct/pkg/sampler"
)

// testVolume builds a volume whose axial slices step from -1000 HU upwards
func testVolume(width, height, depth int) *models.Volume {
	vol := models.NewVolume(models.Shape{Width: width, Height: height, Depth: depth}, models.Spacing{X: 1, Y: 1, Z: 1})
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Data[vol.Shape.Index(x, y, z)] = int16(-1000 + 300*z)
			}
		}
	}
	return vol
}

// TestExtractSlice verifies slice sizes and the HU window mapping
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(testVolume(width, height, depth))

	cases := []struct {
		axis string
		pos  int
		w, h int
	}{
		{"x", 3, depth, height},
		{"y", 2, width, depth},
		{"z", 4, width, height},
	}
	for _, tc := range cases {
		img, err := viewer.ExtractSlice(tc.axis, tc.pos)
		if err != nil {
			t.Fatalf("ExtractSlice(%s, %d): %v", tc.axis, tc.pos, err)
		}
		if img.Bounds().Dx() != tc.w || img.Bounds().Dy() != tc.h {
			t.Errorf("axis %s: expected %dx%d, got %dx%d", tc.axis, tc.w, tc.h, img.Bounds().Dx(), img.Bounds().Dy())
		}
	}

	// -1000 HU is black, 200 HU and above is white
	first, _ := viewer.ExtractSlice("z", 0)
	if got := first.GrayAt(0, 0).Y; got != 0 {
		t.Errorf("expected black at window low, got %d", got)
	}
	last, _ := viewer.ExtractSlice("z", 4)
	if got := last.GrayAt(0, 0).Y; got != 255 {
		t.Errorf("expected white above window high, got %d", got)
	}
}

// TestExtractSliceInvalid verifies that bad axes and positions are rejected
func TestExtractSliceInvalid(t *testing.T) {
	viewer := NewViewer(testVolume(4, 4, 2))

	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Error("expected error for invalid axis")
	}
	if _, err := viewer.ExtractSlice("z", 2); err == nil {
		t.Error("expected error for position beyond depth")
	}
	if _, err := viewer.ExtractSlice("x", -1); err == nil {
		t.Error("expected error for negative position")
	}
	if err := viewer.SetWindow(100, -100); err == nil {
		t.Error("expected error for inverted window")
	}
}

// TestPreview verifies the overlay size and that tinted voxels differ from the slice
func TestPreview(t *testing.T) {
	vol := testVolume(6, 6, 3)
	mask := models.NewMask(vol.Shape)
	mask.Set(1, 1, 1, 10)
	mask.Set(2, 1, 1, 10)
	mask.Set(4, 4, 0, 10)

	rule, err := sampler.RuleFor(models.Right)
	if err != nil {
		t.Fatal(err)
	}
	z, ok := CentralSlice(mask, rule)
	if !ok || z != 1 {
		t.Fatalf("expected central slice 1, got %d (%v)", z, ok)
	}

	img, err := NewViewer(vol).Preview(mask, rule, z, 3)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 18, 18) {
		t.Errorf("expected 18x18 preview, got %v", img.Bounds())
	}

	r0, g0, b0, _ := img.At(0, 0).RGBA()
	r1, g1, b1, _ := img.At(4, 4).RGBA() // voxel (1, 1) scaled by 3
	if r0 == r1 && g0 == g1 && b0 == b1 {
		t.Error("expected tinted voxel to differ from background")
	}

	path := filepath.Join(t.TempDir(), "previews", "preview.png")
	if err := SaveImage(img, path); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("saved preview is not a PNG: %v", err)
	}
}

// TestPreviewShapeMismatch verifies that a foreign mask is rejected
func TestPreviewShapeMismatch(t *testing.T) {
	vol := testVolume(4, 4, 2)
	mask := models.NewMask(models.Shape{Width: 2, Height: 2, Depth: 2})
	rule, _ := sampler.RuleFor(models.Bilateral)

	if _, err := NewViewer(vol).Preview(mask, rule, 0, 1); err == nil {
		t.Error("expected shape mismatch error")
	}
}
