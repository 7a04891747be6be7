package visualization

import (
	"os"
	"path/filepath"
	"testing"

	"cascade/pkg/frame"
	"cascade/pkg/geometry"
	"cascade/pkg/view"
)

// newTestStack creates a stack whose counts encode x, y and time channel
func newTestStack(t *testing.T) *frame.Tof {
	t.Helper()
	g := geometry.New(6, 4, 2, 5)
	tof, err := frame.NewTof(g)
	if err != nil {
		t.Fatalf("NewTof failed: %v", err)
	}
	for f := 0; f < g.Foils; f++ {
		for tc := 0; tc < g.Timechannels; tc++ {
			for y := 0; y < g.Height; y++ {
				for x := 0; x < g.Width; x++ {
					if err := tof.Set(f, tc, x, y, uint32(f*1000+tc*100+y*10+x)); err != nil {
						t.Fatalf("Set failed: %v", err)
					}
				}
			}
		}
	}
	return tof
}

// TestExtractSlice verifies that slices are correctly extracted along every axis
func TestExtractSlice(t *testing.T) {
	viewer := NewViewer(newTestStack(t), 1)

	img, err := viewer.ExtractSlice("t", 3)
	if err != nil {
		t.Fatalf("ExtractSlice(t) failed: %v", err)
	}
	if img.Width() != 6 || img.Height() != 4 {
		t.Errorf("Expected 6x4 slice, got %dx%d", img.Width(), img.Height())
	}
	if got := img.CountAt(2, 1); got != 1312 {
		t.Errorf("Expected 1312, got %d", got)
	}

	img, err = viewer.ExtractSlice("y", 2)
	if err != nil {
		t.Fatalf("ExtractSlice(y) failed: %v", err)
	}
	if img.Width() != 6 || img.Height() != 5 {
		t.Errorf("Expected 6x5 slice, got %dx%d", img.Width(), img.Height())
	}
	if got := img.CountAt(4, 3); got != 1324 {
		t.Errorf("Expected 1324 at x=4 tc=3, got %d", got)
	}

	img, err = viewer.ExtractSlice("X", 5)
	if err != nil {
		t.Fatalf("ExtractSlice(x) failed: %v", err)
	}
	if img.Width() != 5 || img.Height() != 4 {
		t.Errorf("Expected 5x4 slice, got %dx%d", img.Width(), img.Height())
	}
	if got := img.CountAt(2, 3); got != 1235 {
		t.Errorf("Expected 1235 at tc=2 y=3, got %d", got)
	}

	if _, err := viewer.ExtractSlice("z", 0); err == nil {
		t.Error("Expected error for invalid axis")
	}
	if _, err := viewer.ExtractSlice("t", 5); err == nil {
		t.Error("Expected error for position beyond the time channels")
	}
	if _, err := NewViewer(newTestStack(t), 2).ExtractSlice("t", 0); err == nil {
		t.Error("Expected error for invalid foil")
	}
}

func TestRender(t *testing.T) {
	img, err := view.NewCountImage(2, 2, []uint32{0, 10, 5, 10})
	if err != nil {
		t.Fatalf("NewCountImage failed: %v", err)
	}
	gray, err := Render(img, false)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if v := gray.Gray16At(0, 0).Y; v != 0 {
		t.Errorf("Expected minimum to be black, got %d", v)
	}
	if v := gray.Gray16At(1, 0).Y; v != 65535 {
		t.Errorf("Expected maximum to be white, got %d", v)
	}
	if v := gray.Gray16At(0, 1).Y; v != 32768 {
		t.Errorf("Expected mid gray 32768, got %d", v)
	}

	flat, _ := view.NewCountImage(1, 2, []uint32{7, 7})
	gray, err = Render(flat, true)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if v := gray.Gray16At(0, 1).Y; v != 0 {
		t.Errorf("Expected flat image to be black, got %d", v)
	}

	if _, err := Render(&view.Image{}, false); err == nil {
		t.Error("Expected error for empty image")
	}
}

// TestSaveSliceSequence verifies that one file per slice is written
func TestSaveSliceSequence(t *testing.T) {
	viewer := NewViewer(newTestStack(t), 0)
	viewer.LogScale = true
	dir := filepath.Join(t.TempDir(), "slices")

	if err := viewer.SaveSliceSequence("t", dir); err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("Expected 5 slices, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "foil00_t_004.png")); err != nil {
		t.Errorf("Expected last slice to exist: %v", err)
	}

	img, _ := viewer.ExtractSlice("t", 0)
	jpg := filepath.Join(t.TempDir(), "slice.jpg")
	if err := SaveImage(img, false, jpg); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	if info, err := os.Stat(jpg); err != nil || info.Size() == 0 {
		t.Errorf("Expected non-empty JPEG, got %v", err)
	}
}
