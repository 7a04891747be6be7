package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"cascade/pkg/frame"
	"cascade/pkg/view"
)

// Viewer cuts one foil of a TOF stack into 2D slices. The foil is treated
// as a volume with axes x, y and t (time channel).
type Viewer struct {
	tof  *frame.Tof
	foil int

	// LogScale renders log10 of the counts
	LogScale bool
}

// NewViewer creates a viewer for one foil of tof
func NewViewer(tof *frame.Tof, foil int) *Viewer {
	return &Viewer{tof: tof, foil: foil}
}

// ExtractSlice cuts the foil at position along axis. Axis "t" yields the
// image of one time channel, "y" a width x timechannels image of one row
// and "x" a timechannels x height image of one column.
func (v *Viewer) ExtractSlice(axis string, position int) (*view.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	g := v.tof.Geometry()
	if v.foil < 0 || v.foil >= g.Foils {
		return nil, &frame.IndexError{Foil: v.foil}
	}

	switch strings.ToLower(axis) {
	case "t":
		if position >= g.Timechannels {
			return nil, fmt.Errorf("position %d exceeds time channels %d", position, g.Timechannels)
		}
		return view.Timechannel(v.tof, v.foil, position)

	case "y":
		if position >= g.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, g.Height)
		}
		counts := make([]uint32, g.Width*g.Timechannels)
		err := v.tof.Read(func(d frame.Data) error {
			for t := 0; t < g.Timechannels; t++ {
				row := d.Image(v.foil, t)[position*g.Width : (position+1)*g.Width]
				copy(counts[t*g.Width:], row)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return view.NewCountImage(g.Width, g.Timechannels, counts)

	case "x":
		if position >= g.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, g.Width)
		}
		counts := make([]uint32, g.Timechannels*g.Height)
		err := v.tof.Read(func(d frame.Data) error {
			for t := 0; t < g.Timechannels; t++ {
				img := d.Image(v.foil, t)
				for y := 0; y < g.Height; y++ {
					counts[y*g.Timechannels+t] = img[y*g.Width+position]
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return view.NewCountImage(g.Timechannels, g.Height, counts)

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or t)", axis)
	}
}

// Render maps img onto 16 bit gray levels between its minimum and maximum
func Render(img *view.Image, logScale bool) (*image.Gray16, error) {
	if img.Empty() {
		return nil, fmt.Errorf("cannot render an empty image")
	}
	src := img.Clone()
	if logScale {
		src = img.Log10()
	}
	src.UpdateRange()
	lo, hi, _ := src.Range()

	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}

	out := image.NewGray16(image.Rect(0, 0, src.Width(), src.Height()))
	for y := 0; y < src.Height(); y++ {
		for x := 0; x < src.Width(); x++ {
			level := (src.At(x, y) - lo) * scale
			if math.IsNaN(level) {
				level = 0
			}
			out.SetGray16(x, y, color.Gray16{Y: uint16(math.Max(0, math.Min(65535, math.Round(level))))})
		}
	}
	return out, nil
}

// SaveImage renders img and writes it as PNG, or as JPEG for a .jpg or
// .jpeg file name.
func SaveImage(img *view.Image, logScale bool, filename string) error {
	gray, err := Render(img, logScale)
	if err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, gray, &jpeg.Options{Quality: 90})
	default:
		return png.Encode(file, gray)
	}
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	g := v.tof.Geometry()
	var maxPos int
	switch strings.ToLower(axis) {
	case "x":
		maxPos = g.Width
	case "y":
		maxPos = g.Height
	case "t":
		maxPos = g.Timechannels
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or t)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("foil%02d_%s_%03d.png", v.foil, axis, pos))
		if err := SaveImage(img, v.LogScale, filename); err != nil {
			return err
		}
	}

	return nil
}
