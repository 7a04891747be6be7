package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"cascade/pkg/fit"
	"cascade/pkg/frame"
	"cascade/pkg/roi"
	"cascade/pkg/view"
	"cascade/pkg/visualization"
)

func isDat(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".dat")
}

// loadTof reads a binary or DAT stack and applies the region of interest
func loadTof(path string) (*frame.Tof, error) {
	var (
		tof *frame.Tof
		err error
	)
	if isDat(path) {
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
		tof, err = frame.LoadDat(f)
	} else {
		tof, err = frame.LoadTofFile(path)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("TOF loaded", zap.String("path", path), zap.Stringer("geometry", tof.Geometry()))

	r, err := loadRoi()
	if err != nil {
		return nil, err
	}
	if r != nil {
		tof.SetRoi(r)
		tof.UseRoi(true)
	}
	return tof, nil
}

// loadPad reads a binary or DAT PAD image and applies the region of interest
func loadPad(path string) (*frame.Pad, error) {
	var (
		pad *frame.Pad
		err error
	)
	if isDat(path) {
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
		pad, err = frame.LoadPadDat(f)
	} else {
		pad, err = frame.LoadPadFile(path)
	}
	if err != nil {
		return nil, err
	}

	r, err := loadRoi()
	if err != nil {
		return nil, err
	}
	if r != nil {
		pad.SetRoi(r)
		pad.UseRoi(true)
	}
	return pad, nil
}

func loadRoi() (*roi.Roi, error) {
	if roiPath == "" {
		return nil, nil
	}
	r, err := roi.LoadFile(roiPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load roi: %w", err)
	}
	log.Debug("ROI loaded", zap.String("path", roiPath), zap.Int("elements", r.Len()))
	return r, nil
}

// loadImage reduces a file to one image: the overview of a TOF stack or a
// PAD image.
func loadImage(path string) (*view.Image, error) {
	tof, err := loadTof(path)
	if err == nil {
		return view.Overview(tof, tof.UsesRoi())
	}
	pad, perr := loadPad(path)
	if perr != nil {
		return nil, fmt.Errorf("%s is neither a TOF stack (%v) nor a PAD image (%v)", path, err, perr)
	}
	return view.FromPad(pad)
}

func fitOptions() view.FitOptions {
	return view.FitOptions{
		Sinusoid:  fit.SinusoidOptions{Settings: cfg.Fit},
		Degrees:   cfg.Processing.PhaseInDegrees,
		Workers:   cfg.Processing.NumCores,
		MinCounts: cfg.Processing.MinCounts,
	}
}

func xmlHeader() view.XMLHeader {
	e := cfg.Export
	return view.XMLHeader{
		SampleDetector: e.SampleDetector,
		Wavelength:     e.Wavelength,
		Lifetime:       e.Lifetime,
		BeamMonitor:    e.BeamMonitor,
		Instrument:     e.InstrumentName,
		Location:       e.Location,
	}
}

// writeImage saves img by file extension: .xml, .png, .jpg or DAT text.
// An empty path prints DAT text to w.
func writeImage(w io.Writer, img *view.Image, path string, logScale bool) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		if err := visualization.SaveImage(img, logScale, path); err != nil {
			return err
		}
		log.Info("Image saved", zap.String("path", path))
		return nil
	}
	if logScale {
		img = img.Log10()
	}
	if path == "" {
		return img.SaveDat(w)
	}

	err := writeFile(path, func(f io.Writer) error {
		if strings.EqualFold(filepath.Ext(path), ".xml") {
			return img.WriteXML(f, xmlHeader())
		}
		return img.SaveDat(f)
	})
	if err != nil {
		return err
	}
	log.Info("Image saved", zap.String("path", path))
	return nil
}

func writeGraph(w io.Writer, g *view.Graph, path string) error {
	if path == "" {
		return g.Save(w)
	}
	return writeFile(path, g.Save)
}

// writeFile creates path, fills it with write and closes it exactly once.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
