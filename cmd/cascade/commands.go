package main

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cascade/pkg/fit"
	"cascade/pkg/frame"
	"cascade/pkg/geometry"
	"cascade/pkg/protocol"
	"cascade/pkg/roi"
	"cascade/pkg/view"
	"cascade/pkg/visualization"
)

var (
	outPath  string
	logScale bool

	overviewFoil    int
	overviewTc      int
	overviewOnlyRoi bool
	overviewSlices  string
	overviewAxis    string

	phaseFoil    int
	contrastFoil int
	graphFoil    int

	graphRect        []int
	graphUnderground string
	graphMult        float64

	radialCenter     []float64
	radialAngleStep  float64
	radialRadiusStep float64
	radialMaxRadius  float64
	radialByAngle    bool
	radialMean       bool

	replaySaveTof string
	replaySavePad string

	generateKind    string
	generateSeed    uint64
	generateCapture string
	generateDat     bool
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Print geometry, counts and metadata of a frame file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if tof, err := loadTof(args[0]); err == nil {
				total, err := tof.TotalCounts()
				if err != nil {
					return err
				}
				g := tof.Geometry()
				fmt.Fprintf(out, "Kind:     tof\nGeometry: %s\nCounts:   %d\n", g, total)
				for f := 0; f < g.Foils; f++ {
					n, err := tof.FoilCounts(f)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  foil %d: %d\n", f, n)
				}
				printMetadata(cmd, tof.Metadata())
				return nil
			}

			pad, err := loadPad(args[0])
			if err != nil {
				return err
			}
			total, err := pad.TotalCounts()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Kind:     pad\nSize:     %dx%d\nCounts:   %d\n", pad.Width(), pad.Height(), total)
			printMetadata(cmd, pad.Metadata())
			return nil
		},
	}
}

func printMetadata(cmd *cobra.Command, meta map[string]string) {
	for k, v := range meta {
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, v)
	}
}

func newOverviewCmd() *cobra.Command {
	overviewCmd := &cobra.Command{
		Use:   "overview FILE",
		Short: "Sum a TOF stack (or one foil or time channel) into an image",
		Args:  cobra.ExactArgs(1),
		RunE:  runOverviewCmd,
	}
	overviewCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (.xml, .dat, .png, .jpg); stdout when empty")
	overviewCmd.Flags().BoolVar(&logScale, "log", false, "logarithmic scale")
	overviewCmd.Flags().IntVar(&overviewFoil, "foil", -1, "foil to show (-1: all)")
	overviewCmd.Flags().IntVar(&overviewTc, "tc", -1, "time channel to show (needs --foil)")
	overviewCmd.Flags().BoolVar(&overviewOnlyRoi, "only-roi", false, "zero pixels outside the region of interest")
	overviewCmd.Flags().StringVar(&overviewSlices, "slices", "", "write every slice of --foil into this directory")
	overviewCmd.Flags().StringVar(&overviewAxis, "axis", "t", "slice axis for --slices (x, y or t)")
	return overviewCmd
}

func runOverviewCmd(cmd *cobra.Command, args []string) error {
	tof, err := loadTof(args[0])
	if err != nil {
		img, perr := loadImage(args[0])
		if perr != nil {
			return perr
		}
		return writeImage(cmd.OutOrStdout(), img, outPath, logScale)
	}

	if overviewSlices != "" {
		if overviewFoil < 0 {
			return fmt.Errorf("--slices needs --foil")
		}
		viewer := visualization.NewViewer(tof, overviewFoil)
		viewer.LogScale = logScale
		if err := viewer.SaveSliceSequence(overviewAxis, overviewSlices); err != nil {
			return err
		}
		log.Info("Slices saved", zap.String("dir", overviewSlices), zap.String("axis", overviewAxis))
		return nil
	}

	var img *view.Image
	switch {
	case overviewFoil >= 0 && overviewTc >= 0:
		img, err = view.Timechannel(tof, overviewFoil, overviewTc)
	case overviewFoil >= 0:
		img, err = view.Foil(tof, overviewFoil, overviewOnlyRoi)
	default:
		img, err = view.Overview(tof, overviewOnlyRoi)
	}
	if err != nil {
		return err
	}
	return writeImage(cmd.OutOrStdout(), img, outPath, logScale)
}

func newPhaseCmd() *cobra.Command {
	phaseCmd := &cobra.Command{
		Use:   "phase FILE",
		Short: "Fit every pixel of a foil and write the phase image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFitImage(cmd, args[0], phaseFoil, view.Phase, view.SumPhases)
		},
	}
	phaseCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (.xml, .dat, .png, .jpg); stdout when empty")
	phaseCmd.Flags().IntVar(&phaseFoil, "foil", 0, "foil to fit (-1: sum over all foils)")
	return phaseCmd
}

func newContrastCmd() *cobra.Command {
	contrastCmd := &cobra.Command{
		Use:   "contrast FILE",
		Short: "Fit every pixel of a foil and write the contrast image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFitImage(cmd, args[0], contrastFoil, view.Contrast, view.SumContrasts)
		},
	}
	contrastCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (.xml, .dat, .png, .jpg); stdout when empty")
	contrastCmd.Flags().IntVar(&contrastFoil, "foil", 0, "foil to fit (-1: sum over all foils)")
	return contrastCmd
}

func runFitImage(cmd *cobra.Command, path string, foil int,
	one func(*frame.Tof, int, view.FitOptions) (*view.Image, error),
	sum func(*frame.Tof, []bool, view.FitOptions) (*view.Image, error)) error {
	tof, err := loadTof(path)
	if err != nil {
		return err
	}

	opts := fitOptions()
	var img *view.Image
	if foil < 0 {
		foils := make([]bool, tof.Geometry().Foils)
		for i := range foils {
			foils[i] = true
		}
		img, err = sum(tof, foils, opts)
	} else {
		img, err = one(tof, foil, opts)
	}
	if err != nil {
		return err
	}
	log.Debug("Pixel fits done", zap.String("command", cmd.Name()), zap.Int("workers", opts.Workers))
	return writeImage(cmd.OutOrStdout(), img, outPath, false)
}

func newGraphCmd() *cobra.Command {
	graphCmd := &cobra.Command{
		Use:   "graph FILE",
		Short: "Sum a region over the time channels and fit the oscillation",
		Args:  cobra.ExactArgs(1),
		RunE:  runGraphCmd,
	}
	graphCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the graph to this file")
	graphCmd.Flags().IntVar(&graphFoil, "foil", -1, "foil (-1: phase aligned sum of all foils)")
	graphCmd.Flags().IntSliceVar(&graphRect, "rect", nil, "region x0,y0,x1,y1 (default: whole image)")
	graphCmd.Flags().StringVar(&graphUnderground, "underground", "", "TOF file whose offset is subtracted")
	graphCmd.Flags().Float64Var(&graphMult, "mult", 1, "factor for the underground offset")
	return graphCmd
}

func runGraphCmd(cmd *cobra.Command, args []string) error {
	tof, err := loadTof(args[0])
	if err != nil {
		return err
	}
	g := tof.Geometry()
	rect := image.Rect(0, 0, g.Width, g.Height)
	if len(graphRect) > 0 {
		if len(graphRect) != 4 {
			return fmt.Errorf("--rect needs four values, got %d", len(graphRect))
		}
		rect = image.Rect(graphRect[0], graphRect[1], graphRect[2], graphRect[3])
	}

	opts := fit.SinusoidOptions{Settings: cfg.Fit}
	graph, err := foilGraph(tof, rect, opts)
	if err != nil {
		return err
	}

	var ug *view.Graph
	if graphUnderground != "" {
		ugTof, err := loadTof(graphUnderground)
		if err != nil {
			return fmt.Errorf("failed to load underground: %w", err)
		}
		if ug, err = foilGraph(ugTof, rect, opts); err != nil {
			return err
		}
	}

	if err := writeGraph(cmd.OutOrStdout(), graph, outPath); err != nil {
		return err
	}

	c, err := graph.Contrast(ug, graphMult, opts)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Fit failed: %v\n", err)
		return nil
	}
	phase, phaseErr := c.Phase, c.PhaseErr
	unit := "rad"
	if cfg.Processing.PhaseInDegrees {
		phase, phaseErr, unit = phase*180/math.Pi, phaseErr*180/math.Pi, "deg"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Counts:   %d\nContrast: %.4f +- %.4f\nPhase:    %.4f +- %.4f %s\n",
		graph.Sum(), c.Contrast, c.ContrastErr, phase, phaseErr, unit)
	return nil
}

func foilGraph(tof *frame.Tof, rect image.Rectangle, opts fit.SinusoidOptions) (*view.Graph, error) {
	if graphFoil >= 0 {
		return view.GraphOf(tof, rect, graphFoil, false)
	}
	return view.TotalGraph(tof, rect, cfg.FoilPhases(), opts)
}

func newBeamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "beam FILE",
		Short: "Fit a 2D Gaussian to the overview to find the beam centre",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadImage(args[0])
			if err != nil {
				return err
			}
			res, err := view.BeamCenter(img, cfg.Fit)
			if err != nil {
				return fmt.Errorf("beam centre fit failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Center:    (%.3f, %.3f)\nSpread:    (%.3f, %.3f)\nAmplitude: %.3f\n",
				res.CenterX, res.CenterY, res.SpreadX, res.SpreadY, res.Amplitude)
			return nil
		},
	}
}

func newRadialCmd() *cobra.Command {
	radialCmd := &cobra.Command{
		Use:   "radial FILE",
		Short: "Integrate an image over circles or sectors around a centre",
		Args:  cobra.ExactArgs(1),
		RunE:  runRadialCmd,
	}
	radialCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the graph to this file")
	radialCmd.Flags().Float64SliceVar(&radialCenter, "center", nil, "centre x,y (default: fitted beam centre)")
	radialCmd.Flags().Float64Var(&radialAngleStep, "angle-step", 10, "angle bin width in degrees")
	radialCmd.Flags().Float64Var(&radialRadiusStep, "radius-step", 1, "radius bin width in pixels")
	radialCmd.Flags().Float64Var(&radialMaxRadius, "max-radius", 0, "maximum radius (0: largest circle inside the image)")
	radialCmd.Flags().BoolVar(&radialByAngle, "by-angle", false, "bin by angle instead of radius")
	radialCmd.Flags().BoolVar(&radialMean, "mean", false, "average instead of sum")
	return radialCmd
}

func runRadialCmd(cmd *cobra.Command, args []string) error {
	img, err := loadImage(args[0])
	if err != nil {
		return err
	}

	var center roi.Point
	switch len(radialCenter) {
	case 2:
		center = roi.Point{X: radialCenter[0], Y: radialCenter[1]}
	case 0:
		res, err := view.BeamCenter(img, cfg.Fit)
		if err != nil {
			return fmt.Errorf("no --center given and beam centre fit failed: %w", err)
		}
		center = roi.Point{X: res.CenterX, Y: res.CenterY}
		log.Info("Using fitted beam centre", zap.Float64("x", center.X), zap.Float64("y", center.Y))
	default:
		return fmt.Errorf("--center needs two values, got %d", len(radialCenter))
	}

	axis := view.ByRadius
	if radialByAngle {
		axis = view.ByAngle
	}
	graph, err := view.RadialIntegration(img, view.RadialOptions{
		Center:     center,
		AngleStep:  radialAngleStep * math.Pi / 180,
		RadiusStep: radialRadiusStep,
		MaxRadius:  radialMaxRadius,
		Axis:       axis,
		Mean:       radialMean,
	})
	if err != nil {
		return err
	}
	return writeGraph(cmd.OutOrStdout(), graph, outPath)
}

func newReplayCmd() *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay CAPTURE",
		Short: "Feed recorded server messages through the protocol adapter",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayCmd,
	}
	replayCmd.Flags().StringVar(&replaySaveTof, "save-tof", "", "save the last TOF stack to this file")
	replayCmd.Flags().StringVar(&replaySavePad, "save-pad", "", "save the last PAD image to this file")
	return replayCmd
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	g, err := cfg.Geometry()
	if err != nil {
		return err
	}
	adapter, err := protocol.New(protocol.Options{
		Geometry:         g,
		KnownResolutions: cfg.Detector.KnownResolutions,
		Compressed:       cfg.Transport.Compressed,
		MaxPayload:       cfg.Transport.MaxPayload,
	}, log)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	var gotTof, gotPad bool
	err = adapter.Replay(protocol.NewCaptureReader(f, 0), func(ev protocol.Event, err error) error {
		if err != nil {
			fmt.Fprintf(out, "error:  %v\n", err)
			return nil
		}
		switch e := ev.(type) {
		case protocol.PadUpdated:
			gotPad = true
			total, _ := adapter.Pad().TotalCounts()
			fmt.Fprintf(out, "pad:    %d counts (reinit %v)\n", total, e.Reinit)
		case protocol.TofUpdated:
			gotTof = true
			total, _ := adapter.Tof().TotalCounts()
			fmt.Fprintf(out, "tof:    %d counts, %s (reinit %v)\n", total, adapter.Geometry(), e.Reinit)
		case protocol.StatusUpdated:
			fmt.Fprintf(out, "status: running=%v time=%g mode=%s clients=%d\n",
				e.Status.Running, e.Status.Time, e.Status.Mode, e.Status.Clients)
		case protocol.Acknowledged:
			fmt.Fprintln(out, "okay")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if replaySaveTof != "" && gotTof {
		if err := adapter.Tof().SaveFile(replaySaveTof); err != nil {
			return err
		}
	}
	if replaySavePad != "" && gotPad {
		if err := adapter.Pad().SaveFile(replaySavePad); err != nil {
			return err
		}
	}
	return nil
}

func newTcsCmd() *cobra.Command {
	tcsCmd := &cobra.Command{
		Use:   "tcs FILE",
		Short: "Write the counts of every time channel and foil",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tof, err := loadTof(args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				return tof.SaveTcs(cmd.OutOrStdout())
			}
			return tof.SaveTcsFile(outPath)
		},
	}
	tcsCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file; stdout when empty")
	return tcsCmd
}

func newCorrectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct FILE OUT",
		Short: "Align the phase of every pixel to its foil and save the stack",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tof, err := loadTof(args[0])
			if err != nil {
				return err
			}
			corrected, err := view.AreaPhaseCorrect(tof, fitOptions())
			if err != nil {
				return err
			}
			if isDat(args[1]) {
				err = corrected.SaveDatFile(args[1], -1)
			} else {
				err = corrected.SaveFile(args[1])
			}
			if err != nil {
				return err
			}
			log.Info("Phase corrected stack saved", zap.String("path", args[1]))
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate FILE",
		Short: "Write a random frame with a modulated beam spot",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerateCmd,
	}
	generateCmd.Flags().StringVar(&generateKind, "kind", "tof", "frame kind (tof or pad)")
	generateCmd.Flags().Uint64Var(&generateSeed, "seed", 1, "random seed")
	generateCmd.Flags().StringVar(&generateCapture, "capture", "", "also write the frame as a server message capture")
	generateCmd.Flags().BoolVar(&generateDat, "dat", false, "write DAT text instead of binary")
	return generateCmd
}

func runGenerateCmd(cmd *cobra.Command, args []string) error {
	g, err := cfg.Geometry()
	if err != nil {
		return err
	}

	var (
		payload []byte
		tag     string
	)
	switch strings.ToLower(generateKind) {
	case "tof":
		tof, err := frame.NewTofRandom(g, generateSeed)
		if err != nil {
			return err
		}
		tof.SetMetadata("generator", "cascade generate")
		if generateDat {
			err = tof.SaveDatFile(args[0], -1)
		} else {
			err = tof.SaveFile(args[0])
		}
		if err != nil {
			return err
		}
		payload, tag = rawCounts(tof.Read), protocol.TagTof
	case "pad":
		pad, err := frame.NewPadRandom(g.Width, g.Height, generateSeed)
		if err != nil {
			return err
		}
		if generateDat {
			err = pad.SaveDatFile(args[0])
		} else {
			err = pad.SaveFile(args[0])
		}
		if err != nil {
			return err
		}
		payload, tag = rawCounts(pad.Read), protocol.TagImage
	default:
		return fmt.Errorf("unknown kind %q (must be tof or pad)", generateKind)
	}
	log.Info("Frame generated", zap.String("path", args[0]), zap.String("kind", generateKind), zap.Stringer("geometry", g))

	if generateCapture == "" {
		return nil
	}
	if cfg.Transport.Compressed {
		if payload, err = protocol.Compress(payload); err != nil {
			return err
		}
	}
	mode := protocol.ModeTof
	if tag == protocol.TagImage {
		mode = protocol.ModePad
	}
	status := fmt.Sprintf("stop=0 mode=%s xres=%d yres=%d", mode, g.Width, g.Height)
	return writeFile(generateCapture, func(w io.Writer) error {
		if err := protocol.WriteCapture(w, protocol.TagStatus, []byte(status)); err != nil {
			return err
		}
		return protocol.WriteCapture(w, tag, payload)
	})
}

// rawCounts encodes the counts of a store the way the server sends them.
func rawCounts(read func(func(frame.Data) error) error) []byte {
	var out []byte
	_ = read(func(d frame.Data) error {
		out = make([]byte, geometry.BytesPerCount*len(d.Counts))
		for i, v := range d.Counts {
			out[4*i] = byte(v)
			out[4*i+1] = byte(v >> 8)
			out[4*i+2] = byte(v >> 16)
			out[4*i+3] = byte(v >> 24)
		}
		return nil
	})
	return out
}
