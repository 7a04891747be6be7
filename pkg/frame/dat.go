package frame

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"cascade/pkg/geometry"
)

// The DAT export is a whitespace separated text dump for external analysis
// tools:
//
//	# kind tof
//	# width 64
//	# height 64
//	# foils 8
//	# timechannels 16
//	# foil 0 timechannel 0
//	<height rows of width counts>
//	# foil 0 timechannel 1
//	...

// SaveDat writes the stack as text. A negative foil writes all foils.
func (t *Tof) SaveDat(w io.Writer, foil int) error {
	return t.Read(func(d Data) error {
		g := d.Geometry
		if foil >= g.Foils {
			return &IndexError{Foil: foil}
		}
		bw := bufio.NewWriter(w)
		writeDatHeader(bw, geometry.TOF, g)
		for f := 0; f < g.Foils; f++ {
			if foil >= 0 && f != foil {
				continue
			}
			for tc := 0; tc < g.Timechannels; tc++ {
				fmt.Fprintf(bw, "# foil %d timechannel %d\n", f, tc)
				writeDatImage(bw, d.Image(f, tc), g.Width)
			}
		}
		return bw.Flush()
	})
}

// SaveDatFile writes the text dump to path.
func (t *Tof) SaveDatFile(path string, foil int) error {
	return saveDat(path, func(w io.Writer) error { return t.SaveDat(w, foil) })
}

// SaveTcs writes the time channel sums as text: one line per time channel
// holding its index and the counts of every foil summed over the image,
// honouring the region when masking is on.
func (t *Tof) SaveTcs(w io.Writer) error {
	return t.Read(func(d Data) error {
		g := d.Geometry
		bw := bufio.NewWriter(w)
		fmt.Fprintf(bw, "# timechannels %d\n# foils %d\n", g.Timechannels, g.Foils)
		for tc := 0; tc < g.Timechannels; tc++ {
			bw.WriteString(strconv.Itoa(tc))
			for f := 0; f < g.Foils; f++ {
				var sum uint64
				for p, v := range d.Image(f, tc) {
					if d.Inside(p) {
						sum += uint64(v)
					}
				}
				bw.WriteByte(' ')
				bw.WriteString(strconv.FormatUint(sum, 10))
			}
			bw.WriteByte('\n')
		}
		return bw.Flush()
	})
}

// SaveTcsFile writes the time channel sums to path.
func (t *Tof) SaveTcsFile(path string) error {
	return saveDat(path, t.SaveTcs)
}

// SaveDat writes the image as text.
func (p *Pad) SaveDat(w io.Writer) error {
	return p.Read(func(d Data) error {
		bw := bufio.NewWriter(w)
		writeDatHeader(bw, geometry.PAD, d.Geometry)
		fmt.Fprintf(bw, "# foil 0 timechannel 0\n")
		writeDatImage(bw, d.Counts, d.Geometry.Width)
		return bw.Flush()
	})
}

// SaveDatFile writes the text dump to path.
func (p *Pad) SaveDatFile(path string) error {
	return saveDat(path, p.SaveDat)
}

func saveDat(path string, write func(io.Writer) error) error {
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

func writeDatHeader(w *bufio.Writer, kind geometry.Kind, g geometry.Geometry) {
	fmt.Fprintf(w, "# kind %s\n", kind)
	fmt.Fprintf(w, "# width %d\n", g.Width)
	fmt.Fprintf(w, "# height %d\n", g.Height)
	fmt.Fprintf(w, "# foils %d\n", g.Foils)
	fmt.Fprintf(w, "# timechannels %d\n", g.Timechannels)
}

func writeDatImage(w *bufio.Writer, pixels []uint32, width int) {
	for i, v := range pixels {
		w.WriteString(strconv.FormatUint(uint64(v), 10))
		if (i+1)%width == 0 {
			w.WriteByte('\n')
		} else {
			w.WriteByte(' ')
		}
	}
}

// LoadDat reads a TOF text dump. Images missing from a single-foil export
// stay zero.
func LoadDat(r io.Reader) (*Tof, error) {
	kind, g, images, err := parseDat(r)
	if err != nil {
		return nil, err
	}
	if kind != geometry.TOF {
		return nil, &LoadError{Reason: fmt.Sprintf("dat holds a %s frame", kind)}
	}
	t, err := NewTof(g)
	if err != nil {
		return nil, err
	}
	ppi := g.PixelsPerImage()
	for img, pixels := range images {
		copy(t.buf.data[g.ImageIndex(img[0], img[1])*ppi:], pixels)
	}
	return t, nil
}

// LoadPadDat reads a PAD text dump.
func LoadPadDat(r io.Reader) (*Pad, error) {
	kind, g, images, err := parseDat(r)
	if err != nil {
		return nil, err
	}
	if kind != geometry.PAD {
		return nil, &LoadError{Reason: fmt.Sprintf("dat holds a %s frame", kind)}
	}
	p, err := NewPad(g.Width, g.Height)
	if err != nil {
		return nil, err
	}
	copy(p.buf.data, images[[2]int{0, 0}])
	return p, nil
}

func parseDat(r io.Reader) (geometry.Kind, geometry.Geometry, map[[2]int][]uint32, error) {
	var (
		kind    geometry.Kind
		header  = map[string]int{}
		images  = map[[2]int][]uint32{}
		current []uint32
		key     [2]int
		g       geometry.Geometry
	)

	flush := func() error {
		if current == nil {
			return nil
		}
		if len(current) != g.PixelsPerImage() {
			return fmt.Errorf("image %v has %d counts, expected %d", key, len(current), g.PixelsPerImage())
		}
		images[key] = current
		current = nil
		return nil
	}
	fail := func(line int, err error) (geometry.Kind, geometry.Geometry, map[[2]int][]uint32, error) {
		return 0, g, nil, &LoadError{Reason: fmt.Sprintf("dat line %d: %v", line, err)}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			fields := strings.Fields(strings.TrimPrefix(line, "#"))
			switch {
			case len(fields) == 2 && fields[0] == "kind":
				if fields[1] == geometry.PAD.String() {
					kind = geometry.PAD
				} else {
					kind = geometry.TOF
				}
			case len(fields) == 4 && fields[0] == "foil" && fields[2] == "timechannel":
				if err := flush(); err != nil {
					return fail(n, err)
				}
				if g.Width == 0 {
					var err error
					if g, err = datGeometry(header); err != nil {
						return fail(n, err)
					}
				}
				f, err1 := strconv.Atoi(fields[1])
				tc, err2 := strconv.Atoi(fields[3])
				if err1 != nil || err2 != nil || !g.InRange(f, tc, 0, 0) {
					return fail(n, fmt.Errorf("invalid image marker %q", line))
				}
				key = [2]int{f, tc}
				current = []uint32{}
			case len(fields) == 2:
				v, err := strconv.Atoi(fields[1])
				if err != nil {
					return fail(n, err)
				}
				header[fields[0]] = v
			}
			continue
		}
		if current == nil {
			return fail(n, fmt.Errorf("counts before image marker"))
		}
		for _, field := range strings.Fields(line) {
			v, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return fail(n, err)
			}
			if len(current) == g.PixelsPerImage() {
				return fail(n, fmt.Errorf("image %v has more than %d counts", key, g.PixelsPerImage()))
			}
			current = append(current, uint32(v))
		}
	}
	if err := sc.Err(); err != nil {
		return 0, g, nil, &LoadError{Reason: err.Error()}
	}
	if err := flush(); err != nil {
		return 0, g, nil, &LoadError{Reason: err.Error()}
	}
	if g.Width == 0 {
		return 0, g, nil, &LoadError{Reason: "dat holds no images"}
	}
	return kind, g, images, nil
}

// datGeometry checks the header sizes before anything is allocated for them.
func datGeometry(header map[string]int) (geometry.Geometry, error) {
	w, h := header["width"], header["height"]
	foils, tcs := header["foils"], header["timechannels"]
	if w < 1 || h < 1 || w > geometry.MaxImageSide || h > geometry.MaxImageSide {
		return geometry.Geometry{}, fmt.Errorf("invalid image size %dx%d", w, h)
	}
	if foils < 1 || tcs < 1 || foils > geometry.MaxImages || tcs > geometry.MaxImages {
		return geometry.Geometry{}, fmt.Errorf("invalid stack size: %d foils, %d time channels", foils, tcs)
	}
	g := geometry.New(w, h, foils, tcs)
	if err := g.Validate(); err != nil {
		return geometry.Geometry{}, err
	}
	return g, nil
}
