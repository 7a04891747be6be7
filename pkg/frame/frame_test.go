package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cascade/pkg/geometry"
	"cascade/pkg/roi"
)

// newTestTof creates a stack whose counts encode their own coordinates.
func newTestTof(t *testing.T, g geometry.Geometry) *Tof {
	t.Helper()
	tof, err := NewTof(g)
	if err != nil {
		t.Fatalf("NewTof failed: %v", err)
	}
	for f := 0; f < g.Foils; f++ {
		for tc := 0; tc < g.Timechannels; tc++ {
			for y := 0; y < g.Height; y++ {
				for x := 0; x < g.Width; x++ {
					if err := tof.Set(f, tc, x, y, uint32(1+f*1000+tc*100+y*10+x)); err != nil {
						t.Fatalf("Set failed: %v", err)
					}
				}
			}
		}
	}
	return tof
}

func sumAll(data []uint32) uint64 {
	var s uint64
	for _, v := range data {
		s += uint64(v)
	}
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	g := geometry.New(5, 4, 3, 6)
	tof := newTestTof(t, g)

	for f := 0; f < g.Foils; f++ {
		for tc := 0; tc < g.Timechannels; tc++ {
			for y := 0; y < g.Height; y++ {
				for x := 0; x < g.Width; x++ {
					got, err := tof.Get(f, tc, x, y)
					if err != nil {
						t.Fatalf("Get failed: %v", err)
					}
					want := uint32(1 + f*1000 + tc*100 + y*10 + x)
					if got != want {
						t.Errorf("Expected %d at (%d,%d,%d,%d), got %d", want, f, tc, x, y, got)
					}
				}
			}
		}
	}
}

func TestIndexOutOfRange(t *testing.T) {
	tof := newTestTof(t, geometry.New(4, 4, 2, 2))

	cases := [][4]int{{2, 0, 0, 0}, {0, 2, 0, 0}, {0, 0, 4, 0}, {0, 0, 0, -1}}
	for _, c := range cases {
		_, err := tof.Get(c[0], c[1], c[2], c[3])
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Expected ErrIndexOutOfRange for %v, got %v", c, err)
		}
		var ie *IndexError
		if !errors.As(err, &ie) || ie.X != c[2] {
			t.Errorf("Expected IndexError with coordinates for %v, got %v", c, err)
		}
	}
	if err := tof.Set(0, 0, 9, 9, 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange from Set, got %v", err)
	}
}

func TestNonCompressedAddressing(t *testing.T) {
	g := geometry.New(2, 2, 2, 3)
	g.ImageCount = 10
	g.FoilBegin = []int{0, 5}
	tof, err := NewTof(g)
	if err != nil {
		t.Fatalf("NewTof failed: %v", err)
	}

	if err := tof.Set(1, 2, 1, 1, 42); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := tof.GetImage(7, 1, 1)
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if v != 42 {
		t.Errorf("Expected foil 1 tc 2 in stored image 7, got %d", v)
	}

	// Images between the foils belong to no foil but count towards the total.
	if err := tof.SetImage(4, 0, 0, 1000); err != nil {
		t.Fatalf("SetImage failed: %v", err)
	}
	total, _ := tof.TotalCounts()
	if total != 1042 {
		t.Errorf("Expected total 1042, got %d", total)
	}
	var foils uint64
	for f := 0; f < g.Foils; f++ {
		n, _ := tof.FoilCounts(f)
		foils += n
	}
	if foils != 42 {
		t.Errorf("Expected foil counts 42, got %d", foils)
	}
}

func TestTotalCountsWithGaps(t *testing.T) {
	g := geometry.New(4, 4, 2, 2)
	g.ImageCount = 6
	g.FoilBegin = []int{0, 3}
	tof, err := NewTof(g)
	if err != nil {
		t.Fatalf("NewTof failed: %v", err)
	}
	_ = tof.SetImage(2, 1, 1, 100)
	_ = tof.Set(1, 0, 2, 3, 5)

	var want uint64
	_ = tof.Read(func(d Data) error {
		want = sumAll(d.Counts)
		return nil
	})
	if want != 105 {
		t.Fatalf("Expected raw buffer sum 105, got %d", want)
	}
	if got, _ := tof.TotalCounts(); got != want {
		t.Errorf("Expected total %d, got %d", want, got)
	}

	tof.SetRoi(roi.New(roi.Rectangle{Min: roi.Point{X: 0, Y: 0}, Max: roi.Point{X: 2, Y: 2}}))
	tof.UseRoi(true)
	if got, _ := tof.TotalCounts(); got != 100 {
		t.Errorf("Expected masked total 100, got %d", got)
	}
}

func TestTotalCountsWithRoi(t *testing.T) {
	g := geometry.New(8, 6, 2, 4)
	tof := newTestTof(t, g)

	var want uint64
	_ = tof.Read(func(d Data) error {
		want = sumAll(d.Counts)
		return nil
	})

	got, err := tof.TotalCounts()
	if err != nil {
		t.Fatalf("TotalCounts failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected total %d without roi, got %d", want, got)
	}

	tof.SetRoi(roi.New(roi.Rectangle{Min: roi.Point{X: 0, Y: 0}, Max: roi.Point{X: 8, Y: 6}}))
	tof.UseRoi(true)
	got, _ = tof.TotalCounts()
	if got != want {
		t.Errorf("Expected total %d with full-frame roi, got %d", want, got)
	}

	empty := roi.New(roi.Circle{Center: roi.Point{X: 4, Y: 3}, Radius: 2})
	_ = empty.SetEnabled(0, false)
	tof.SetRoi(empty)
	got, _ = tof.TotalCounts()
	if got != 0 {
		t.Errorf("Expected total 0 with empty roi, got %d", got)
	}

	tof.UseRoi(false)
	got, _ = tof.TotalCounts()
	if got != want {
		t.Errorf("Expected total %d with masking off, got %d", want, got)
	}
}

func TestGetInsideRoiAndFoilCounts(t *testing.T) {
	g := geometry.New(4, 4, 2, 2)
	tof := newTestTof(t, g)
	tof.SetRoi(roi.New(roi.Rectangle{Min: roi.Point{X: 0, Y: 0}, Max: roi.Point{X: 2, Y: 2}}))
	tof.UseRoi(true)

	v, _ := tof.GetInsideRoi(0, 0, 3, 3)
	if v != 0 {
		t.Errorf("Expected 0 outside roi, got %d", v)
	}
	v, _ = tof.GetInsideRoi(1, 1, 1, 1)
	if v != 1+1000+100+10+1 {
		t.Errorf("Expected raw value inside roi, got %d", v)
	}

	// foil 1, 2 time channels, pixels (0,0),(1,0),(0,1),(1,1)
	var want uint64
	for tc := 0; tc < 2; tc++ {
		for _, p := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
			want += uint64(1 + 1000 + tc*100 + p[1]*10 + p[0])
		}
	}
	got, err := tof.FoilCounts(1)
	if err != nil {
		t.Fatalf("FoilCounts failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected foil counts %d, got %d", want, got)
	}

	region, _ := tof.RegionCounts(image.Rect(3, 3, 10, 10))
	var wantRegion uint64
	for f := 0; f < 2; f++ {
		for tc := 0; tc < 2; tc++ {
			wantRegion += uint64(1 + f*1000 + tc*100 + 33)
		}
	}
	if region != wantRegion {
		t.Errorf("Expected region counts %d ignoring roi, got %d", wantRegion, region)
	}
}

func TestSubtract(t *testing.T) {
	g := geometry.New(6, 5, 2, 3)
	tof := newTestTof(t, g)

	if err := tof.Subtract(tof, 1.0); err != nil {
		t.Fatalf("Subtract failed: %v", err)
	}
	total, _ := tof.TotalCounts()
	if total != 0 {
		t.Errorf("Expected all zero after subtracting self, got total %d", total)
	}

	a := newTestTof(t, g)
	b := newTestTof(t, g)
	if err := a.Subtract(b, 0.5); err != nil {
		t.Fatalf("Subtract failed: %v", err)
	}
	v, _ := a.Get(1, 2, 3, 4)
	orig := uint32(1 + 1000 + 200 + 40 + 3)
	if want := orig - uint32(float64(orig)*0.5+0.5); v != want {
		t.Errorf("Expected %d after half subtraction, got %d", want, v)
	}

	other := newTestTof(t, geometry.New(6, 5, 2, 4))
	if err := a.Subtract(other, 1); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	g := geometry.New(7, 3, 2, 4)
	g.ImageCount = 12
	g.FoilBegin = []int{0, 6}
	g.PseudoCompression = false

	tof, err := NewTofRandom(g, 7)
	if err != nil {
		t.Fatalf("NewTofRandom failed: %v", err)
	}
	tof.SetMetadata("wavelength", "5.3")
	tof.SetMetadata("sample", "Fe-12")

	path := filepath.Join(t.TempDir(), "frame.tof")
	if err := tof.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	loaded, err := LoadTofFile(path)
	if err != nil {
		t.Fatalf("LoadTofFile failed: %v", err)
	}
	if !loaded.Geometry().Equal(g) {
		t.Errorf("Expected geometry %v, got %v", g, loaded.Geometry())
	}

	_, want, _ := tof.snapshot()
	_, got, _ := loaded.snapshot()
	if len(got) != len(want) {
		t.Fatalf("Expected %d counts, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Count %d differs: expected %d, got %d", i, want[i], got[i])
		}
	}

	meta := loaded.Metadata()
	if meta["wavelength"] != "5.3" || meta["sample"] != "Fe-12" {
		t.Errorf("Expected metadata to survive, got %v", meta)
	}
}

func TestLoadBigEndian(t *testing.T) {
	pad, _ := NewPad(3, 2)
	for i := 0; i < 6; i++ {
		_ = pad.Set(i%3, i/3, uint32(0x01000000+i))
	}
	le, _ := pad.MarshalBinary()

	// Re-encode every word after the magic in big endian.
	be := append([]byte(nil), le...)
	for off := 4; off < len(be); off += 4 {
		binary.BigEndian.PutUint32(be[off:], binary.LittleEndian.Uint32(le[off:]))
	}

	loaded, err := LoadPadBytes(be)
	if err != nil {
		t.Fatalf("LoadPadBytes failed: %v", err)
	}
	for i := 0; i < 6; i++ {
		v, _ := loaded.Get(i%3, i/3)
		if v != uint32(0x01000000+i) {
			t.Errorf("Expected 0x%08x, got 0x%08x", 0x01000000+i, v)
		}
	}
}

func TestFailedLoadKeepsData(t *testing.T) {
	tof := newTestTof(t, geometry.New(4, 4, 1, 2))
	before, _ := tof.TotalCounts()

	good, _ := tof.MarshalBinary()
	if err := tof.LoadBytes(good[:len(good)-4]); !errors.Is(err, ErrLoad) {
		t.Fatalf("Expected ErrLoad for truncated data, got %v", err)
	}
	if tof.Ok() {
		t.Error("Expected store to be invalid after failed load")
	}
	if _, err := tof.Get(0, 0, 0, 0); !errors.Is(err, ErrLoad) {
		t.Errorf("Expected reads to fail with ErrLoad, got %v", err)
	}
	if _, err := tof.TotalCounts(); !errors.Is(err, ErrLoad) {
		t.Errorf("Expected TotalCounts to fail with ErrLoad, got %v", err)
	}

	if err := tof.LoadBytes(good); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	after, _ := tof.TotalCounts()
	if after != before {
		t.Errorf("Expected total %d after reload, got %d", before, after)
	}

	if _, err := LoadTofFile(filepath.Join(t.TempDir(), "missing.tof")); !errors.Is(err, ErrLoad) {
		t.Errorf("Expected ErrLoad for missing file, got %v", err)
	}

	pad, _ := NewPad(4, 4)
	if err := pad.LoadBytes(good); !errors.Is(err, ErrLoad) {
		t.Errorf("Expected ErrLoad when loading tof data into pad, got %v", err)
	}
}

func TestLoadRaw(t *testing.T) {
	g := geometry.New(2, 2, 1, 2)
	tof, _ := NewTof(g)

	raw := make([]byte, g.ExpectedByteCount(geometry.TOF))
	for i := 0; i < len(raw)/4; i++ {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(i+1))
	}
	if err := tof.LoadRaw(raw); err != nil {
		t.Fatalf("LoadRaw failed: %v", err)
	}
	v, _ := tof.Get(0, 1, 1, 1)
	if v != 8 {
		t.Errorf("Expected 8, got %d", v)
	}

	if err := tof.LoadRaw(raw[:len(raw)-4]); !errors.Is(err, ErrLoad) {
		t.Errorf("Expected ErrLoad for short payload, got %v", err)
	}
}

func TestExternalBuffer(t *testing.T) {
	data := []uint32{1, 2, 3, 4, 5, 6}
	pad, err := NewPadExternal(3, 2, data)
	if err != nil {
		t.Fatalf("NewPadExternal failed: %v", err)
	}
	if !pad.IsExternal() {
		t.Error("Expected external store")
	}

	data[4] = 50
	v, _ := pad.Get(1, 1)
	if v != 50 {
		t.Errorf("Expected store to reference caller memory, got %d", v)
	}

	pad.Clear()
	pad.Close()
	if data[0] != 1 {
		t.Errorf("Expected caller memory to be left alone, got %d", data[0])
	}

	if _, err := NewPadExternal(3, 3, data); !errors.Is(err, ErrLoad) {
		t.Errorf("Expected ErrLoad for short external buffer, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tof := newTestTof(t, geometry.New(3, 3, 1, 2))
	c := tof.Clone()
	_ = c.Set(0, 0, 0, 0, 999)

	v, _ := tof.Get(0, 0, 0, 0)
	if v == 999 {
		t.Error("Expected clone to own its memory")
	}
}

func TestDatRoundTrip(t *testing.T) {
	g := geometry.New(4, 3, 2, 3)
	tof := newTestTof(t, g)

	var buf bytes.Buffer
	if err := tof.SaveDat(&buf, -1); err != nil {
		t.Fatalf("SaveDat failed: %v", err)
	}
	loaded, err := LoadDat(&buf)
	if err != nil {
		t.Fatalf("LoadDat failed: %v", err)
	}
	if !loaded.Geometry().Equal(g) {
		t.Errorf("Expected geometry %v, got %v", g, loaded.Geometry())
	}
	want, _ := tof.TotalCounts()
	got, _ := loaded.TotalCounts()
	if got != want {
		t.Errorf("Expected total %d, got %d", want, got)
	}

	buf.Reset()
	if err := tof.SaveDat(&buf, 1); err != nil {
		t.Fatalf("SaveDat for one foil failed: %v", err)
	}
	single, err := LoadDat(&buf)
	if err != nil {
		t.Fatalf("LoadDat failed: %v", err)
	}
	f0, _ := single.FoilCounts(0)
	f1, _ := single.FoilCounts(1)
	w1, _ := tof.FoilCounts(1)
	if f0 != 0 || f1 != w1 {
		t.Errorf("Expected only foil 1 (%d), got foil0=%d foil1=%d", w1, f0, f1)
	}
}

func TestSaveTcs(t *testing.T) {
	tof := newTestTof(t, geometry.New(2, 2, 2, 3))

	var buf bytes.Buffer
	if err := tof.SaveTcs(&buf); err != nil {
		t.Fatalf("SaveTcs failed: %v", err)
	}
	want := "# timechannels 3\n# foils 2\n0 26 4026\n1 426 4426\n2 826 4826\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}

	tof.SetRoi(roi.New(roi.Rectangle{Min: roi.Point{X: 0, Y: 0}, Max: roi.Point{X: 1, Y: 1}}))
	tof.UseRoi(true)
	buf.Reset()
	if err := tof.SaveTcs(&buf); err != nil {
		t.Fatalf("SaveTcs failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("\n2 201 1201\n")) {
		t.Errorf("Expected masked sums for pixel (0,0), got %q", buf.String())
	}
}

// tofHeader builds a binary TOF header with a single foil starting at image 0.
func tofHeader(width, height, foils, timechannels, images uint32) []byte {
	b := make([]byte, 0, tofHeaderSize+4)
	b = append(b, magicTof[:]...)
	for _, v := range []uint32{byteOrderMark, width, height, foils, timechannels, images, 0, 0} {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}

func TestLoadRejectsMalformedHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"huge image", tofHeader(1<<31, 1<<31, 1, 1, 4)},
		{"image above limit", tofHeader(geometry.MaxImageSide+1, 2, 1, 1, 1)},
		{"too many images", tofHeader(2, 2, 1, 1, geometry.MaxImages+1)},
		{"largest image without payload", tofHeader(geometry.MaxImageSide, geometry.MaxImageSide, 1, 1, 1)},
		{"odd payload", append(tofHeader(1, 1, 1, 1, 1), 1, 2, 3)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadTofBytes(tc.data); !errors.Is(err, ErrLoad) {
				t.Errorf("Expected load error, got %v", err)
			}
		})
	}

	good := append(tofHeader(1, 1, 1, 1, 1), 7, 0, 0, 0)
	tof, err := LoadTofBytes(good)
	if err != nil {
		t.Fatalf("LoadTofBytes failed: %v", err)
	}
	if v, _ := tof.Get(0, 0, 0, 0); v != 7 {
		t.Errorf("Expected 7, got %d", v)
	}
}

func TestLoadDatRejectsMalformedHeader(t *testing.T) {
	dat := func(width, height, foils, tcs, counts string) string {
		return "# kind tof\n# width " + width + "\n# height " + height +
			"\n# foils " + foils + "\n# timechannels " + tcs +
			"\n# foil 0 timechannel 0\n" + counts + "\n"
	}
	tests := []struct {
		name string
		text string
	}{
		{"huge image", dat("2147483648", "2147483648", "1", "1", "1 2")},
		{"huge stack", dat("2", "1", "2147483648", "1", "1 2")},
		{"negative width", dat("-2", "1", "1", "1", "1 2")},
		{"too many counts", dat("2", "1", "1", "1", "1 2 3")},
		{"too few counts", dat("2", "1", "1", "1", "1")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadDat(strings.NewReader(tc.text)); !errors.Is(err, ErrLoad) {
				t.Errorf("Expected load error, got %v", err)
			}
		})
	}

	tof, err := LoadDat(strings.NewReader(dat("2", "1", "1", "1", "1 2")))
	if err != nil {
		t.Fatalf("LoadDat failed: %v", err)
	}
	if total, _ := tof.TotalCounts(); total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}
}

func TestPadDatFile(t *testing.T) {
	pad, _ := NewPadRandom(5, 4, 3)
	path := filepath.Join(t.TempDir(), "pad.dat")
	if err := pad.SaveDatFile(path); err != nil {
		t.Fatalf("SaveDatFile failed: %v", err)
	}

	in, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer in.Close()
	loaded, err := LoadPadDat(in)
	if err != nil {
		t.Fatalf("LoadPadDat failed: %v", err)
	}
	want, _ := pad.TotalCounts()
	got, _ := loaded.TotalCounts()
	if got != want {
		t.Errorf("Expected total %d, got %d", want, got)
	}
}

func TestGenerateRandomModulation(t *testing.T) {
	g := geometry.New(16, 16, 4, 8)
	tof, err := NewTofRandom(g, 1)
	if err != nil {
		t.Fatalf("NewTofRandom failed: %v", err)
	}
	total, _ := tof.TotalCounts()
	if total == 0 {
		t.Fatal("Expected simulated counts")
	}

	// Foil 0 peaks near t = T/4 and dips near 3T/4.
	var peak, dip uint64
	_ = tof.Read(func(d Data) error {
		peak = sumAll(d.Image(0, 2))
		dip = sumAll(d.Image(0, 6))
		return nil
	})
	if peak <= dip {
		t.Errorf("Expected modulated counts, got peak %d <= dip %d", peak, dip)
	}
}
