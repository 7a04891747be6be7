package geometry

import (
	"testing"
)

func TestExpectedByteCount(t *testing.T) {
	g := New(64, 64, 8, 16)

	if got := g.ExpectedByteCount(PAD); got != 4*64*64 {
		t.Errorf("Expected PAD byte count %d, got %d", 4*64*64, got)
	}
	if got := g.ExpectedByteCount(TOF); got != 4*8*16*64*64 {
		t.Errorf("Expected TOF byte count %d, got %d", 4*8*16*64*64, got)
	}

	// the non-compressed encoding uses the configured image count
	g.ImageCount = 196
	g.FoilBegin = []int{0, 16, 32, 48, 98, 114, 130, 146}
	if err := g.Validate(); err != nil {
		t.Fatalf("Unexpected validation error: %v", err)
	}
	if got := g.ExpectedByteCount(TOF); got != 4*196*64*64 {
		t.Errorf("Expected TOF byte count %d, got %d", 4*196*64*64, got)
	}

	g.PseudoCompression = true
	if got := g.ExpectedByteCount(TOF); got != 4*8*16*64*64 {
		t.Errorf("Expected pseudo-compressed byte count %d, got %d", 4*8*16*64*64, got)
	}
}

func TestImageIndex(t *testing.T) {
	g := New(4, 4, 2, 3)
	g.ImageCount = 10
	g.FoilBegin = []int{0, 5}

	if idx := g.ImageIndex(1, 2); idx != 7 {
		t.Errorf("Expected image 7, got %d", idx)
	}
	g.PseudoCompression = true
	if idx := g.ImageIndex(1, 2); idx != 5 {
		t.Errorf("Expected image 5, got %d", idx)
	}

	if off := g.Index(1, 2, 3, 1); off != ((1*3+2)*4+1)*4+3 {
		t.Errorf("Unexpected linear index %d", off)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		geom    Geometry
		wantErr bool
	}{
		{"default", New(16, 16, 2, 4), false},
		{"zero width", New(0, 16, 2, 4), true},
		{"zero foils", New(16, 16, 0, 4), true},
		{"foil outside stack", Geometry{Width: 4, Height: 4, Foils: 2, Timechannels: 4, ImageCount: 6, FoilBegin: []int{0, 4}}, true},
		{"short layout", Geometry{Width: 4, Height: 4, Foils: 2, Timechannels: 4, ImageCount: 8, FoilBegin: []int{0}}, true},
		{"largest image", Geometry{Width: MaxImageSide, Height: MaxImageSide, Foils: 1, Timechannels: 1, PseudoCompression: true}, false},
		{"huge width", Geometry{Width: MaxImageSide + 1, Height: 4, Foils: 1, Timechannels: 1, PseudoCompression: true}, true},
		{"huge stack", Geometry{Width: 4, Height: 4, Foils: 1 << 12, Timechannels: 1 << 12, PseudoCompression: true}, true},
		{"huge image count", Geometry{Width: 4, Height: 4, Foils: 1, Timechannels: 1, ImageCount: MaxImages + 1, FoilBegin: []int{0}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.geom.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestWithImageCount(t *testing.T) {
	g := New(8, 8, 4, 16)

	larger := g.WithImageCount(128)
	if larger.Timechannels != 16 || larger.ImageCount != 128 {
		t.Errorf("Expected layout kept for larger stack, got %v", larger)
	}

	smaller := g.WithImageCount(32)
	if smaller.Timechannels != 8 {
		t.Errorf("Expected 8 time channels after shrinking, got %d", smaller.Timechannels)
	}
	if err := smaller.Validate(); err != nil {
		t.Errorf("Expected valid geometry, got %v", err)
	}
	if g.ImageCount != 64 {
		t.Errorf("Original geometry was modified: %v", g)
	}
}

func TestGuessIsIdempotent(t *testing.T) {
	n := NewNegotiator(nil)
	for _, g := range []Geometry{New(64, 64, 8, 16), New(128, 128, 4, 8), New(100, 50, 1, 1)} {
		for _, kind := range []Kind{PAD, TOF} {
			got, ok := n.GuessFromByteCount(g, g.BufferLen(kind), kind)
			if !ok {
				t.Fatalf("Expected guess to succeed for %v (%v)", g, kind)
			}
			if !got.Equal(g) {
				t.Errorf("Expected unchanged geometry %v, got %v", g, got)
			}
		}
	}
}

func TestGuessNewResolution(t *testing.T) {
	n := NewNegotiator([]Resolution{{Width: 100, Height: 50}})
	current := New(64, 64, 8, 16)

	got, ok := n.GuessFromByteCount(current, 100*50*8*16, TOF)
	if !ok {
		t.Fatal("Expected guess to succeed")
	}
	if got.Width != 100 || got.Height != 50 || got.Foils != 8 || got.Timechannels != 16 {
		t.Errorf("Expected 100x50 with unchanged stack, got %v", got)
	}

	got, ok = n.GuessFromByteCount(current, 128*128, PAD)
	if !ok || got.Width != 128 || got.Height != 128 {
		t.Errorf("Expected power-of-two resolution 128x128, got %v (ok=%v)", got, ok)
	}

	got, ok = n.GuessFromByteCount(current, 100*50, PAD)
	if !ok || got.Width != 100 || got.Height != 50 {
		t.Errorf("Expected known resolution 100x50, got %v (ok=%v)", got, ok)
	}

	got, ok = n.GuessFromByteCount(current, 20*20, PAD)
	if !ok || got.Width != 20 || got.Height != 20 {
		t.Errorf("Expected square root guess 20x20, got %v (ok=%v)", got, ok)
	}
}

func TestGuessTimechannels(t *testing.T) {
	n := NewNegotiator(nil)

	pseudo := New(64, 64, 8, 16)
	pseudo.PseudoCompression = true
	got, ok := n.GuessFromByteCount(pseudo, 64*64*8*32, TOF)
	if !ok || got.Timechannels != 32 {
		t.Errorf("Expected 32 time channels, got %v (ok=%v)", got, ok)
	}

	plain := New(64, 64, 8, 16)
	got, ok = n.GuessFromByteCount(plain, 64*64*196, TOF)
	if !ok || got.ImageCount != 196 {
		t.Errorf("Expected image count 196, got %v (ok=%v)", got, ok)
	}
}

func TestGuessFailsWithoutFactorization(t *testing.T) {
	n := NewNegotiator(nil)
	current := New(64, 64, 8, 16)
	words := current.BufferLen(TOF)

	for _, w := range []int{words + 1, words - 1} {
		if g, ok := n.GuessFromByteCount(current, w, TOF); ok {
			t.Errorf("Expected no guess for %d words, got %v", w, g)
		}
	}
	if _, ok := n.GuessFromByteCount(current, 0, PAD); ok {
		t.Error("Expected no guess for empty payload")
	}
}
