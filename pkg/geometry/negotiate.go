package geometry

import (
	"math"
)

// Resolution is an image size the detector is known to produce.
type Resolution struct {
	Width  int `yaml:"width" mapstructure:"width"`
	Height int `yaml:"height" mapstructure:"height"`
}

// Negotiator resolves the frame geometry from the size of a payload when the
// server changed its configuration without telling the client.
type Negotiator struct {
	// KnownResolutions are tried right after the current resolution.
	KnownResolutions []Resolution
}

// NewNegotiator creates a negotiator that tries the given resolutions first.
func NewNegotiator(known []Resolution) *Negotiator {
	return &Negotiator{KnownResolutions: append([]Resolution(nil), known...)}
}

// candidates returns the resolutions to try, in order: the current one, the
// configured ones, then square power-of-two sizes.
func (n *Negotiator) candidates(current Geometry) []Resolution {
	seen := make(map[Resolution]bool)
	var out []Resolution
	add := func(r Resolution) {
		if r.Width < 1 || r.Height < 1 || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	}

	add(Resolution{Width: current.Width, Height: current.Height})
	if n != nil {
		for _, r := range n.KnownResolutions {
			add(r)
		}
	}
	for size := 16; size <= 2048; size *= 2 {
		add(Resolution{Width: size, Height: size})
	}
	return out
}

// GuessFromByteCount looks for a geometry whose expected payload holds
// exactly totalWords counts. The foil count and compression mode of current
// are kept; only the resolution and the number of images change.
//
// Returns the new geometry and true on success. A word count that already
// matches current yields current itself.
func (n *Negotiator) GuessFromByteCount(current Geometry, totalWords int, kind Kind) (Geometry, bool) {
	if totalWords <= 0 {
		return Geometry{}, false
	}
	if current.Validate() == nil && current.BufferLen(kind) == totalWords {
		return current.Clone(), true
	}

	cands := n.candidates(current)

	if kind == PAD {
		for _, r := range cands {
			if r.Width*r.Height == totalWords {
				return current.WithImageSize(r.Width, r.Height), true
			}
		}
		side := int(math.Round(math.Sqrt(float64(totalWords))))
		if side*side == totalWords {
			return current.WithImageSize(side, side), true
		}
		return Geometry{}, false
	}

	for _, r := range cands {
		pixels := r.Width * r.Height
		if totalWords%pixels != 0 {
			continue
		}
		images := totalWords / pixels

		g := current.WithImageSize(r.Width, r.Height)
		if g.PseudoCompression {
			if g.Foils < 1 || images%g.Foils != 0 {
				continue
			}
			g.Timechannels = images / g.Foils
			g.ImageCount = images
			g.FoilBegin = uniformLayout(g.Foils, g.Timechannels)
		} else {
			if g.Foils < 1 || images < g.Foils {
				continue
			}
			g = g.WithImageCount(images)
		}
		if g.Validate() != nil {
			continue
		}
		return g, true
	}
	return Geometry{}, false
}
