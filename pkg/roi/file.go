package roi

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the persisted form of a region: a list of shapes, each with its
// kind, enabled flag and shape parameters.
type file struct {
	Shapes []record `yaml:"shapes"`
}

type record struct {
	Kind    Kind      `yaml:"kind"`
	Enabled bool      `yaml:"enabled"`
	Params  yaml.Node `yaml:"params"`
}

// Save writes the region as a YAML shape list.
func (r *Roi) Save(w io.Writer) error {
	var f file
	for i, e := range r.elements {
		rec := record{Kind: e.Shape.Kind(), Enabled: e.Enabled}
		if err := rec.Params.Encode(e.Shape); err != nil {
			return fmt.Errorf("error encoding roi element %d: %w", i, err)
		}
		f.Shapes = append(f.Shapes, rec)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return fmt.Errorf("error writing roi: %w", err)
	}
	return enc.Close()
}

// Load replaces the elements of r with the shapes read from a YAML shape
// list. On error r is left unchanged.
func (r *Roi) Load(rd io.Reader) error {
	var f file
	if err := yaml.NewDecoder(rd).Decode(&f); err != nil && err != io.EOF {
		return fmt.Errorf("error parsing roi: %w", err)
	}

	elements := make([]Element, 0, len(f.Shapes))
	for i, rec := range f.Shapes {
		shape, err := decodeShape(rec)
		if err != nil {
			return fmt.Errorf("roi element %d: %w", i, err)
		}
		elements = append(elements, Element{Shape: shape, Enabled: rec.Enabled})
	}
	r.elements = elements
	return nil
}

func decodeShape(rec record) (Shape, error) {
	var (
		shape Shape
		err   error
	)
	switch rec.Kind {
	case KindRectangle:
		var s Rectangle
		err = rec.Params.Decode(&s)
		shape = s
	case KindCircle:
		var s Circle
		err = rec.Params.Decode(&s)
		shape = s
	case KindEllipse:
		var s Ellipse
		err = rec.Params.Decode(&s)
		shape = s
	case KindRing:
		var s Ring
		err = rec.Params.Decode(&s)
		shape = s
	case KindCircularSegment:
		var s CircularSegment
		err = rec.Params.Decode(&s)
		shape = s
	case KindPolygon:
		var s Polygon
		err = rec.Params.Decode(&s)
		shape = s
	default:
		return nil, fmt.Errorf("unknown shape kind %q", rec.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameters: %w", rec.Kind, err)
	}
	return shape, nil
}

// SaveFile writes the region to a YAML file.
func (r *Roi) SaveFile(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Save(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LoadFile reads a region from a YAML file.
func LoadFile(path string) (*Roi, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	r := &Roi{}
	if err := r.Load(in); err != nil {
		return nil, fmt.Errorf("error loading roi %s: %w", path, err)
	}
	return r, nil
}
