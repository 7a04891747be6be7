package roi

import (
	"math"
)

// Point is a position in detector pixel coordinates.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Kind names a shape variant in ROI files.
type Kind string

const (
	KindRectangle       Kind = "rectangle"
	KindCircle          Kind = "circle"
	KindEllipse         Kind = "ellipse"
	KindRing            Kind = "ring"
	KindCircularSegment Kind = "segment"
	KindPolygon         Kind = "polygon"
)

// Shape is a closed region of the detector plane.
type Shape interface {
	// Contains reports whether the point lies inside the shape (boundary included).
	Contains(x, y float64) bool
	// Bounds returns the axis-aligned bounding box as (min, max).
	Bounds() (Point, Point)
	Kind() Kind
}

// Rectangle is an axis-aligned box spanned by two corners.
type Rectangle struct {
	Min Point `yaml:"min"`
	Max Point `yaml:"max"`
}

func (r Rectangle) normalized() (Point, Point) {
	lo := Point{X: math.Min(r.Min.X, r.Max.X), Y: math.Min(r.Min.Y, r.Max.Y)}
	hi := Point{X: math.Max(r.Min.X, r.Max.X), Y: math.Max(r.Min.Y, r.Max.Y)}
	return lo, hi
}

func (r Rectangle) Contains(x, y float64) bool {
	lo, hi := r.normalized()
	return x >= lo.X && x <= hi.X && y >= lo.Y && y <= hi.Y
}

func (r Rectangle) Bounds() (Point, Point) { return r.normalized() }

func (r Rectangle) Kind() Kind { return KindRectangle }

// Circle is a filled disc.
type Circle struct {
	Center Point   `yaml:"center"`
	Radius float64 `yaml:"radius"`
}

func (c Circle) Contains(x, y float64) bool {
	dx, dy := x-c.Center.X, y-c.Center.Y
	return dx*dx+dy*dy <= c.Radius*c.Radius
}

func (c Circle) Bounds() (Point, Point) {
	return Point{c.Center.X - c.Radius, c.Center.Y - c.Radius},
		Point{c.Center.X + c.Radius, c.Center.Y + c.Radius}
}

func (c Circle) Kind() Kind { return KindCircle }

// Ellipse is an axis-aligned filled ellipse.
type Ellipse struct {
	Center  Point   `yaml:"center"`
	RadiusX float64 `yaml:"radiusX"`
	RadiusY float64 `yaml:"radiusY"`
}

func (e Ellipse) Contains(x, y float64) bool {
	if e.RadiusX <= 0 || e.RadiusY <= 0 {
		return false
	}
	dx := (x - e.Center.X) / e.RadiusX
	dy := (y - e.Center.Y) / e.RadiusY
	return dx*dx+dy*dy <= 1
}

func (e Ellipse) Bounds() (Point, Point) {
	return Point{e.Center.X - e.RadiusX, e.Center.Y - e.RadiusY},
		Point{e.Center.X + e.RadiusX, e.Center.Y + e.RadiusY}
}

func (e Ellipse) Kind() Kind { return KindEllipse }

// Ring is the annulus InnerRadius <= r <= OuterRadius around Center.
type Ring struct {
	Center      Point   `yaml:"center"`
	InnerRadius float64 `yaml:"innerRadius"`
	OuterRadius float64 `yaml:"outerRadius"`
}

func (r Ring) Contains(x, y float64) bool {
	d := math.Hypot(x-r.Center.X, y-r.Center.Y)
	return d >= r.InnerRadius && d <= r.OuterRadius
}

func (r Ring) Bounds() (Point, Point) {
	return Point{r.Center.X - r.OuterRadius, r.Center.Y - r.OuterRadius},
		Point{r.Center.X + r.OuterRadius, r.Center.Y + r.OuterRadius}
}

func (r Ring) Kind() Kind { return KindRing }

// CircularSegment is the part of a ring between two angles (radians,
// counter-clockwise from the positive x axis). A wedge may cross angle 0.
type CircularSegment struct {
	Center      Point   `yaml:"center"`
	InnerRadius float64 `yaml:"innerRadius"`
	OuterRadius float64 `yaml:"outerRadius"`
	StartAngle  float64 `yaml:"startAngle"`
	EndAngle    float64 `yaml:"endAngle"`
}

// NormalizeAngle maps an angle to [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func (s CircularSegment) Contains(x, y float64) bool {
	dx, dy := x-s.Center.X, y-s.Center.Y
	d := math.Hypot(dx, dy)
	if d < s.InnerRadius || d > s.OuterRadius {
		return false
	}
	if s.EndAngle-s.StartAngle >= 2*math.Pi {
		return true
	}

	a := NormalizeAngle(math.Atan2(dy, dx))
	start := NormalizeAngle(s.StartAngle)
	end := NormalizeAngle(s.EndAngle)
	if start <= end {
		return a >= start && a <= end
	}
	// wedge crosses 0
	return a >= start || a <= end
}

func (s CircularSegment) Bounds() (Point, Point) {
	return Ring{Center: s.Center, OuterRadius: s.OuterRadius}.Bounds()
}

func (s CircularSegment) Kind() Kind { return KindCircularSegment }

// Polygon is a simple polygon given by its vertices in order.
type Polygon struct {
	Vertices []Point `yaml:"vertices"`
}

// Contains uses ray casting: a ray from the point to +x crosses the border
// an odd number of times for points inside.
func (p Polygon) Contains(x, y float64) bool {
	n := len(p.Vertices)
	if n < 3 {
		return false
	}

	inside := false
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := p.Vertices[i], p.Vertices[j]

		if ((pi.Y > y) != (pj.Y > y)) &&
			(x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

func (p Polygon) Bounds() (Point, Point) {
	if len(p.Vertices) == 0 {
		return Point{}, Point{}
	}
	lo, hi := p.Vertices[0], p.Vertices[0]
	for _, v := range p.Vertices[1:] {
		lo.X = math.Min(lo.X, v.X)
		lo.Y = math.Min(lo.Y, v.Y)
		hi.X = math.Max(hi.X, v.X)
		hi.Y = math.Max(hi.Y, v.Y)
	}
	return lo, hi
}

func (p Polygon) Kind() Kind { return KindPolygon }
