package view

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// XMLHeader is the instrument metadata written in front of an XML image.
type XMLHeader struct {
	SampleDetector int     `xml:"sample_detector"`
	Wavelength     float64 `xml:"wavelength"`
	Lifetime       float64 `xml:"lifetime"`
	BeamMonitor    int     `xml:"beam_monitor"`
	Instrument     string  `xml:"instrument,omitempty"`
	Location       string  `xml:"location,omitempty"`
}

type xmlImage struct {
	XMLName xml.Name  `xml:"image"`
	Width   int       `xml:"width,attr"`
	Height  int       `xml:"height,attr"`
	Type    string    `xml:"type,attr"`
	Header  XMLHeader `xml:"header"`
	Rows    []string  `xml:"data>row"`
}

// WriteXML writes the image with its metadata header, one <row> element
// per image line.
func (img *Image) WriteXML(w io.Writer, hdr XMLHeader) error {
	doc := xmlImage{
		Width:  img.width,
		Height: img.height,
		Type:   "values",
		Header: hdr,
	}
	if img.IsCounts() {
		doc.Type = "counts"
	}
	if !img.Empty() {
		doc.Rows = make([]string, img.height)
		for y := range doc.Rows {
			doc.Rows[y] = img.formatRow(y)
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("error writing xml image: %w", err)
	}
	return enc.Flush()
}

// SaveDat writes the image as whitespace separated text.
func (img *Image) SaveDat(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# width %d\n# height %d\n", img.width, img.height)
	if !img.Empty() {
		for y := 0; y < img.height; y++ {
			bw.WriteString(img.formatRow(y))
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// formatRow prints one image line. Values keep full precision.
func (img *Image) formatRow(y int) string {
	fields := make([]string, img.width)
	for x := range fields {
		switch p := img.pix.(type) {
		case Counts:
			fields[x] = strconv.FormatUint(uint64(p[y*img.width+x]), 10)
		case Values:
			fields[x] = strconv.FormatFloat(p[y*img.width+x], 'g', -1, 64)
		}
	}
	return strings.Join(fields, " ")
}
