package geospatial

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

type osmBounds struct {
	MinLat float64 `xml:"minlat,attr"`
	MinLon float64 `xml:"minlon,attr"`
	MaxLat float64 `xml:"maxlat,attr"`
	MaxLon float64 `xml:"maxlon,attr"`
}

// ReadOSMBounds returns the <bounds> element of an OSM XML export. The rest of
// the document is skipped without being decoded.
func ReadOSMBounds(r io.Reader) (domain.BoundingBox, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return domain.BoundingBox{}, fmt.Errorf("%w: no <bounds> element", domain.ErrInvalidRegion)
		}
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("read osm: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "bounds" {
			continue
		}
		var b osmBounds
		if err := dec.DecodeElement(&b, &start); err != nil {
			return domain.BoundingBox{}, fmt.Errorf("read osm bounds: %w", err)
		}
		box := domain.BoundingBox{LatMin: b.MinLat, LatMax: b.MaxLat, LonMin: b.MinLon, LonMax: b.MaxLon}
		return box, box.Validate()
	}
}
