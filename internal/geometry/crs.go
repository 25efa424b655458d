package geometry

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/ctessum/geom/proj"
)

// proj4ByCode maps the CRS identifiers this pipeline supports to proj4
// definitions. Raw proj4 strings are also accepted as identifiers.
var proj4ByCode = map[string]string{
	// WGS-84 geographic coordinates.
	"EPSG:4326": "+proj=longlat +datum=WGS84 +no_defs",
	// NSIDC EASE-Grid 2.0 global cylindrical equal-area, units meters.
	"EPSG:6933": "+proj=cea +lat_ts=30 +lon_0=0 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs",
}

func parseCRS(id string) (*proj.SR, error) {
	def := id
	if !strings.HasPrefix(id, "+") {
		mapped, ok := proj4ByCode[id]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported CRS %q (supported: EPSG:4326, EPSG:6933, or a raw proj4 string)",
				domain.ErrInput, id)
		}
		def = mapped
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing CRS %q: %v", domain.ErrInput, id, err)
	}
	return sr, nil
}

// newTransformPair builds forward and inverse coordinate transforms between
// two CRS identifiers.
func newTransformPair(fromID, toID string) (fwd, inv proj.Transformer, err error) {
	from, err := parseCRS(fromID)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseCRS(toID)
	if err != nil {
		return nil, nil, err
	}
	if fwd, err = from.NewTransform(to); err != nil {
		return nil, nil, fmt.Errorf("%w: transform %s -> %s: %v", domain.ErrInput, fromID, toID, err)
	}
	if inv, err = to.NewTransform(from); err != nil {
		return nil, nil, fmt.Errorf("%w: transform %s -> %s: %v", domain.ErrInput, toID, fromID, err)
	}
	return fwd, inv, nil
}
