// Package geo holds the spherical helpers used by candidate search.
package geo

import (
	"math"
	"sort"

	"github.com/mmcloughlin/geohash"

	"github.com/okian/comparo/internal/domain/model"
)

// EarthRadiusM is the mean earth radius.
const EarthRadiusM = 6_371_000.0

// CellPrecision is the geohash length of index cells (about 4.9km x 4.9km).
const CellPrecision = 5

// HaversineM returns the great-circle distance between a and b in metres.
func HaversineM(a, b model.GeoPoint) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Box is a lat/lng rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether p lies inside b, edges included.
func (b Box) Contains(p model.GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// BoundingBox returns a box enclosing the circle of radiusM around c.
// Longitudes are clamped rather than wrapped at the antimeridian.
func BoundingBox(c model.GeoPoint, radiusM float64) Box {
	dLat := degrees(radiusM / EarthRadiusM)
	cosLat := math.Cos(radians(c.Lat))
	dLng := 180.0
	if cosLat > 1e-9 {
		dLng = math.Min(180, degrees(radiusM/(EarthRadiusM*cosLat)))
	}
	return Box{
		MinLat: math.Max(-90, c.Lat-dLat),
		MaxLat: math.Min(90, c.Lat+dLat),
		MinLng: math.Max(-180, c.Lng-dLng),
		MaxLng: math.Min(180, c.Lng+dLng),
	}
}

// Cell returns the index cell of p.
func Cell(p model.GeoPoint) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, CellPrecision)
}

// Covering returns the sorted set of index cells intersecting the bounding
// box of the circle. Every point within radiusM of c falls in one of them.
func Covering(c model.GeoPoint, radiusM float64) []string {
	box := BoundingBox(c, radiusM)
	cell := geohash.BoundingBox(Cell(c))
	stepLat := (cell.MaxLat - cell.MinLat) / 2
	stepLng := (cell.MaxLng - cell.MinLng) / 2

	seen := make(map[string]struct{})
	for lat := box.MinLat; ; lat += stepLat {
		lat = math.Min(lat, box.MaxLat)
		for lng := box.MinLng; ; lng += stepLng {
			lng = math.Min(lng, box.MaxLng)
			seen[geohash.EncodeWithPrecision(lat, lng, CellPrecision)] = struct{}{}
			if lng >= box.MaxLng {
				break
			}
		}
		if lat >= box.MaxLat {
			break
		}
	}

	cells := make([]string, 0, len(seen))
	for h := range seen {
		cells = append(cells, h)
	}
	sort.Strings(cells)
	return cells
}
