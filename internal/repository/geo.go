package repository

import (
	"math"
	"sort"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(a)))
}

type bbox struct {
	minLat, maxLat, minLon, maxLon float64
}

// boundingBox over-approximates the circle so the SQL prefilter never
// drops a candidate.
func boundingBox(lat, lon, radiusM float64) bbox {
	dLat := radiusM / earthRadiusM * 180 / math.Pi
	cos := math.Cos(lat * math.Pi / 180)
	dLon := 180.0
	if cos > 1e-6 {
		dLon = math.Min(180, dLat/cos)
	}
	return bbox{
		minLat: math.Max(-90, lat-dLat),
		maxLat: math.Min(90, lat+dLat),
		minLon: math.Max(-180, lon-dLon),
		maxLon: math.Min(180, lon+dLon),
	}
}

func normalizeNearby(q domain.NearbyQuery) domain.NearbyQuery {
	if q.MaxDistanceM <= 0 {
		q.MaxDistanceM = domain.DefaultNearbyDistanceM
	}
	if q.Limit <= 0 {
		q.Limit = domain.DefaultNearbyLimit
	}
	if q.Limit > domain.MaxPageLimit {
		q.Limit = domain.MaxPageLimit
	}
	return q
}

// rankByDistance keeps candidates inside the radius, nearest first.
func rankByDistance(candidates []*domain.ViolationReport, q domain.NearbyQuery) []*domain.NearbyReport {
	var out []*domain.NearbyReport
	for _, rep := range candidates {
		d := HaversineMeters(q.Latitude, q.Longitude, rep.Location.Latitude, rep.Location.Longitude)
		if d <= q.MaxDistanceM {
			out = append(out, &domain.NearbyReport{Report: rep, DistanceM: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
