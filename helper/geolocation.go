package helper

import "math"

// WGS-84 mean Earth radius in meters.
const earthRadiusMeters = 6371008.8

// Geolocation returns the haversine distance in meters between two
// coordinates. Used for the check-in geofence.
func Geolocation(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	rad := math.Pi / 180
	dlat := (lat2 - lat1) * rad
	dlon := (lon2 - lon1) * rad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	// Clamp against floating point drift before the sqrt.
	a = math.Min(math.Max(a, 0), 1)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return math.Round(earthRadiusMeters*c*10) / 10
}
