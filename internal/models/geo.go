package models

// GeoPoint is a GeoJSON point stored as [longitude, latitude], the order
// MongoDB's 2dsphere index expects.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewGeoPoint builds a Point from a longitude/latitude pair.
func NewGeoPoint(lng, lat float64) GeoPoint {
	return GeoPoint{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
	}
}

// Valid reports whether the point is a well-formed coordinate pair.
func (p GeoPoint) Valid() bool {
	if p.Type != "Point" || len(p.Coordinates) != 2 {
		return false
	}
	lng, lat := p.Coordinates[0], p.Coordinates[1]
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

// Longitude returns the first coordinate.
func (p GeoPoint) Longitude() float64 {
	if len(p.Coordinates) == 2 {
		return p.Coordinates[0]
	}
	return 0
}

// Latitude returns the second coordinate.
func (p GeoPoint) Latitude() float64 {
	if len(p.Coordinates) == 2 {
		return p.Coordinates[1]
	}
	return 0
}
