// Package geo provides straight-line distance helpers for coordinate pairs.
package geo

import (
	"github.com/umahmood/haversine"

	"ors-matrix/internal/model"
)

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b model.Coordinate) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lon},
		haversine.Coord{Lat: b.Lat, Lon: b.Lon},
	)
	return km
}

// RowHaversine returns the great-circle distance between a row's endpoints.
func RowHaversine(row model.PairRow) float64 {
	return Haversine(row.Src, row.Dest)
}
