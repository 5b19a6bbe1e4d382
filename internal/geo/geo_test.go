package geo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ors-matrix/internal/model"
)

func TestHaversine(t *testing.T) {
	ottawa := model.Coordinate{Lon: -75.6972, Lat: 45.4215}
	montreal := model.Coordinate{Lon: -73.5673, Lat: 45.5017}

	require.InDelta(t, 166.0, Haversine(ottawa, montreal), 2.0)
	require.InDelta(t, 0.0, Haversine(ottawa, ottawa), 1e-9)
	require.InDelta(t, Haversine(ottawa, montreal), Haversine(montreal, ottawa), 1e-9)
}

func TestRowHaversine(t *testing.T) {
	row := model.PairRow{
		Key:  model.PairKey{Src: 1, Dest: 2},
		Src:  model.Coordinate{Lon: 0, Lat: 0},
		Dest: model.Coordinate{Lon: 1, Lat: 0},
	}
	// One degree of longitude on the equator with a 6371 km earth radius.
	require.InDelta(t, 111.19, RowHaversine(row), 0.1)
}
