package model

import (
	"cmp"
	"fmt"
)

// Coordinate is a (longitude, latitude) pair in decimal degrees.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the coordinate lies inside WGS 84 bounds.
func (c Coordinate) Valid() bool {
	return c.Lon >= -180 && c.Lon <= 180 && c.Lat >= -90 && c.Lat <= 90
}

// List returns the coordinate as [lon, lat] for the routing API.
func (c Coordinate) List() []float64 { return []float64{c.Lon, c.Lat} }

// PairKey identifies one coordinate pair row by its source and destination row indices.
type PairKey struct {
	Src  int64 `json:"row_src"`
	Dest int64 `json:"row_dest"`
}

func (k PairKey) String() string { return fmt.Sprintf("(%d, %d)", k.Src, k.Dest) }

// Compare orders keys by Src, then Dest.
func (k PairKey) Compare(o PairKey) int {
	if c := cmp.Compare(k.Src, o.Src); c != 0 {
		return c
	}
	return cmp.Compare(k.Dest, o.Dest)
}

// PairRow is one input row: a key and the two coordinates it joins.
// It is built once when a chunk is read and never re-derived.
type PairRow struct {
	Key  PairKey    `json:"key"`
	Src  Coordinate `json:"src"`
	Dest Coordinate `json:"dest"`
}

// Measurement is the output unit. Values are NaN when the service
// reported the pair as unroutable.
type Measurement struct {
	Key       PairKey `json:"key"`
	SrcToDest float64 `json:"src2dest"`
	DestToSrc float64 `json:"dest2src"`
}
