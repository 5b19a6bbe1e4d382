package model

import "fmt"

// Metric selects what the routing service measures between two points.
type Metric string

const (
	MetricDistance Metric = "distance"
	MetricDuration Metric = "duration"
)

// ResponseKey is the field of the matrix response holding this metric's values.
func (m Metric) ResponseKey() string { return string(m) + "s" }

// Validate returns an error for unknown metrics.
func (m Metric) Validate() error {
	switch m {
	case MetricDistance, MetricDuration:
		return nil
	default:
		return fmt.Errorf("unknown metric %q (want distance or duration)", string(m))
	}
}

// Units is the distance unit system requested from the service.
type Units string

const (
	UnitsMeters     Units = "m"
	UnitsKilometers Units = "km"
	UnitsMiles      Units = "mi"
)

func (u Units) Validate() error {
	switch u {
	case UnitsMeters, UnitsKilometers, UnitsMiles:
		return nil
	default:
		return fmt.Errorf("unknown units %q (want m, km or mi)", string(u))
	}
}

// Profile is the travel mode used for routing.
type Profile string

// Profiles lists the travel modes the openrouteservice matrix endpoint accepts.
var Profiles = []Profile{
	"driving-car",
	"driving-hgv",
	"foot-walking",
	"foot-hiking",
	"cycling-regular",
	"cycling-road",
	"cycling-mountain",
	"cycling-electric",
	"wheelchair",
}

func (p Profile) Validate() error {
	for _, known := range Profiles {
		if p == known {
			return nil
		}
	}
	return fmt.Errorf("unknown profile %q", string(p))
}

// QueryParams holds the routing parameters shared by every row of a run.
type QueryParams struct {
	Profile   Profile `json:"profile"`
	Metric    Metric  `json:"metric"`
	Units     Units   `json:"units"`
	Optimized bool    `json:"optimized"`
}

// Validate checks every field.
func (q QueryParams) Validate() error {
	if err := q.Profile.Validate(); err != nil {
		return err
	}
	if err := q.Metric.Validate(); err != nil {
		return err
	}
	return q.Units.Validate()
}
