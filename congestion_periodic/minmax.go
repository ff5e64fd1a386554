package congestion_periodic

import (
	"math"

	"golang.org/x/exp/constraints"
)

// floorAt returns v, raised to floor when it is below it.
func floorAt[T constraints.Integer | constraints.Float](v, floor T) T {
	if v < floor {
		return floor
	}
	return v
}

// finiteOr returns v, or fallback when v is NaN or infinite.
func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
