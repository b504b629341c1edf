package storage

import (
	"fmt"

	"github.com/hklund/signaldb/pkg/models"
)

// Reduce applies fn over the scalar values of an already-filtered metric
// set. Histogram metrics carry no scalar value: they are skipped by
// sum/avg/min/max but are included in the sample count. An empty set
// yields (0, 0) for every function, never an error.
func Reduce(metrics []models.Metric, fn AggregateFunc) (float64, int, error) {
	sampleCount := len(metrics)
	if sampleCount == 0 {
		return 0, 0, nil
	}

	if fn == AggCount {
		return float64(sampleCount), sampleCount, nil
	}

	scalars := make([]float64, 0, sampleCount)
	for _, m := range metrics {
		if m.IsHistogram() {
			continue
		}
		scalars = append(scalars, m.Value)
	}
	if len(scalars) == 0 {
		return 0, sampleCount, nil
	}

	switch fn {
	case AggSum, AggAvg:
		var sum float64
		for _, v := range scalars {
			sum += v
		}
		if fn == AggAvg {
			return sum / float64(len(scalars)), sampleCount, nil
		}
		return sum, sampleCount, nil

	case AggMin:
		min := scalars[0]
		for _, v := range scalars[1:] {
			if v < min {
				min = v
			}
		}
		return min, sampleCount, nil

	case AggMax:
		max := scalars[0]
		for _, v := range scalars[1:] {
			if v > max {
				max = v
			}
		}
		return max, sampleCount, nil

	default:
		return 0, 0, fmt.Errorf("unknown aggregate function %q", fn)
	}
}
