package polar

import "math"

// Table is the fixed-axis performance matrix in the shape the comparison
// chart consumes: BoatSpeeds is indexed [angle][speed].
type Table struct {
	WindSpeeds []float64   `json:"wind_speeds"`
	WindAngles []float64   `json:"wind_angles"`
	BoatSpeeds [][]float64 `json:"boat_speeds"`
}

// Stats summarizes grid coverage for the UI's fill percentage.
type Stats struct {
	TotalSamples  int64 `json:"total_samples"`
	FilledBuckets int   `json:"filled_buckets"`
	TotalBuckets  int   `json:"total_buckets"`
}

// Export maps the learning grid onto the fixed comparison axes. Each target
// cell takes the mean of the bucket whose center is nearest; cells with no
// data are 0, distinguishable from a real zero via Stats and bucket counts.
// The mapping is deterministic: identical underlying data yields identical
// tables across calls.
func (s *Store) Export() Table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := Table{
		WindSpeeds: append([]float64(nil), s.cfg.TargetWindSpeeds...),
		WindAngles: append([]float64(nil), s.cfg.TargetWindAngles...),
		BoatSpeeds: make([][]float64, len(s.cfg.TargetWindAngles)),
	}

	for ai, angle := range t.WindAngles {
		row := make([]float64, len(t.WindSpeeds))
		for si, speed := range t.WindSpeeds {
			key := s.nearestBucket(speed, angle)
			if b, ok := s.buckets[key]; ok && b.Count > 0 {
				row[si] = b.Mean
			}
		}
		t.BoatSpeeds[ai] = row
	}
	return t
}

// nearestBucket returns the grid key whose cell center is closest to the
// target axis point. Speed bucket centers sit at (i+0.5)*width, angle
// bucket centers at i*width.
func (s *Store) nearestBucket(speed, angle float64) Key {
	si := int(math.Round(speed/s.cfg.SpeedBucketKnots - 0.5))
	if si < 0 {
		si = 0
	}
	if maxIdx := s.SpeedBuckets() - 1; si > maxIdx {
		si = maxIdx
	}

	ai := int(math.Round(angle / s.cfg.AngleBucketDegrees))
	if ai < 0 {
		ai = 0
	}
	if maxIdx := s.AngleBuckets() - 1; ai > maxIdx {
		ai = maxIdx
	}
	return Key{Speed: si, Angle: ai}
}

// Stats reports coverage: total recorded samples, buckets holding data, and
// the fixed grid size.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalBuckets: s.TotalBuckets()}
	for _, b := range s.buckets {
		if b.Count > 0 {
			st.FilledBuckets++
			st.TotalSamples += b.Count
		}
	}
	return st
}
