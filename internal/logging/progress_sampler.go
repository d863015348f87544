package logging

// ProgressSampler suppresses repetitive progress logs. A value is worth
// logging when it crosses into a new bucket, e.g. every 300 relayed frames.
type ProgressSampler struct {
	bucketSize float64
	lastBucket int64
}

// NewProgressSampler constructs a sampler that emits when the value crosses
// bucket boundaries (default 300).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 300
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress value should be logged. Negative
// values mean "unknown" and never log. A value that falls back into an earlier
// bucket (counter reset after a relay restart) logs once and re-arms.
func (s *ProgressSampler) ShouldLog(value float64) bool {
	if s == nil {
		return true
	}
	if value < 0 {
		return false
	}
	bucket := int64(value / s.bucketSize)
	if bucket == s.lastBucket {
		return false
	}
	s.lastBucket = bucket
	return true
}

// Reset clears the sampler state (e.g. when a new relay attempt starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastBucket = -1
}
