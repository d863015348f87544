package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	if s := NewProgressSampler(0); s.bucketSize != 300 {
		t.Fatalf("bucketSize = %v, want 300", s.bucketSize)
	}
	if s := NewProgressSampler(50); s.bucketSize != 50 || s.lastBucket != -1 {
		t.Fatalf("unexpected sampler %+v", s)
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(10) {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(300)
	steps := []struct {
		value float64
		want  bool
	}{
		{-1, false},
		{0, true},
		{150, false},
		{299, false},
		{300, true},
		{450, false},
		{1200, true},
		{30, true}, // counter reset after restart
		{60, false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.value); got != step.want {
			t.Fatalf("step %d value=%v: got %v want %v", i, step.value, got, step.want)
		}
	}
	s.Reset()
	if !s.ShouldLog(60) {
		t.Fatal("expected log after reset")
	}
}
