package audioengine

import (
	"math"
	"testing"
)

func TestSoftLimit(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"below knee", 0.5, 0.5},
		{"at knee", 0.8, 0.8},
		{"above knee", 0.9, 0.85},
		{"negative above knee", -0.9, -0.85},
		{"far above knee", 1.0, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := softLimit(tt.in); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("softLimit(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
