package ml

import "testing"

func TestCalculateConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		p    float64
		want string
	}{
		{1.0, "High"},
		{0.81, "High"},
		{0.8, "High"},
		{0.79, "Medium"},
		{0.6, "Medium"},
		{0.59, "Low"},
		{0.5, "Low"},
		{0.41, "Low"},
		{0.4, "Medium"},
		{0.21, "Medium"},
		{0.2, "High"},
		{0.0, "High"},
	}

	for _, tt := range tests {
		if got := CalculateConfidence(tt.p); got != tt.want {
			t.Errorf("CalculateConfidence(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}
