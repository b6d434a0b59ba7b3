package ml

// Confidence bands
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// CalculateConfidence maps P(legendary) to a confidence band. The bands are
// nested, so the order of the checks decides the outcome.
func CalculateConfidence(p float64) string {
	switch {
	case p >= 0.8 || p <= 0.2:
		return ConfidenceHigh
	case p >= 0.6 || p <= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
