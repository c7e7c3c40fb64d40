package domain

import "strings"

// EstimationMethod records which path produced a key's lead-time demand.
type EstimationMethod string

const (
	MethodForecast                EstimationMethod = "forecast"
	MethodFallbackInsufficient    EstimationMethod = "fallback_insufficient_history"
	MethodFallbackForecastFailure EstimationMethod = "fallback_forecast_failure"
)

var methodLabels = map[EstimationMethod]string{
	MethodForecast:                "Forecast",
	MethodFallbackInsufficient:    "Moving average (insufficient history)",
	MethodFallbackForecastFailure: "Moving average (forecast failed)",
}

// IsFallback reports whether the method used the moving-average heuristic.
func (m EstimationMethod) IsFallback() bool {
	return m == MethodFallbackInsufficient || m == MethodFallbackForecastFailure
}

// MethodLabel returns a human-readable label for an estimation method.
func MethodLabel(m EstimationMethod) string {
	if label, ok := methodLabels[m]; ok {
		return label
	}

	return "Unknown"
}

// ParseMethod returns the method for a stored value (case-insensitive).
func ParseMethod(s string) (EstimationMethod, bool) {
	m := EstimationMethod(strings.ToLower(strings.TrimSpace(s)))
	_, ok := methodLabels[m]

	return m, ok
}

// OmissionReason explains why a key is missing from a run's result set.
type OmissionReason string

const (
	OmissionDataQuality      OmissionReason = "data_quality"
	OmissionComputationError OmissionReason = "computation_error"
	OmissionCancelled        OmissionReason = "cancelled"
)
