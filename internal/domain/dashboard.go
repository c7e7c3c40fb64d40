package domain

import "time"

// Omission is the audit entry for a key that produced no result.
type Omission struct {
	Key    EntityKey      `json:"key"`
	Reason OmissionReason `json:"reason"`
	Detail string         `json:"detail,omitempty"`
}

// RunSummary is the tally reported for every completed run.
type RunSummary struct {
	RunID                   string      `json:"run_id"`
	Source                  string      `json:"source"`
	Granularity             Granularity `json:"granularity"`
	LatestDate              time.Time   `json:"latest_date"`
	Cutoff                  time.Time   `json:"cutoff"`
	TotalKeys               int         `json:"total_keys"`
	Forecasted              int         `json:"forecasted"`
	FallbackInsufficient    int         `json:"fallback_insufficient_history"`
	FallbackForecastFailure int         `json:"fallback_forecast_failure"`
	Omitted                 int         `json:"omitted"`
	ReturnRows              int         `json:"return_rows"`
	ReturnUnits             int64       `json:"return_units"`
	Omissions               []Omission  `json:"omissions,omitempty"`
	StartedAt               time.Time   `json:"started_at"`
	CompletedAt             time.Time   `json:"completed_at"`
}

// Count records one result in the tally.
func (s *RunSummary) Count(r ReplenishmentResult) {
	switch r.Method {
	case MethodForecast:
		s.Forecasted++
	case MethodFallbackInsufficient:
		s.FallbackInsufficient++
	case MethodFallbackForecastFailure:
		s.FallbackForecastFailure++
	}
}

// Omit records a key that was left out of the result set.
func (s *RunSummary) Omit(o Omission) {
	s.Omissions = append(s.Omissions, o)
	s.Omitted++
}

// RunOutput bundles a run's results with its summary.
type RunOutput struct {
	Results []ReplenishmentResult `json:"results"`
	Summary RunSummary            `json:"summary"`
}

// LevelsFilter narrows current-level queries.
type LevelsFilter struct {
	LocationIDs []int64 `json:"location_ids,omitempty"`
	ItemIDs     []int64 `json:"item_ids,omitempty"`
	Limit       int     `json:"limit"`
	Offset      int     `json:"offset"`
}
