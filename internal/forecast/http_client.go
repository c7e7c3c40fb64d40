package forecast

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const dateLayout = "2006-01-02"

// APIError is returned when the forecasting service answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("forecaster returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient calls a Prophet-style forecasting service over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type historyPoint struct {
	DS string  `json:"ds"`
	Y  float64 `json:"y"`
}

type forecastRequest struct {
	Key         string         `json:"key,omitempty"`
	History     []historyPoint `json:"history"`
	HorizonDays int            `json:"horizon_days"`
}

type predictionPoint struct {
	DS     string  `json:"ds"`
	YHat   float64 `json:"yhat"`
	YLower float64 `json:"yhat_lower"`
	YUpper float64 `json:"yhat_upper"`
}

type forecastResponse struct {
	Predictions []predictionPoint `json:"predictions"`
}

// Forecast posts the history to /forecast and decodes the predictions.
func (c *HTTPClient) Forecast(ctx context.Context, req Request) ([]Prediction, error) {
	body := forecastRequest{
		Key:         req.Key,
		History:     make([]historyPoint, len(req.History)),
		HorizonDays: req.HorizonDays,
	}
	for i, o := range req.History {
		body.History[i] = historyPoint{DS: o.Date.Format(dateLayout), Y: o.Quantity}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode forecast request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forecast", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call forecaster: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read forecaster response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded forecastResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode forecaster response: %w", err)
	}

	predictions := make([]Prediction, 0, len(decoded.Predictions))
	for _, p := range decoded.Predictions {
		date, err := time.Parse(dateLayout, p.DS[:min(len(p.DS), len(dateLayout))])
		if err != nil {
			return nil, fmt.Errorf("invalid prediction date %q: %w", p.DS, err)
		}
		predictions = append(predictions, Prediction{
			Date:  date,
			Point: p.YHat,
			Lower: p.YLower,
			Upper: p.YUpper,
		})
	}

	return predictions, nil
}

var _ Forecaster = (*HTTPClient)(nil)
