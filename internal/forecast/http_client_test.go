package forecast

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientForecast(t *testing.T) {
	var got forecastRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions":[
			{"ds":"2024-07-01 00:00:00","yhat":4.5,"yhat_lower":1.5,"yhat_upper":7.5},
			{"ds":"2024-07-02","yhat":5,"yhat_lower":2,"yhat_upper":8}
		]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", time.Second)
	preds, err := client.Forecast(context.Background(), Request{
		Key:         "1:2:3",
		History:     []Observation{{Date: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), Quantity: 3}},
		HorizonDays: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "1:2:3", got.Key)
	assert.Equal(t, 2, got.HorizonDays)
	assert.Equal(t, []historyPoint{{DS: "2024-06-30", Y: 3}}, got.History)

	require.Len(t, preds, 2)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), preds[0].Date)
	assert.Equal(t, 4.5, preds[0].Point)
	assert.Equal(t, 1.5, preds[0].Lower)
	assert.Equal(t, 7.5, preds[0].Upper)
}

func TestHTTPClientErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "series too short", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		_, err := NewHTTPClient(srv.URL, time.Second).Forecast(context.Background(), Request{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Equal(t, "series too short", apiErr.Body)
	})

	t.Run("bad body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"predictions":[{"ds":"tomorrow"}]}`))
		}))
		defer srv.Close()

		_, err := NewHTTPClient(srv.URL, time.Second).Forecast(context.Background(), Request{})
		assert.ErrorContains(t, err, "invalid prediction date")
	})

	t.Run("deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewHTTPClient(srv.URL, time.Second).Forecast(ctx, Request{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
