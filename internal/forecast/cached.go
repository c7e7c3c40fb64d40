package forecast

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/rs/zerolog/log"
)

// PredictionCache stores forecaster responses by request fingerprint.
type PredictionCache interface {
	GetPredictions(ctx context.Context, fingerprint string) ([]Prediction, bool, error)
	SetPredictions(ctx context.Context, fingerprint string, predictions []Prediction) error
}

// Cached wraps a Forecaster so identical requests are answered from a cache.
// Cache failures only degrade to a direct call.
type Cached struct {
	next  Forecaster
	cache PredictionCache
}

// NewCached returns next unchanged when cache is nil.
func NewCached(next Forecaster, cache PredictionCache) Forecaster {
	if cache == nil {
		return next
	}
	return &Cached{next: next, cache: cache}
}

func (c *Cached) Forecast(ctx context.Context, req Request) ([]Prediction, error) {
	fp := Fingerprint(req)

	if preds, ok, err := c.cache.GetPredictions(ctx, fp); err == nil && ok {
		return preds, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", req.Key).Msg("forecast: cache get failed")
	}

	preds, err := c.next.Forecast(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetPredictions(ctx, fp, preds); err != nil {
		log.Warn().Err(err).Str("key", req.Key).Msg("forecast: cache set failed")
	}

	return preds, nil
}

// Fingerprint hashes the request key, horizon and full history.
func Fingerprint(req Request) string {
	h := sha1.New()
	h.Write([]byte(req.Key))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(req.HorizonDays))
	h.Write(buf[:])
	for _, o := range req.History {
		binary.BigEndian.PutUint64(buf[:], uint64(o.Date.Unix()))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(o.Quantity))
		h.Write(buf[:])
	}

	return hex.EncodeToString(h.Sum(nil))
}
