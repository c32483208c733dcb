package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/msme-loan-scorer/internal/config"
)

// Pinger is the minimal interface for a dependency capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// Check is one readiness probe.
type Check = func(ctx context.Context) error

// BuildReadinessChecks returns readiness checks for db, redis, qdrant and
// tika. Optional dependencies (nil db pool or redis cache) yield nil checks,
// which the readiness handler reports as skipped.
func BuildReadinessChecks(cfg config.Config, pool, redisCache Pinger) (db, redis, qdrant, tika Check) {
	if pool != nil {
		db = pool.Ping
	}
	if redisCache != nil {
		redis = redisCache.Ping
	}
	qdrant = func(ctx context.Context) error {
		return probeHTTP(ctx, cfg.QdrantURL+"/collections", cfg.QdrantAPIKey, "qdrant")
	}
	tika = func(ctx context.Context) error {
		if cfg.TikaURL == "" {
			return fmt.Errorf("tika url not configured")
		}
		return probeHTTP(ctx, cfg.TikaURL+"/version", "", "tika")
	}
	return db, redis, qdrant, tika
}

func probeHTTP(ctx context.Context, url, apiKey, name string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("api-key", apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%s status %d", name, resp.StatusCode)
}
