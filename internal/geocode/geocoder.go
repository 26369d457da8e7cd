// Package geocode implements the Geocoder (component D): it resolves a
// candidate Location's coordinates through a fixed provenance hierarchy —
// gazetteer coordinates already attached, then an in-memory cache, then a
// rate-limited remote geocoding service, finally leaving the Location
// unresolved — grounded on rag/internal/embedding.Client for the remote
// call shape and on rag/internal/storage for idempotent resolution.
package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
	"github.com/ratsinfo/oparl-pipeline/internal/retry"
)

// ErrEnrichment wraps every error this package returns, so callers can
// distinguish geocoding failures from extraction or storage failures via
// errors.As.
type ErrEnrichment struct {
	CanonicalName string
	Cause         error
}

func (e *ErrEnrichment) Error() string {
	return fmt.Sprintf("geocode %q: %v", e.CanonicalName, e.Cause)
}

func (e *ErrEnrichment) Unwrap() error { return e.Cause }

// cacheKey matches the Geocoder's idempotence contract: identical
// (canonical_name, category) pairs across papers resolve once.
type cacheKey struct {
	name     string
	category model.ToponymCategory
}

// Config mirrors config.GeocodingConfig without importing internal/config.
type Config struct {
	ServiceURL     string
	RateLimitSec   float64
	TimeoutSec     int
	Retries        int
	VerifyTLS      bool
	LocalitySuffix string
	CacheSize      int
}

// Geocoder is safe for concurrent use: every outbound request, retries
// included, first waits on the rate limiter, which spaces request starts
// at least RateLimitSec apart, and the LRU cache is internally
// synchronized. No lock is held across a request, so a request that takes
// longer than the interval can overlap the next one.
type Geocoder struct {
	cfg     Config
	limiter *rate.Limiter
	cache   *lru.Cache[cacheKey, model.Location]
	client  *http.Client
	policy  retry.Policy
}

// NewGeocoder builds a Geocoder. A zero cfg.RateLimitSec disables
// throttling (burst-only limiter), matching a geocoding.service_url left
// unset in tests.
func NewGeocoder(cfg Config) (*Geocoder, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 10_000
	}
	cache, err := lru.New[cacheKey, model.Location](size)
	if err != nil {
		return nil, fmt.Errorf("geocode: build cache: %w", err)
	}

	rps := cfg.RateLimitSec
	var limit rate.Limit
	if rps <= 0 {
		limit = rate.Inf
	} else {
		limit = rate.Every(time.Duration(rps * float64(time.Second)))
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}

	return &Geocoder{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		cache:   cache,
		client:  &http.Client{Timeout: timeout},
		policy: retry.Policy{
			MaxAttempts: retries,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Retryable:   isRetryable,
		},
	}, nil
}

type geocodeRequest struct {
	Query string `json:"query"`
}

type geocodeResponse struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Found bool    `json:"found"`
}

// Resolve fills in loc.Lat/Lon/HasCoords/Provenance in place, following the
// hierarchy: coordinates the Location Extractor already attached from the
// gazetteer are never overwritten; otherwise the cache is checked; only a
// cache miss reaches the network. Every path validates coordinates before
// accepting them (spec.md §8 property 3) — an out-of-range result is
// treated the same as no result.
func (g *Geocoder) Resolve(ctx context.Context, loc *model.Location) error {
	if loc.HasCoords {
		if !model.ValidCoordinate(loc.Lat, loc.Lon) {
			loc.HasCoords = false
			loc.Lat, loc.Lon = 0, 0
		} else {
			loc.Provenance = model.ProvenanceGazetteer
			return nil
		}
	}

	key := cacheKey{name: loc.CanonicalName, category: loc.Category}
	if cached, ok := g.cache.Get(key); ok {
		loc.Lat, loc.Lon, loc.HasCoords = cached.Lat, cached.Lon, cached.HasCoords
		loc.Provenance = cached.Provenance
		return nil
	}

	if g.cfg.ServiceURL == "" {
		loc.Provenance = model.ProvenanceUnresolved
		g.cache.Add(key, *loc)
		return nil
	}

	var result geocodeResponse
	var waitErr error
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			waitErr = err
			return err
		}
		waitErr = nil
		r, err := g.query(ctx, loc)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if waitErr != nil {
		return &ErrEnrichment{CanonicalName: loc.CanonicalName, Cause: waitErr}
	}
	if err != nil {
		// A cancelled/expired context is the caller telling us to stop, so
		// it is still fatal to this Location. Every other outcome — a 4xx
		// from the service, a 5xx or timeout that exhausted retries, a
		// network error — is an ordinary EnrichmentError per spec.md §4.D
		// items 5-6: mark unresolved and move on rather than failing the
		// whole Paper.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &ErrEnrichment{CanonicalName: loc.CanonicalName, Cause: err}
		}
		loc.Provenance = model.ProvenanceUnresolved
		g.cache.Add(key, *loc)
		return nil
	}

	if result.Found && model.ValidCoordinate(result.Lat, result.Lon) {
		loc.Lat, loc.Lon = result.Lat, result.Lon
		loc.HasCoords = true
		loc.Provenance = model.ProvenanceRemoteGeocoder
	} else {
		loc.Provenance = model.ProvenanceUnresolved
	}

	g.cache.Add(key, *loc)
	return nil
}

func (g *Geocoder) query(ctx context.Context, loc *model.Location) (geocodeResponse, error) {
	query := loc.CanonicalName
	if g.cfg.LocalitySuffix != "" {
		query = query + ", " + g.cfg.LocalitySuffix
	}

	body, err := json.Marshal(geocodeRequest{Query: query})
	if err != nil {
		return geocodeResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.ServiceURL, bytes.NewReader(body))
	if err != nil {
		return geocodeResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return geocodeResponse{}, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return geocodeResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return geocodeResponse{}, &statusError{
			status: resp.StatusCode,
			err:    fmt.Errorf("geocoding service returned status %d: %s", resp.StatusCode, string(payload)),
		}
	}

	var out geocodeResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return geocodeResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// statusError carries the remote geocoding service's HTTP status code so
// isRetryable can tell a client error (bad query, not worth repeating) apart
// from a server error or timeout (worth retrying).
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.status >= 400 && statusErr.status < 500 {
		return false
	}
	return true
}
