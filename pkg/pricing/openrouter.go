package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultModelsURL = "https://openrouter.ai/api/v1/models"
	cacheFileName    = "openrouter_models.json"
	defaultCacheTTL  = 24 * time.Hour
)

// Fetcher pulls live per-token pricing from the OpenRouter model catalog,
// caching the response on disk so repeated runs within the TTL stay offline.
type Fetcher struct {
	url        string
	cachePath  string
	cacheTTL   time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// NewFetcher creates a pricing fetcher that caches under cacheDir.
func NewFetcher(cacheDir string, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		url:        defaultModelsURL,
		cachePath:  filepath.Join(cacheDir, cacheFileName),
		cacheTTL:   defaultCacheTTL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// SetURL overrides the catalog endpoint. Used by tests.
func (f *Fetcher) SetURL(url string) {
	f.url = url
}

// SetCacheTTL overrides how long a cached catalog stays fresh.
func (f *Fetcher) SetCacheTTL(ttl time.Duration) {
	f.cacheTTL = ttl
}

type catalogCache struct {
	FetchedAt time.Time                  `json:"fetched_at"`
	Rates     map[string]map[string]Rate `json:"rates"`
}

type catalogResponse struct {
	Data []struct {
		ID      string `json:"id"`
		Pricing struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
	} `json:"data"`
}

// Fetch returns a pricing snapshot, serving from the disk cache when fresh
// and hitting the catalog endpoint otherwise. A stale cache is still returned
// as a fallback when the fetch fails.
func (f *Fetcher) Fetch(ctx context.Context) (*Table, error) {
	if cached, ok := f.loadCache(); ok {
		f.log.Debug().Time("fetched_at", cached.FetchedAt).Msg("using cached pricing catalog")
		return NewTable(cached.Rates), nil
	}

	rates, err := f.fetchCatalog(ctx)
	if err != nil {
		if stale, staleErr := f.readCacheFile(); staleErr == nil {
			f.log.Warn().Err(err).Msg("pricing fetch failed, falling back to stale cache")
			return NewTable(stale.Rates), nil
		}
		return nil, fmt.Errorf("fetch pricing catalog: %w", err)
	}

	f.writeCache(rates)
	return NewTable(rates), nil
}

func (f *Fetcher) fetchCatalog(ctx context.Context) (map[string]map[string]Rate, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("pricing catalog returned status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	var catalog catalogResponse
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, fmt.Errorf("decode pricing catalog: %w", err)
	}

	rates := make(map[string]map[string]Rate)
	add := func(provider, model string, rate Rate) {
		if rates[provider] == nil {
			rates[provider] = make(map[string]Rate)
		}
		rates[provider][model] = rate
	}
	for _, entry := range catalog.Data {
		input, err := decimal.NewFromString(entry.Pricing.Prompt)
		if err != nil {
			continue
		}
		output, err := decimal.NewFromString(entry.Pricing.Completion)
		if err != nil {
			continue
		}
		rate := Rate{InputPerToken: input, OutputPerToken: output}

		// The catalog keys models as "provider/model". Register the rate
		// both for routed calls and for the direct provider adapter.
		add("openrouter", entry.ID, rate)
		if provider, model, ok := strings.Cut(entry.ID, "/"); ok {
			add(provider, model, rate)
		}
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("pricing catalog contained no usable entries")
	}
	return rates, nil
}

func (f *Fetcher) loadCache() (*catalogCache, bool) {
	cached, err := f.readCacheFile()
	if err != nil {
		return nil, false
	}
	if time.Since(cached.FetchedAt) > f.cacheTTL {
		return nil, false
	}
	return cached, true
}

func (f *Fetcher) readCacheFile() (*catalogCache, error) {
	data, err := os.ReadFile(f.cachePath)
	if err != nil {
		return nil, err
	}
	var cached catalogCache
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (f *Fetcher) writeCache(rates map[string]map[string]Rate) {
	cached := catalogCache{FetchedAt: time.Now().UTC(), Rates: rates}
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.cachePath), 0o755); err != nil {
		f.log.Warn().Err(err).Msg("failed to create pricing cache directory")
		return
	}
	if err := os.WriteFile(f.cachePath, data, 0o644); err != nil {
		f.log.Warn().Err(err).Msg("failed to write pricing cache")
	}
}
