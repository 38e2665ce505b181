package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/topiga/currency/internal/cache"
	"github.com/topiga/currency/internal/config"
	"github.com/topiga/currency/internal/metrics"
	"github.com/topiga/currency/internal/models"
)

const refreshKey = "refresh"

// RatesService runs the rate pipeline: maybe-refresh the cache file from the
// provider, read and parse it, and convert between two codes.
type RatesService struct {
	provider  ExchangeRateProvider
	fileCache *cache.FileCache
	logger    *logrus.Logger
	metrics   *metrics.Metrics

	// onRefreshError is called when a refresh fails and stale data is used.
	onRefreshError func(error)

	singleFlightGroup singleflight.Group

	// fileMutex keeps readers off the cache file while a refresh rewrites it.
	fileMutex sync.RWMutex
}

// NewRatesService wires the HTTP provider and cache file named by configuration.
func NewRatesService(configuration *config.Config, logger *logrus.Logger) *RatesService {
	provider := NewHTTPExchangeRateProvider(configuration.ExchangeRateProvider, logger)
	return NewRatesServiceWithProvider(provider, cache.NewFileCache(configuration.CachePath), logger)
}

// NewRatesServiceWithProvider creates a service around an explicit provider and cache.
func NewRatesServiceWithProvider(provider ExchangeRateProvider, fileCache *cache.FileCache, logger *logrus.Logger) *RatesService {
	ratesService := &RatesService{
		provider:  provider,
		fileCache: fileCache,
		logger:    logger,
	}
	ratesService.onRefreshError = func(err error) {
		ratesService.logger.Warnf("unable to refresh currency rates, using previous data: %v", err)
	}
	return ratesService
}

// WithMetrics attaches collectors after initialization
func (ratesService *RatesService) WithMetrics(m *metrics.Metrics) *RatesService {
	ratesService.metrics = m
	return ratesService
}

// WithRefreshErrorHandler replaces the default log-and-continue reaction to a failed refresh.
func (ratesService *RatesService) WithRefreshErrorHandler(handler func(error)) *RatesService {
	ratesService.onRefreshError = handler
	return ratesService
}

// CachePath returns the location of the cache file.
func (ratesService *RatesService) CachePath() string {
	return ratesService.fileCache.Path()
}

// CacheStatus reports whether the cache file is fresh and how old it is.
func (ratesService *RatesService) CacheStatus() (bool, time.Duration, error) {
	age, err := ratesService.fileCache.Age()
	if err != nil {
		return false, 0, err
	}
	return ratesService.fileCache.IsFresh(), age, nil
}

// RefreshIfStale fetches a new document when the cache file is missing or
// older than the freshness window. It reports whether a fetch happened.
func (ratesService *RatesService) RefreshIfStale(ctx context.Context) (bool, error) {
	if ratesService.fileCache.IsFresh() {
		ratesService.metrics.RecordCacheHit()
		ratesService.logger.WithField("path", ratesService.fileCache.Path()).Debug("cache is fresh, skipping fetch")
		return false, nil
	}
	return true, ratesService.Refresh(ctx)
}

// Refresh fetches the latest document and overwrites the cache file.
// Concurrent callers share a single fetch, which outlives the caller that
// started it.
func (ratesService *RatesService) Refresh(ctx context.Context) error {
	fetchCtx := context.WithoutCancel(ctx)
	_, err, shared := ratesService.singleFlightGroup.Do(refreshKey, func() (interface{}, error) {
		return nil, ratesService.fetchAndStore(fetchCtx)
	})
	if shared {
		ratesService.logger.Debug("joined in-flight refresh")
	}
	return err
}

func (ratesService *RatesService) fetchAndStore(ctx context.Context) error {
	ratesService.logger.WithField("provider", ratesService.provider.GetName()).Debug("fetching rates")

	body, err := ratesService.provider.FetchLatest(ctx)
	if err == nil {
		err = ratesService.store(body)
	}
	ratesService.metrics.RecordFetch(err)
	if err != nil {
		return &ServiceError{
			Type:    ErrorTypeFetch,
			Message: "unable to refresh currency rates",
			Cause:   err,
		}
	}

	ratesService.logger.WithFields(logrus.Fields{
		"path":  ratesService.fileCache.Path(),
		"bytes": len(body),
	}).Info("cache refreshed")
	return nil
}

func (ratesService *RatesService) store(body []byte) error {
	ratesService.fileMutex.Lock()
	defer ratesService.fileMutex.Unlock()
	return ratesService.fileCache.Write(body)
}

// LoadRates refreshes the cache when needed, falling back to the existing
// file on failure, then parses it.
func (ratesService *RatesService) LoadRates(ctx context.Context) (models.RatesDocument, error) {
	if _, err := ratesService.RefreshIfStale(ctx); err != nil {
		ratesService.onRefreshError(err)
	}
	return ratesService.ReadRates()
}

// ReadRates reads and parses the cache file without contacting the provider.
func (ratesService *RatesService) ReadRates() (models.RatesDocument, error) {
	ratesService.fileMutex.RLock()
	data, err := ratesService.fileCache.Read()
	ratesService.fileMutex.RUnlock()
	if err != nil {
		return models.RatesDocument{}, &ServiceError{
			Type: ErrorTypeCacheRead,
			Message: fmt.Sprintf("unable to read currency rates from %s. Verify the file exists and permissions.",
				ratesService.fileCache.Path()),
			Cause: err,
		}
	}
	return ParseRatesDocument(data)
}

// ParseRatesDocument decodes a rate document. Only a top-level "rates"
// object is required; base and timestamp are picked up when present.
// Valid JSON that is not an object has no rates field.
func ParseRatesDocument(data []byte) (models.RatesDocument, error) {
	var fields map[string]json.RawMessage
	var typeError *json.UnmarshalTypeError
	if err := json.Unmarshal(data, &fields); err != nil && !errors.As(err, &typeError) {
		return models.RatesDocument{}, &ServiceError{
			Type:    ErrorTypeMalformedCache,
			Message: "could not parse JSON from the currency file",
			Cause:   err,
		}
	}

	rawRates := bytes.TrimSpace(fields["rates"])
	if len(rawRates) == 0 || rawRates[0] != '{' {
		return models.RatesDocument{}, &ServiceError{
			Type:    ErrorTypeMissingRates,
			Message: "No 'rates' field found in the JSON data.",
		}
	}

	document := models.RatesDocument{}
	if err := json.Unmarshal(rawRates, &document.Rates); err != nil {
		return models.RatesDocument{}, &ServiceError{
			Type:    ErrorTypeMalformedCache,
			Message: "could not parse JSON from the currency file",
			Cause:   err,
		}
	}
	// base and timestamp are informational; ignore odd types
	_ = json.Unmarshal(fields["base"], &document.Base)
	_ = json.Unmarshal(fields["timestamp"], &document.Timestamp)

	return document, nil
}

// GetRates returns the rate table as numbers.
func (ratesService *RatesService) GetRates(ctx context.Context) (models.RatesResponse, error) {
	document, err := ratesService.LoadRates(ctx)
	if err != nil {
		return models.RatesResponse{}, err
	}
	return models.RatesResponse{
		Base:      document.Base,
		Timestamp: document.Timestamp,
		Rates:     document.Rates.Floats(),
		Provider:  ratesService.provider.GetName(),
	}, nil
}

// Convert converts query.Amount from query.From to query.To through the
// provider's base currency.
func (ratesService *RatesService) Convert(ctx context.Context, query models.ConvertQuery) (models.ConvertResponse, error) {
	response, err := ratesService.convert(ctx, query)
	ratesService.metrics.RecordConversion(err)
	return response, err
}

func (ratesService *RatesService) convert(ctx context.Context, query models.ConvertQuery) (models.ConvertResponse, error) {
	document, err := ratesService.LoadRates(ctx)
	if err != nil {
		return models.ConvertResponse{}, err
	}

	rateFrom, found := document.Rates.Lookup(query.From)
	if !found {
		return models.ConvertResponse{}, unknownCurrency(query.From)
	}
	rateTo, found := document.Rates.Lookup(query.To)
	if !found {
		return models.ConvertResponse{}, unknownCurrency(query.To)
	}

	return models.ConvertResponse{
		From:      query.From,
		To:        query.To,
		Amount:    query.Amount,
		Rate:      rateTo / rateFrom,
		Converted: Convert(query.Amount, rateFrom, rateTo),
	}, nil
}

// Convert converts amount into the base currency, then into the target.
func Convert(amount, rateFrom, rateTo float64) float64 {
	return (amount / rateFrom) * rateTo
}
