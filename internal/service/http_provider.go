package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/topiga/currency/internal/config"
)

// HTTPExchangeRateProvider implements ExchangeRateProvider for the Open
// Exchange Rates latest endpoint
type HTTPExchangeRateProvider struct {
	configuration config.ExchangeRateProvider
	logger        *logrus.Logger
	httpClient    *http.Client
}

// NewHTTPExchangeRateProvider creates a new HTTP exchange rate provider
func NewHTTPExchangeRateProvider(configuration config.ExchangeRateProvider, logger *logrus.Logger) *HTTPExchangeRateProvider {
	return &HTTPExchangeRateProvider{
		configuration: configuration,
		logger:        logger,
		httpClient: &http.Client{
			Timeout: configuration.Timeout,
		},
	}
}

// GetName returns the provider name
func (provider *HTTPExchangeRateProvider) GetName() string {
	return provider.configuration.Name
}

// FetchLatest performs the GET, retrying transport errors and retryable
// statuses up to RetryCount more times.
func (provider *HTTPExchangeRateProvider) FetchLatest(ctx context.Context) ([]byte, error) {
	requestURL, err := provider.buildURL()
	if err != nil {
		return nil, err
	}

	retries := provider.configuration.RetryCount
	if retries < 0 {
		retries = 0
	}
	delay := provider.configuration.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewConstant(delay))

	var body []byte
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		responseBody, fetchErr := provider.fetchOnce(ctx, requestURL)
		if fetchErr == nil {
			body = responseBody
			return nil
		}

		provider.logger.WithFields(logrus.Fields{
			"provider": provider.GetName(),
			"attempt":  attempt,
		}).Debugf("rate fetch failed: %v", fetchErr)

		var statusErr *StatusError
		if errors.As(fetchErr, &statusErr) && !statusErr.Retryable() {
			return fetchErr
		}
		return retry.RetryableError(fetchErr)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (provider *HTTPExchangeRateProvider) fetchOnce(ctx context.Context, requestURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	response, err := provider.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &StatusError{StatusCode: response.StatusCode}
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// buildURL appends the API key as the app_id query parameter
func (provider *HTTPExchangeRateProvider) buildURL() (string, error) {
	parsed, err := url.Parse(provider.configuration.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid provider URL: %w", err)
	}
	query := parsed.Query()
	query.Set("app_id", provider.configuration.APIKey)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
