package service

import (
	"context"
)

// ExchangeRateProvider fetches the latest rate document from a remote service
type ExchangeRateProvider interface {
	GetName() string
	// FetchLatest returns the raw response body of a successful request.
	FetchLatest(ctx context.Context) ([]byte, error)
}
