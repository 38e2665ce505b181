package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RateTable maps a currency code to its rate against the provider's base
// currency. Values stay raw until looked up so that a non-numeric entry only
// affects the code that names it.
type RateTable map[string]json.RawMessage

// Lookup returns the rate for code. The second result reports whether the
// code is present; a present value that is not a JSON number yields 0.
func (table RateTable) Lookup(code string) (float64, bool) {
	raw, ok := table[code]
	if !ok {
		return 0, false
	}
	var rate float64
	if err := json.Unmarshal(raw, &rate); err != nil {
		return 0, true
	}
	return rate, true
}

// Codes returns the currency codes in sorted order.
func (table RateTable) Codes() []string {
	codes := make([]string, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Floats resolves every entry with Lookup semantics.
func (table RateTable) Floats() map[string]float64 {
	rates := make(map[string]float64, len(table))
	for code := range table {
		rates[code], _ = table.Lookup(code)
	}
	return rates
}

// RatesDocument is the parsed cache file.
type RatesDocument struct {
	Base      string
	Timestamp int64
	Rates     RateTable
}

type RatesResponse struct {
	Base      string             `json:"base,omitempty"`
	Timestamp int64              `json:"timestamp,omitempty"`
	Rates     map[string]float64 `json:"rates"`
	Provider  string             `json:"provider"`
}

type ConvertQuery struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

type ConvertResponse struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate"`
	Converted float64 `json:"converted"`
}

// String renders the result line printed by the command-line tool.
func (response ConvertResponse) String() string {
	return fmt.Sprintf("%s %.4f = %s %.4f", response.From, response.Amount, response.To, response.Converted)
}

type HealthCheck struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Uptime     string    `json:"uptime"`
	CacheFresh bool      `json:"cache_fresh"`
	CacheAge   string    `json:"cache_age,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
