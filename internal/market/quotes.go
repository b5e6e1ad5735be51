package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "marketwatch/internal/errors"
	"marketwatch/internal/snapshot"
	"marketwatch/pkg/utils"
)

// Quote is a single daily close for an index or symbol.
type Quote struct {
	Symbol string
	Date   time.Time
	Close  float64
}

// QuoteSource supplies recent index quote history for weakness detection.
type QuoteSource interface {
	IndexHistory(ctx context.Context, symbol string, n int) ([]Quote, error)
}

// SymbolSource supplies current candidate symbol lists for the refresh
// actions. The list argument names which screener list to fetch
// (top stocks, pump candidates, high movement, positive news, full
// universe).
type SymbolSource interface {
	FetchList(ctx context.Context, list string) ([]snapshot.Record, error)
}

// HTTPDataSource implements QuoteSource and SymbolSource against a
// JSON-over-HTTP market data service. Transient failures are retried
// with the shared backoff policy before surfacing as a FetchError.
type HTTPDataSource struct {
	baseURL string
	client  *http.Client
	retry   utils.RetryConfig
}

// DataSourceOption configures an HTTPDataSource.
type DataSourceOption func(*HTTPDataSource)

// WithRetryConfig overrides the source's retry policy.
func WithRetryConfig(cfg utils.RetryConfig) DataSourceOption {
	return func(h *HTTPDataSource) {
		h.retry = cfg
	}
}

// NewHTTPDataSource creates a data source for the given base URL.
func NewHTTPDataSource(baseURL string, opts ...DataSourceOption) *HTTPDataSource {
	h := &HTTPDataSource{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry: utils.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type quoteResponse struct {
	Symbol string `json:"symbol"`
	Closes []struct {
		Date  string  `json:"date"`
		Close float64 `json:"close"`
	} `json:"closes"`
}

// IndexHistory fetches the n most recent daily closes for symbol.
func (h *HTTPDataSource) IndexHistory(ctx context.Context, symbol string, n int) ([]Quote, error) {
	url := fmt.Sprintf("%s/quotes/%s?limit=%d", h.baseURL, symbol, n)

	resp, err := utils.RetryWithResult(ctx, h.retry, func() (quoteResponse, error) {
		var r quoteResponse
		err := h.getJSON(ctx, url, &r)
		return r, err
	})
	if err != nil {
		return nil, apperrors.NewFetchError(symbol, err)
	}

	quotes := make([]Quote, 0, len(resp.Closes))
	for _, c := range resp.Closes {
		date, err := time.Parse("2006-01-02", c.Date)
		if err != nil {
			return nil, apperrors.NewFetchError(symbol, fmt.Errorf("parsing date %q: %w", c.Date, err))
		}
		quotes = append(quotes, Quote{Symbol: resp.Symbol, Date: date, Close: c.Close})
	}
	return quotes, nil
}

// FetchList fetches a named candidate symbol list.
func (h *HTTPDataSource) FetchList(ctx context.Context, list string) ([]snapshot.Record, error) {
	url := fmt.Sprintf("%s/screener/%s", h.baseURL, list)

	records, err := utils.RetryWithResult(ctx, h.retry, func() ([]snapshot.Record, error) {
		var r []snapshot.Record
		err := h.getJSON(ctx, url, &r)
		return r, err
	})
	if err != nil {
		return nil, apperrors.NewFetchError(list, err)
	}
	return records, nil
}

func (h *HTTPDataSource) getJSON(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
