package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

// HTTPProvider reads quotes from a JSON price service:
//
//	GET {base}/quote/{symbol}          -> {"symbol","price","timestamp"}
//	GET {base}/quotes?symbols=A,B      -> {"quotes":[...]}
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

type HTTPProviderConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

type quotePayload struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

type batchPayload struct {
	Quotes []quotePayload `json:"quotes"`
}

var _ BatchProvider = (*HTTPProvider)(nil)

func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	var payload quotePayload
	if err := p.get(ctx, "/quote/"+url.PathEscape(symbol), &payload); err != nil {
		return models.Quote{}, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}
	if payload.Symbol == "" {
		payload.Symbol = symbol
	}
	return toQuote(payload)
}

func (p *HTTPProvider) FetchBatch(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	var payload batchPayload
	path := "/quotes?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	if err := p.get(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}

	quotes := make(map[string]models.Quote, len(payload.Quotes))
	for _, item := range payload.Quotes {
		q, err := toQuote(item)
		if err != nil {
			return nil, err
		}
		quotes[q.Symbol] = q
	}
	return quotes, nil
}

// Ping checks that the upstream answers at all.
func (p *HTTPProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPProvider) get(ctx context.Context, path string, out interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSymbolNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func toQuote(p quotePayload) (models.Quote, error) {
	if !p.Price.IsPositive() {
		return models.Quote{}, fmt.Errorf("invalid price %s for %s", p.Price, p.Symbol)
	}
	return models.Quote{
		Symbol:    strings.ToUpper(p.Symbol),
		Price:     p.Price,
		Timestamp: p.Timestamp,
	}, nil
}
