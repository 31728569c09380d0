package feed

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
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// HTTPFeed implements Feed against a CoinGecko-style simple-price endpoint:
// GET {base}/simple/price?ids=a,b&vs_currencies=usd returning
// {"a":{"usd":1.23},"b":{"usd":4.56}}.
type HTTPFeed struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	client       *http.Client
	vsCurrency   string
}

// NewHTTPFeed creates an HTTP price feed. An empty baseURL uses the public
// CoinGecko API.
func NewHTTPFeed(baseURL, apiKey string) *HTTPFeed {
	resolved := strings.TrimRight(baseURL, "/")
	if resolved == "" {
		resolved = defaultBaseURL
	}

	header := "x-cg-demo-api-key"
	if strings.Contains(resolved, "pro-api.coingecko.com") {
		header = "x-cg-pro-api-key"
	}

	return &HTTPFeed{
		baseURL:      resolved,
		apiKey:       apiKey,
		apiKeyHeader: header,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		vsCurrency: "usd",
	}
}

func (f *HTTPFeed) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	prices, err := f.GetPrices(ctx, []string{assetID})
	if err != nil {
		return decimal.Zero, err
	}
	p, ok := prices[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, assetID)
	}
	return p, nil
}

func (f *HTTPFeed) GetPrices(ctx context.Context, assetIDs []string) (map[string]decimal.Decimal, error) {
	ids := normalizeIDs(assetIDs)
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	endpoint, err := url.Parse(f.baseURL + "/simple/price")
	if err != nil {
		return nil, err
	}

	query := endpoint.Query()
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", f.vsCurrency)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set(f.apiKeyHeader, f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Decode into json.Number so prices reach decimal without a float64
	// round-trip.
	var payload map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(payload))
	for id, values := range payload {
		raw, ok := values[f.vsCurrency]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil {
			continue
		}
		out[id] = price
	}

	return out, nil
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(strings.ToLower(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
