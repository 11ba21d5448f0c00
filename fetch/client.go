package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/breakout/shared"
	"github.com/tidwall/gjson"
)

const (
	historyPath = "/history"
	quotesPath  = "/quotes"
)

// ClientConfig represents the configuration for the market data provider client.
type ClientConfig struct {
	// BaseURL is the provider's data api base url.
	BaseURL string
	// AccessToken is the provider access token.
	AccessToken string
	// AppID is the provider app identifier, optional.
	AppID string
	// Timeout is the http client timeout.
	Timeout time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *ClientConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("no base url provided for the market data client"))
	}
	if cfg.AccessToken == "" {
		errs = errors.Join(errs, fmt.Errorf("no access token provided for the market data client"))
	}
	if cfg.Timeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("market data client timeout must be positive"))
	}

	return errs
}

// Client represents the market data provider api client.
type Client struct {
	cfg   *ClientConfig
	httpc http.Client
}

// Ensure the Client implements the MarketFetcher interface.
var _ shared.MarketFetcher = (*Client)(nil)

// NewClient instantiates a new market data provider client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	return &Client{
		cfg:   cfg,
		httpc: http.Client{Timeout: cfg.Timeout},
	}, nil
}

// formURL creates full urls including paramters for the api.
func (c *Client) formURL(path string, params string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(c.cfg.BaseURL, "/"))
	b.WriteString(path)
	b.WriteString("?")
	b.WriteString(params)

	return b.String()
}

// authorization returns the authorization header value for requests.
func (c *Client) authorization() string {
	if c.cfg.AppID == "" {
		return "Bearer " + c.cfg.AccessToken
	}

	return "Bearer " + c.cfg.AppID + ":" + c.cfg.AccessToken
}

// get performs an authenticated get request, returning the response body.
func (c *Client) get(ctx context.Context, formedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formedURL, nil)
	if err != nil {
		return nil, Terminal(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Authorization", c.authorization())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, Terminal(fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// FetchHistory fetches historical candles for the provided window.
func (c *Client) FetchHistory(ctx context.Context, symbol string, resolution shared.Resolution, start time.Time, end time.Time) ([]gjson.Result, error) {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("resolution", resolution.String())
	params.Add("date_format", "0")
	params.Add("range_from", strconv.FormatInt(start.Unix(), 10))
	params.Add("range_to", strconv.FormatInt(end.Unix(), 10))
	params.Add("cont_flag", "1")

	body, err := c.get(ctx, c.formURL(historyPath, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("fetching history (%s) for %s: %w", resolution.String(), symbol, err)
	}

	candles := gjson.GetBytes(body, "candles")
	if !candles.Exists() || !candles.IsArray() {
		return nil, Terminal(fmt.Errorf("%w: no candles in history response for %s", ErrMalformedPayload, symbol))
	}

	return candles.Array(), nil
}

// FetchQuotes fetches quotes for the provided symbols.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]gjson.Result, error) {
	params := url.Values{}
	params.Add("symbols", strings.Join(symbols, ","))

	body, err := c.get(ctx, c.formURL(quotesPath, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("fetching quotes for %s: %w", strings.Join(symbols, ","), err)
	}

	quotes := gjson.GetBytes(body, "d")
	if !quotes.Exists() || !quotes.IsArray() {
		return nil, Terminal(fmt.Errorf("%w: no quotes in response for %s", ErrMalformedPayload,
			strings.Join(symbols, ",")))
	}

	return quotes.Array(), nil
}

// VerifyAccess probes the provider with the configured credentials.
func (c *Client) VerifyAccess(ctx context.Context, symbol string) error {
	_, err := c.FetchQuotes(ctx, []string{symbol})
	if err != nil {
		return fmt.Errorf("verifying market data access: %w", err)
	}

	return nil
}
