// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package yahoo provides a client for the Yahoo Finance v8 chart API.
//
// The chart endpoint returns split-adjusted daily closes together with split
// events for a single symbol. The API is unauthenticated but rejects requests
// without a browser-like User-Agent.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bufdev/ibjasper/internal/pkg/backoff"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the Yahoo Finance chart API base URL.
const DefaultBaseURL = "https://query2.finance.yahoo.com/v8/finance/chart"

const userAgent = `Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15`

// ErrSymbolNotFound is returned when Yahoo does not know the symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// DailyClose is a single daily closing price.
type DailyClose struct {
	Date  xtime.Date
	Close decimal.Decimal
}

// Split is a stock split event. Ratio is numerator/denominator, so a 4:1
// forward split has ratio 4.
type Split struct {
	Date  xtime.Date
	Ratio decimal.Decimal
}

// Chart is the parsed history for one symbol.
type Chart struct {
	Symbol   string
	Currency string
	Closes   []DailyClose
	Splits   []Split
}

// Client fetches daily history from Yahoo Finance.
type Client interface {
	// GetChart returns daily closes and splits for symbol within [start, end].
	GetChart(ctx context.Context, symbol string, start xtime.Date, end xtime.Date) (*Chart, error)
}

// ClientOption is an option for a new Client.
type ClientOption func(*client)

// ClientWithHTTPClient sets the HTTP client.
func ClientWithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *client) {
		client.httpClient = httpClient
	}
}

// ClientWithBaseURL sets the base URL. Used for testing.
func ClientWithBaseURL(baseURL string) ClientOption {
	return func(client *client) {
		client.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewClient creates a new Yahoo Finance client.
func NewClient(options ...ClientOption) Client {
	client := &client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// *** PRIVATE ***

type client struct {
	httpClient *http.Client
	baseURL    string
}

func (c *client) GetChart(ctx context.Context, symbol string, start xtime.Date, end xtime.Date) (*Chart, error) {
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %s is before start %s", end, start)
	}
	query := url.Values{}
	query.Set("interval", "1d")
	query.Set("events", "div,splits")
	query.Set("includePrePost", "false")
	query.Set("period1", strconv.FormatInt(start.Start().Unix(), 10))
	// period2 is exclusive.
	query.Set("period2", strconv.FormatInt(end.AddDays(1).Start().Unix(), 10))
	reqURL := c.baseURL + "/" + url.PathEscape(symbol) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var chartResp chartResponse
	parseErr := json.Unmarshal(body, &chartResp)
	// Yahoo returns a chart error document with 404 for unknown symbols.
	if parseErr == nil && chartResp.Chart != nil && chartResp.Chart.Error != nil {
		chartErr := chartResp.Chart.Error
		if chartErr.Code == "Not Found" {
			return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
		}
		if resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("chart error for %s: code=%q description=%q", symbol, chartErr.Code, chartErr.Description)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &backoff.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parsing response: %w", parseErr)
	}
	return chartResponseToChart(symbol, &chartResp, start, end)
}

type chartResponse struct {
	Chart *chart `json:"chart"`
}

type chart struct {
	Result []*chartResult `json:"result"`
	Error  *chartError    `json:"error"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       *chartMeta       `json:"meta"`
	Timestamps []int64          `json:"timestamp"`
	Events     *chartEvents     `json:"events"`
	Indicators *chartIndicators `json:"indicators"`
}

type chartMeta struct {
	Currency             string `json:"currency"`
	Symbol               string `json:"symbol"`
	ExchangeTimezoneName string `json:"exchangeTimezoneName"`
}

type chartEvents struct {
	// Keyed by the event Unix timestamp as a string.
	Splits map[string]*chartSplit `json:"splits"`
}

type chartSplit struct {
	Date        int64   `json:"date"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
}

type chartIndicators struct {
	Quote []*chartQuote `json:"quote"`
}

type chartQuote struct {
	// Null entries appear for halted sessions.
	Close []*float64 `json:"close"`
}

func chartResponseToChart(symbol string, chartResp *chartResponse, start xtime.Date, end xtime.Date) (*Chart, error) {
	if chartResp.Chart == nil {
		return nil, errors.New("response does not include chart")
	}
	if len(chartResp.Chart.Result) != 1 {
		return nil, fmt.Errorf("expected one chart result, got %d", len(chartResp.Chart.Result))
	}
	result := chartResp.Chart.Result[0]
	location := time.UTC
	parsed := &Chart{
		Symbol: symbol,
	}
	if result.Meta != nil {
		if result.Meta.Symbol != "" && !strings.EqualFold(result.Meta.Symbol, symbol) {
			return nil, fmt.Errorf("response is for a different symbol: requested %q, received %q", symbol, result.Meta.Symbol)
		}
		parsed.Currency = result.Meta.Currency
		if loadedLocation, err := time.LoadLocation(result.Meta.ExchangeTimezoneName); err == nil {
			location = loadedLocation
		}
	}
	// A range with no trading days has no indicators.
	if result.Indicators != nil && len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		if len(result.Timestamps) < len(closes) {
			return nil, fmt.Errorf("response has %d timestamps for %d closes", len(result.Timestamps), len(closes))
		}
		for i, value := range closes {
			if value == nil || math.IsNaN(*value) || *value <= 0 {
				continue
			}
			date := xtime.TimeToDate(time.Unix(result.Timestamps[i], 0).In(location))
			if date.Before(start) || date.After(end) {
				continue
			}
			parsed.Closes = append(parsed.Closes, DailyClose{
				Date:  date,
				Close: decimal.NewFromFloat(*value),
			})
		}
	}
	if result.Events != nil {
		for _, split := range result.Events.Splits {
			if split == nil || split.Numerator <= 0 || split.Denominator <= 0 {
				continue
			}
			date := xtime.TimeToDate(time.Unix(split.Date, 0).In(location))
			if date.Before(start) || date.After(end) {
				continue
			}
			parsed.Splits = append(parsed.Splits, Split{
				Date:  date,
				Ratio: decimal.NewFromFloat(split.Numerator).Div(decimal.NewFromFloat(split.Denominator)),
			})
		}
	}
	slices.SortFunc(parsed.Closes, func(a DailyClose, b DailyClose) int {
		return a.Date.Compare(b.Date)
	})
	slices.SortFunc(parsed.Splits, func(a Split, b Split) int {
		return a.Date.Compare(b.Date)
	})
	return parsed, nil
}
