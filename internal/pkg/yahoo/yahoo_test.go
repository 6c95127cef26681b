// Copyright 2026 Peter Edge
//
// All rights reserved.

package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bufdev/ibjasper/internal/pkg/backoff"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/stretchr/testify/require"
)

func TestGetChart(t *testing.T) {
	t.Parallel()
	data, err := os.ReadFile(filepath.Join("testdata", "chart.json"))
	require.NoError(t, err)
	var gotPath string
	var gotQuery map[string]string
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUserAgent = r.Header.Get("User-Agent")
		gotQuery = map[string]string{
			"interval": r.URL.Query().Get("interval"),
			"events":   r.URL.Query().Get("events"),
			"period1":  r.URL.Query().Get("period1"),
			"period2":  r.URL.Query().Get("period2"),
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientWithBaseURL(server.URL+"/"), ClientWithHTTPClient(server.Client()))
	chart, err := client.GetChart(context.Background(), "VOO", date(t, "2023-01-03"), date(t, "2023-01-05"))
	require.NoError(t, err)
	require.Equal(t, "/VOO", gotPath)
	require.NotEmpty(t, gotUserAgent)
	require.Equal(t, "1d", gotQuery["interval"])
	require.Equal(t, "div,splits", gotQuery["events"])
	require.Equal(t, "1672704000", gotQuery["period1"])
	require.Equal(t, "1672963200", gotQuery["period2"])

	require.Equal(t, "VOO", chart.Symbol)
	require.Equal(t, "USD", chart.Currency)
	require.Len(t, chart.Closes, 2)
	require.Equal(t, date(t, "2023-01-03"), chart.Closes[0].Date)
	require.Equal(t, "351.34", chart.Closes[0].Close.String())
	require.Equal(t, date(t, "2023-01-05"), chart.Closes[1].Date)
	require.Equal(t, "348.5", chart.Closes[1].Close.String())
	require.Len(t, chart.Splits, 1)
	require.Equal(t, date(t, "2023-01-04"), chart.Splits[0].Date)
	require.Equal(t, "4", chart.Splits[0].Ratio.String())
}

func TestGetChartRangeFilter(t *testing.T) {
	t.Parallel()
	data, err := os.ReadFile(filepath.Join("testdata", "chart.json"))
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientWithBaseURL(server.URL))
	chart, err := client.GetChart(context.Background(), "VOO", date(t, "2023-01-05"), date(t, "2023-01-05"))
	require.NoError(t, err)
	require.Len(t, chart.Closes, 1)
	require.Empty(t, chart.Splits)
}

func TestGetChartNotFound(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientWithBaseURL(server.URL))
	_, err := client.GetChart(context.Background(), "NOPE", date(t, "2023-01-03"), date(t, "2023-01-05"))
	require.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestGetChartServerError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientWithBaseURL(server.URL))
	_, err := client.GetChart(context.Background(), "VOO", date(t, "2023-01-03"), date(t, "2023-01-05"))
	var statusError *backoff.StatusError
	require.ErrorAs(t, err, &statusError)
	require.Equal(t, http.StatusServiceUnavailable, statusError.StatusCode)
	require.True(t, backoff.IsRetryable(err))
}

func TestGetChartInvalidArguments(t *testing.T) {
	t.Parallel()
	client := NewClient(ClientWithBaseURL("http://127.0.0.1:0"))
	_, err := client.GetChart(context.Background(), "", date(t, "2023-01-03"), date(t, "2023-01-05"))
	require.Error(t, err)
	_, err = client.GetChart(context.Background(), "VOO", date(t, "2023-01-05"), date(t, "2023-01-03"))
	require.Error(t, err)
}

func TestChartResponseToChartSymbolMismatch(t *testing.T) {
	t.Parallel()
	chartResp := &chartResponse{
		Chart: &chart{
			Result: []*chartResult{
				{Meta: &chartMeta{Symbol: "SPY"}},
			},
		},
	}
	start := xtime.TimeToDate(time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC))
	_, err := chartResponseToChart("VOO", chartResp, start, start)
	require.ErrorContains(t, err, "different symbol")
}

func date(t *testing.T, s string) xtime.Date {
	t.Helper()
	d, err := xtime.ParseDate(s)
	require.NoError(t, err)
	return d
}
