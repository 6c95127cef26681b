// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package cbr provides a client for fetching official RUB exchange rates from
// the Central Bank of Russia.
//
// The XML_dynamic endpoint returns the rate history of one currency over a date
// range. Documents are windows-1251 encoded, dates are dd.mm.yyyy, and values use
// a decimal comma. Rates are quoted per Nominal units of the foreign currency.
// The bank publishes rates for Tuesday through Saturday, so Mondays and holidays
// have no record.
//
// See https://www.cbr.ru/development/SXML/ for API documentation.
package cbr

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bufdev/ibjasper/internal/pkg/backoff"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// DefaultBaseURL is the Central Bank of Russia dynamic rates endpoint.
const DefaultBaseURL = "https://www.cbr.ru/scripts/XML_dynamic.asp"

// ErrUnsupportedCurrency is returned for currencies without a known CBR code.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// currencyToCode maps ISO codes to CBR internal currency codes.
var currencyToCode = map[string]string{
	"USD": "R01235",
	"EUR": "R01239",
	"GBP": "R01035",
	"CNY": "R01375",
	"CHF": "R01775",
	"JPY": "R01820",
}

// DailyRate is the RUB price of one unit of a currency on a date.
type DailyRate struct {
	Date xtime.Date
	Rate decimal.Decimal
}

// SupportedCurrencies returns the sorted ISO codes the client can fetch.
func SupportedCurrencies() []string {
	currencies := make([]string, 0, len(currencyToCode))
	for currency := range currencyToCode {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	return currencies
}

// Client fetches daily RUB rates from the Central Bank of Russia.
type Client interface {
	// GetRates returns the published rates for currency within [start, end],
	// sorted by date. Days without publication are absent.
	GetRates(ctx context.Context, currency string, start xtime.Date, end xtime.Date) ([]DailyRate, error)
}

// ClientOption is an option for a new Client.
type ClientOption func(*client)

// ClientWithHTTPClient sets the HTTP client.
func ClientWithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *client) {
		client.httpClient = httpClient
	}
}

// ClientWithBaseURL sets the endpoint URL. Used for testing.
func ClientWithBaseURL(baseURL string) ClientOption {
	return func(client *client) {
		client.baseURL = baseURL
	}
}

// NewClient creates a new Central Bank of Russia client.
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

// ParseRates parses an XML_dynamic document.
func ParseRates(data []byte) ([]DailyRate, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charsetReader
	var valCurs valCurs
	if err := decoder.Decode(&valCurs); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	rates := make([]DailyRate, 0, len(valCurs.Records))
	for _, record := range valCurs.Records {
		rate, err := recordToDailyRate(record)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	slices.SortFunc(rates, func(a DailyRate, b DailyRate) int {
		return a.Date.Compare(b.Date)
	})
	return rates, nil
}

// *** PRIVATE ***

const dateLayout = "02.01.2006"

type client struct {
	httpClient *http.Client
	baseURL    string
}

func (c *client) GetRates(ctx context.Context, currency string, start xtime.Date, end xtime.Date) ([]DailyRate, error) {
	code, ok := currencyToCode[strings.ToUpper(currency)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %s is before start %s", end, start)
	}
	query := url.Values{}
	query.Set("date_req1", start.In(time.UTC).Format("02/01/2006"))
	query.Set("date_req2", end.In(time.UTC).Format("02/01/2006"))
	query.Set("VAL_NM_RQ", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &backoff.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return ParseRates(body)
}

type valCurs struct {
	XMLName xml.Name    `xml:"ValCurs"`
	ID      string      `xml:"ID,attr"`
	Records []valRecord `xml:"Record"`
}

type valRecord struct {
	Date    string `xml:"Date,attr"`
	ID      string `xml:"Id,attr"`
	Nominal string `xml:"Nominal"`
	Value   string `xml:"Value"`
}

func recordToDailyRate(record valRecord) (DailyRate, error) {
	t, err := time.Parse(dateLayout, record.Date)
	if err != nil {
		return DailyRate{}, fmt.Errorf("parsing record date %q: %w", record.Date, err)
	}
	value, err := parseCommaDecimal(record.Value)
	if err != nil {
		return DailyRate{}, fmt.Errorf("parsing value for %s: %w", record.Date, err)
	}
	nominal := decimal.NewFromInt(1)
	if strings.TrimSpace(record.Nominal) != "" {
		nominal, err = parseCommaDecimal(record.Nominal)
		if err != nil {
			return DailyRate{}, fmt.Errorf("parsing nominal for %s: %w", record.Date, err)
		}
	}
	if !nominal.IsPositive() {
		return DailyRate{}, fmt.Errorf("non-positive nominal for %s: %s", record.Date, record.Nominal)
	}
	return DailyRate{
		Date: xtime.TimeToDate(t),
		Rate: value.Div(nominal),
	}, nil
}

func parseCommaDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "utf-8", "":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
}
