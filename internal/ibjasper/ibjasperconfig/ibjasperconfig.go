// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjasperconfig provides configuration parsing and validation for ibjasper.
//
// Configuration is stored at ibjasper.yaml in the base directory.
package ibjasperconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperpath"
	"github.com/bufdev/ibjasper/internal/pkg/cbr"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultCurrency is the portfolio currency when none is configured.
const DefaultCurrency = "USD"

// configTemplate is the default configuration file template with comments.
// yaml.v3 does not preserve comments, so we hardcode the template string.
const configTemplate = `# The configuration file version.
#
# Required. The only current valid version is v1.
version: v1
# Model portfolios.
#
# Required. Trades for a ticker are attributed to the portfolio that targets it.
# Place IBKR Activity Statement CSV exports under activity_statements/.
portfolios:
    # The portfolio name, used with --portfolio.
    #
    # Required.
  - name: Main
    # The currency used to format values.
    #
    # Optional. Defaults to USD.
    currency: USD
    # The value the target weights apply to.
    #
    # Optional. If unset, weights are relative to the current portfolio value.
    target_value: 100000
    # Target weights in percent.
    #
    # Required. Must sum to 100. A ticker with weight 0 is still tracked.
    targets:
      VTI: 60
      VXUS: 40
# FX configuration.
fx:
  # Currencies converted to RUB for tax-loss harvesting.
  #
  # Optional. Defaults to [USD].
  currencies:
    - USD
`

// ExternalConfig is the YAML-serializable configuration file structure.
type ExternalConfig struct {
	// Version is the configuration file version (must be "v1").
	Version string `yaml:"version"`
	// Portfolios is the list of model portfolios.
	Portfolios []ExternalPortfolioConfig `yaml:"portfolios"`
	// FX holds FX rate configuration.
	FX ExternalFXConfig `yaml:"fx"`
}

// ExternalPortfolioConfig holds a model portfolio.
type ExternalPortfolioConfig struct {
	Name        string                     `yaml:"name"`
	Currency    string                     `yaml:"currency"`
	TargetValue decimal.Decimal            `yaml:"target_value"`
	Targets     map[string]decimal.Decimal `yaml:"targets"`
}

// ExternalFXConfig holds FX configuration.
type ExternalFXConfig struct {
	Currencies []string `yaml:"currencies"`
}

// Config is the validated runtime configuration derived from the config file.
type Config struct {
	// Portfolios is the list of portfolios in configuration order.
	Portfolios []*PortfolioConfig
	// FxCurrencies is the sorted list of currencies to fetch RUB rates for.
	FxCurrencies []string
}

// PortfolioConfig is a validated model portfolio.
type PortfolioConfig struct {
	Name     string
	Currency string
	// TargetValue is zero if unset.
	TargetValue decimal.Decimal
	// TargetPercents maps tickers to target weights in percent.
	TargetPercents map[string]decimal.Decimal
	// Tickers is the sorted list of target tickers.
	Tickers []string
}

// NewConfig validates an ExternalConfig and returns a runtime Config.
func NewConfig(externalConfig ExternalConfig) (*Config, error) {
	if externalConfig.Version != "v1" {
		return nil, fmt.Errorf("unsupported config version %q, must be v1", externalConfig.Version)
	}
	if len(externalConfig.Portfolios) == 0 {
		return nil, errors.New("at least one portfolio is required")
	}
	hundred := decimal.NewFromInt(100)
	names := make(map[string]struct{}, len(externalConfig.Portfolios))
	portfolios := make([]*PortfolioConfig, 0, len(externalConfig.Portfolios))
	for _, externalPortfolio := range externalConfig.Portfolios {
		if externalPortfolio.Name == "" {
			return nil, errors.New("portfolio name is required")
		}
		if _, ok := names[externalPortfolio.Name]; ok {
			return nil, fmt.Errorf("duplicate portfolio name %q", externalPortfolio.Name)
		}
		names[externalPortfolio.Name] = struct{}{}
		currency := strings.ToUpper(externalPortfolio.Currency)
		if currency == "" {
			currency = DefaultCurrency
		}
		if len(currency) != 3 {
			return nil, fmt.Errorf("portfolio %q: invalid currency %q", externalPortfolio.Name, externalPortfolio.Currency)
		}
		if externalPortfolio.TargetValue.IsNegative() {
			return nil, fmt.Errorf("portfolio %q: target_value must not be negative", externalPortfolio.Name)
		}
		if len(externalPortfolio.Targets) == 0 {
			return nil, fmt.Errorf("portfolio %q: targets are required", externalPortfolio.Name)
		}
		targetPercents := make(map[string]decimal.Decimal, len(externalPortfolio.Targets))
		sum := decimal.Zero
		for ticker, percent := range externalPortfolio.Targets {
			if ticker == "" {
				return nil, fmt.Errorf("portfolio %q: empty ticker in targets", externalPortfolio.Name)
			}
			if percent.IsNegative() {
				return nil, fmt.Errorf("portfolio %q: target for %s must not be negative", externalPortfolio.Name, ticker)
			}
			targetPercents[ticker] = percent
			sum = sum.Add(percent)
		}
		if !sum.Equal(hundred) {
			return nil, fmt.Errorf("portfolio %q: targets sum to %s, must sum to 100", externalPortfolio.Name, sum)
		}
		tickers := make([]string, 0, len(targetPercents))
		for ticker := range targetPercents {
			tickers = append(tickers, ticker)
		}
		sort.Strings(tickers)
		portfolios = append(portfolios, &PortfolioConfig{
			Name:           externalPortfolio.Name,
			Currency:       currency,
			TargetValue:    externalPortfolio.TargetValue,
			TargetPercents: targetPercents,
			Tickers:        tickers,
		})
	}
	fxCurrencies := externalConfig.FX.Currencies
	if len(fxCurrencies) == 0 {
		fxCurrencies = []string{DefaultCurrency}
	}
	supportedCurrencies := cbr.SupportedCurrencies()
	normalizedFxCurrencies := make([]string, 0, len(fxCurrencies))
	for _, currency := range fxCurrencies {
		currency = strings.ToUpper(currency)
		if currency == ibjaspermarket.BaseCurrency {
			continue
		}
		if !slices.Contains(supportedCurrencies, currency) {
			return nil, fmt.Errorf("fx currency %q is not supported, must be one of %s", currency, strings.Join(supportedCurrencies, ", "))
		}
		normalizedFxCurrencies = append(normalizedFxCurrencies, currency)
	}
	slices.Sort(normalizedFxCurrencies)
	return &Config{
		Portfolios:   portfolios,
		FxCurrencies: slices.Compact(normalizedFxCurrencies),
	}, nil
}

// Portfolio returns the portfolio with the given name.
func (c *Config) Portfolio(name string) (*PortfolioConfig, error) {
	for _, portfolio := range c.Portfolios {
		if portfolio.Name == name {
			return portfolio, nil
		}
	}
	names := make([]string, 0, len(c.Portfolios))
	for _, portfolio := range c.Portfolios {
		names = append(names, portfolio.Name)
	}
	return nil, fmt.Errorf("unknown portfolio %q, must be one of %s", name, strings.Join(names, ", "))
}

// Tickers returns the sorted union of all target tickers.
func (c *Config) Tickers() []string {
	var tickers []string
	for _, portfolio := range c.Portfolios {
		tickers = append(tickers, portfolio.Tickers...)
	}
	slices.Sort(tickers)
	return slices.Compact(tickers)
}

// SharedTickers returns the sorted tickers that appear in more than one portfolio.
func (c *Config) SharedTickers() []string {
	tickerToCount := make(map[string]int)
	for _, portfolio := range c.Portfolios {
		for _, ticker := range portfolio.Tickers {
			tickerToCount[ticker]++
		}
	}
	var shared []string
	for ticker, count := range tickerToCount {
		if count > 1 {
			shared = append(shared, ticker)
		}
	}
	sort.Strings(shared)
	return shared
}

// ReadConfig reads and validates the configuration file from the given base directory.
// Returns a clear error message directing users to run "ibjasper config init" if the file is missing.
func ReadConfig(dirPath string) (*Config, error) {
	filePath := ibjasperpath.ConfigFilePath(dirPath)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found at %s, run \"ibjasper config init\" to create one", filePath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var externalConfig ExternalConfig
	if err := unmarshalYAMLStrict(data, &externalConfig); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
	}
	return NewConfig(externalConfig)
}

// InitConfig creates a new configuration file with a documented template.
// Creates the base directory if it does not exist.
// Returns the path to the created file, or an error if the file already exists.
func InitConfig(dirPath string) (string, error) {
	filePath := ibjasperpath.ConfigFilePath(dirPath)
	if _, err := os.Stat(filePath); err == nil {
		return "", fmt.Errorf("configuration file already exists: %s", filePath)
	}
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(configTemplate), 0o644); err != nil {
		return "", err
	}
	return filePath, nil
}

// ValidateConfig reads and validates the configuration file from the given base directory.
func ValidateConfig(dirPath string) error {
	_, err := ReadConfig(dirPath)
	return err
}

// *** PRIVATE ***

// unmarshalYAMLStrict unmarshals the data as YAML with strict field checking.
// If the data length is 0, this is a no-op.
func unmarshalYAMLStrict(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
	// Reject unknown fields.
	yamlDecoder.KnownFields(true)
	if err := yamlDecoder.Decode(v); err != nil {
		return fmt.Errorf("could not unmarshal as YAML: %w", err)
	}
	return nil
}
