// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibjasperreturn computes chain-linked period returns that are not
// distorted by trades and dividends inside the period.
//
// Each event date inside a period is split into two legs. The morning leg is
// the drift from the previous event's evening value to this morning's value,
// with no cash flow. The today leg is the drift from morning to evening net of
// the day's cash flow. The legs are multiplied together.
package ibjasperreturn

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bufdev/ibjasper/internal/ibjasper/ibjasperledger"
	"github.com/bufdev/ibjasper/internal/ibjasper/ibjaspermarket"
	"github.com/bufdev/ibjasper/internal/standard/xtime"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// ErrDegenerateValuation is returned by a strict Engine when a portfolio value
// used as a divisor is zero or negative.
var ErrDegenerateValuation = errors.New("degenerate valuation")

// Engine computes period returns for a ticker universe.
//
// An Engine is safe for concurrent use.
type Engine struct {
	logger   *slog.Logger
	ledger   *ibjasperledger.Ledger
	valuator *ibjaspermarket.Valuator
	tickers  []string
	strict   bool
}

// EngineOption is a functional option for configuring the Engine.
type EngineOption func(*Engine)

// EngineWithLogger sets the logger used to report degenerate valuations.
func EngineWithLogger(logger *slog.Logger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// EngineWithStrictValuation makes the Engine return ErrDegenerateValuation
// instead of using a factor of 1 when a divisor value is not positive.
func EngineWithStrictValuation(strict bool) EngineOption {
	return func(engine *Engine) {
		engine.strict = strict
	}
}

// NewEngine returns a new Engine.
//
// The ledger should already be restricted to the tickers.
func NewEngine(
	ledger *ibjasperledger.Ledger,
	valuator *ibjaspermarket.Valuator,
	tickers []string,
	options ...EngineOption,
) *Engine {
	engine := &Engine{
		logger:   slog.Default(),
		ledger:   ledger,
		valuator: valuator,
		tickers:  tickers,
	}
	for _, option := range options {
		option(engine)
	}
	return engine
}

// PeriodReturn returns the fractional total return over [start, end).
//
// Cash flows dated on end belong to the following period, so end only
// contributes its morning leg. This makes returns over adjacent periods
// telescope: (1+r(a,b))*(1+r(b,c)) == 1+r(a,c).
func (e *Engine) PeriodReturn(start xtime.Date, end xtime.Date) (float64, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("period end %s is before start %s", end, start)
	}
	if start == end {
		return 0, nil
	}
	eventDates := e.ledger.EventDates(start, end)
	// The first morning value seeds the previous value.
	valuePrev, err := e.valueAt(start)
	if err != nil {
		return 0, err
	}
	factors := make([]float64, 0, 2*len(eventDates))
	for _, eventDate := range eventDates {
		valueMorning, err := e.valueAt(eventDate)
		if err != nil {
			return 0, err
		}
		returnPrev, err := e.factor(valueMorning, valuePrev, eventDate, "previous")
		if err != nil {
			return 0, err
		}
		factors = append(factors, returnPrev)
		if eventDate == end {
			break
		}
		nextDate := eventDate.AddDays(1)
		valueEvening, err := e.valueAt(nextDate)
		if err != nil {
			return 0, err
		}
		cashFlow := e.ledger.CashFlow(eventDate, nextDate)
		delta := cashFlow.Deals.Sub(cashFlow.Dividends)
		returnToday, err := e.factor(valueEvening.Sub(delta), valueMorning, eventDate, "morning")
		if err != nil {
			return 0, err
		}
		factors = append(factors, returnToday)
		valuePrev = valueEvening
	}
	return floats.Prod(factors) - 1, nil
}

// *** PRIVATE ***

// valueAt values the position as of the start of date at the previous close.
func (e *Engine) valueAt(date xtime.Date) (decimal.Decimal, error) {
	return e.valuator.ValueOf(e.ledger.PositionAt(e.tickers, date.Start()), date)
}

// factor returns numerator/denominator, or 1 if the denominator is not positive.
func (e *Engine) factor(numerator decimal.Decimal, denominator decimal.Decimal, date xtime.Date, leg string) (float64, error) {
	if !denominator.IsPositive() {
		if e.strict {
			return 0, fmt.Errorf("%w: %s value %s on %s", ErrDegenerateValuation, leg, denominator, date)
		}
		e.logger.Debug(
			"degenerate valuation, using factor of 1",
			"date", date.String(),
			"leg", leg,
			"value", denominator.String(),
		)
		return 1, nil
	}
	return numerator.InexactFloat64() / denominator.InexactFloat64(), nil
}
