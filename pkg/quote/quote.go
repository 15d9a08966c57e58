// Package quote provides an in-memory quote source for the evaluator.
//
// A Memory source holds, for every symbol, the daily bars in trading day
// order. Day 0 is the oldest bar. Loaders (csvquote, mongoquote) fill a
// Memory source once; evaluation only reads it.
//
// # Example
//
//	src := quote.NewMemory()
//	_ = src.Set("ACME", []quote.Bar{
//	    {Date: d1, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1200},
//	    {Date: d2, Open: 10.5, High: 12, Low: 10, Close: 11.8, Volume: 1800},
//	})
//	v, err := src.Quote("ACME", 1, types.FieldClose)
package quote

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sandrolain/gondola/pkg/types"
)

// Errors returned by Memory. Callers test them with errors.Cause.
var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrDayOutOfRange = errors.New("day out of range")
	ErrUnsorted      = errors.New("bars are not in date order")
)

// Bar is one trading day of a symbol.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Field returns the value of f.
func (b Bar) Field(f types.QuoteField) float64 {
	switch f {
	case types.FieldOpen:
		return b.Open
	case types.FieldHigh:
		return b.High
	case types.FieldLow:
		return b.Low
	case types.FieldClose:
		return b.Close
	default:
		return float64(b.Volume)
	}
}

// Memory is a quote source backed by slices of bars.
//
// Safe for concurrent use by multiple goroutines.
type Memory struct {
	mu     sync.RWMutex
	series map[types.Symbol][]Bar
}

// NewMemory returns an empty source.
func NewMemory() *Memory {
	return &Memory{series: make(map[types.Symbol][]Bar)}
}

// Set replaces the bars of symbol. Bars must be in ascending date order;
// bars with a zero date are accepted anywhere.
func (m *Memory) Set(symbol types.Symbol, bars []Bar) error {
	if err := checkOrder(bars); err != nil {
		return errors.Wrapf(err, "symbol %s", symbol)
	}
	m.mu.Lock()
	m.series[symbol] = append([]Bar(nil), bars...)
	m.mu.Unlock()
	return nil
}

// Append adds bars after the existing ones of symbol.
func (m *Memory) Append(symbol types.Symbol, bars ...Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := append(append([]Bar(nil), m.series[symbol]...), bars...)
	if err := checkOrder(merged); err != nil {
		return errors.Wrapf(err, "symbol %s", symbol)
	}
	m.series[symbol] = merged
	return nil
}

func checkOrder(bars []Bar) error {
	var last time.Time
	for i, b := range bars {
		if b.Date.IsZero() {
			continue
		}
		if !last.IsZero() && !b.Date.After(last) {
			return errors.Wrapf(ErrUnsorted, "bar %d dated %s", i, b.Date.Format(time.DateOnly))
		}
		last = b.Date
	}
	return nil
}

func (m *Memory) bar(symbol types.Symbol, day int) (Bar, error) {
	m.mu.RLock()
	bars, ok := m.series[symbol]
	m.mu.RUnlock()
	if !ok {
		return Bar{}, errors.Wrapf(ErrUnknownSymbol, "symbol %s", symbol)
	}
	if day < 0 || day >= len(bars) {
		return Bar{}, errors.Wrapf(ErrDayOutOfRange, "symbol %s day %d of %d", symbol, day, len(bars))
	}
	return bars[day], nil
}

// Quote implements types.QuoteSource.
func (m *Memory) Quote(symbol types.Symbol, day int, field types.QuoteField) (float64, error) {
	b, err := m.bar(symbol, day)
	if err != nil {
		return 0, err
	}
	return b.Field(field), nil
}

// Days implements types.QuoteSource. Unknown symbols have no days.
func (m *Memory) Days(symbol types.Symbol) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.series[symbol])
}

// Date implements types.DatedSource.
func (m *Memory) Date(symbol types.Symbol, day int) (time.Time, error) {
	b, err := m.bar(symbol, day)
	if err != nil {
		return time.Time{}, err
	}
	if b.Date.IsZero() {
		return time.Time{}, errors.Errorf("symbol %s day %d has no date", symbol, day)
	}
	return b.Date, nil
}

// DayOf returns the first day of symbol dated on or after t, or false
// when every bar is older.
func (m *Memory) DayOf(symbol types.Symbol, t time.Time) (int, bool) {
	m.mu.RLock()
	bars := m.series[symbol]
	m.mu.RUnlock()
	i := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Date.Before(t)
	})
	return i, i < len(bars)
}

// Symbols returns the symbols held, sorted.
func (m *Memory) Symbols() []types.Symbol {
	m.mu.RLock()
	out := make([]types.Symbol, 0, len(m.series))
	for s := range m.series {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bars returns a copy of the bars of symbol.
func (m *Memory) Bars(symbol types.Symbol) []Bar {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Bar(nil), m.series[symbol]...)
}
