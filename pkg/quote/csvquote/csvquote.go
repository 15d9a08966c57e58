// Package csvquote loads daily quotes from CSV files.
//
// Files carry a header row naming the columns date, open, high, low,
// close and volume in any order (case insensitive, extra columns are
// ignored). Dates are parsed with a Joda-style layout such as
// "yyyy-MM-dd" or "dd/MM/yyyy". Rows may come in any date order; bars
// are sorted oldest first.
//
// # Example
//
//	src := quote.NewMemory()
//	symbols, err := csvquote.LoadDir(src, "./data", csvquote.Options{})
package csvquote

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sandrolain/gondola/pkg/quote"
	"github.com/sandrolain/gondola/pkg/types"
	"github.com/vjeantet/jodaTime"
)

// DefaultDateLayout is the Joda layout used when Options.DateLayout is empty.
const DefaultDateLayout = "yyyy-MM-dd"

// Options configures CSV parsing.
type Options struct {
	// DateLayout is a Joda-style date layout.
	DateLayout string
	// Comma is the field separator, ',' when zero.
	Comma rune
}

func (o Options) layout() string {
	if o.DateLayout == "" {
		return DefaultDateLayout
	}
	return o.DateLayout
}

var columns = [...]string{"date", "open", "high", "low", "close", "volume"}

// Read parses bars from r.
func Read(r io.Reader, opts Options) ([]quote.Bar, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var bars []quote.Bar
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading row")
		}
		line, _ := cr.FieldPos(0)
		bar, err := parseRow(rec, index, opts.layout())
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars, nil
}

func columnIndex(header []string) ([len(columns)]int, error) {
	var index [len(columns)]int
	for i := range index {
		index[i] = -1
	}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for c, name := range columns {
			if h == name {
				index[c] = i
			}
		}
	}
	for c, i := range index {
		if i < 0 {
			return index, errors.Errorf("missing column %q", columns[c])
		}
	}
	return index, nil
}

func parseRow(rec []string, index [len(columns)]int, layout string) (quote.Bar, error) {
	field := func(c int) string {
		if index[c] >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[index[c]])
	}

	date, err := jodaTime.Parse(layout, field(0))
	if err != nil {
		return quote.Bar{}, errors.Wrapf(err, "date %q", field(0))
	}
	var prices [4]float64
	for i := range prices {
		v, err := strconv.ParseFloat(field(i+1), 64)
		if err != nil {
			return quote.Bar{}, errors.Wrapf(err, "column %s", columns[i+1])
		}
		prices[i] = v
	}
	vol, err := strconv.ParseFloat(field(5), 64)
	if err != nil {
		return quote.Bar{}, errors.Wrap(err, "column volume")
	}

	return quote.Bar{
		Date:   date,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: int64(math.Round(vol)),
	}, nil
}

// LoadFile reads path into src under symbol.
func LoadFile(src *quote.Memory, symbol types.Symbol, path string, opts Options) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	bars, err := Read(f, opts)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	return src.Set(symbol, bars)
}

// LoadDir reads every *.csv file of dir into src. The symbol of a file is
// its base name without extension, upper cased.
func LoadDir(src *quote.Memory, dir string, opts Options) ([]types.Symbol, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	sort.Strings(paths)

	symbols := make([]types.Symbol, 0, len(paths))
	for _, path := range paths {
		symbol := SymbolOf(path)
		if err := LoadFile(src, symbol, path, opts); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

// SymbolOf derives a symbol from a file name.
func SymbolOf(path string) types.Symbol {
	base := filepath.Base(path)
	return types.Symbol(strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base))))
}
