// Package mongoquote loads daily quotes from a MongoDB collection.
//
// Every document of the collection is one bar:
//
//	{symbol: "ACME", date: ISODate("2024-01-02"), open: 10.1, high: 10.8,
//	 low: 9.9, close: 10.5, volume: 120000}
//
// The loader reads the bars into a quote.Memory source; evaluation never
// touches the database.
package mongoquote

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sandrolain/gondola/pkg/quote"
	"github.com/sandrolain/gondola/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is used when Config.Collection is empty.
const DefaultCollection = "quotes"

// Config holds the connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
	// Timeout in seconds of connection and queries.
	Timeout     int
	MaxPoolSize uint64
}

// Doc is the stored form of a bar.
type Doc struct {
	Symbol string    `bson:"symbol"`
	Date   time.Time `bson:"date"`
	Open   float64   `bson:"open"`
	High   float64   `bson:"high"`
	Low    float64   `bson:"low"`
	Close  float64   `bson:"close"`
	Volume int64     `bson:"volume"`
}

// Loader reads quote documents.
type Loader struct {
	client *mongo.Client
	config Config
}

// Connect opens a client and checks the connection.
func Connect(config Config) (*Loader, error) {
	if config.Timeout <= 0 {
		config.Timeout = 10
	}
	if config.Collection == "" {
		config.Collection = DefaultCollection
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.Timeout)*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(config.URI)
	if config.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(config.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Duration(config.Timeout)*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongodb")
	}

	return &Loader{client: client, config: config}, nil
}

// Close disconnects the client.
func (l *Loader) Close(ctx context.Context) error {
	return l.client.Disconnect(ctx)
}

func (l *Loader) collection() *mongo.Collection {
	return l.client.Database(l.config.Database).Collection(l.config.Collection)
}

func (l *Loader) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, time.Duration(l.config.Timeout)*time.Second)
}

// CreateIndexes creates the unique (symbol, date) index loads rely on.
func (l *Loader) CreateIndexes(ctx context.Context) error {
	ctx, cancel := l.context(ctx)
	defer cancel()

	_, err := l.collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "symbol", Value: 1}, {Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "creating quote index")
}

// Symbols lists the distinct symbols of the collection.
func (l *Loader) Symbols(ctx context.Context) ([]types.Symbol, error) {
	ctx, cancel := l.context(ctx)
	defer cancel()

	values, err := l.collection().Distinct(ctx, "symbol", bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "listing symbols")
	}
	out := make([]types.Symbol, 0, len(values))
	for _, v := range values {
		out = append(out, types.Symbol(fmt.Sprint(v)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Load reads the bars of symbols, or of every symbol when none is given,
// into src.
func (l *Loader) Load(ctx context.Context, src *quote.Memory, symbols ...types.Symbol) error {
	ctx, cancel := l.context(ctx)
	defer cancel()

	filter := bson.M{}
	if len(symbols) > 0 {
		names := make([]string, len(symbols))
		for i, s := range symbols {
			names[i] = string(s)
		}
		filter["symbol"] = bson.M{"$in": names}
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "symbol", Value: 1}, {Key: "date", Value: 1}})

	cursor, err := l.collection().Find(ctx, filter, findOpts)
	if err != nil {
		return errors.Wrap(err, "querying quotes")
	}
	defer cursor.Close(ctx)

	var docs []Doc
	if err := cursor.All(ctx, &docs); err != nil {
		return errors.Wrap(err, "decoding quotes")
	}

	for symbol, bars := range Group(docs) {
		if err := src.Set(symbol, bars); err != nil {
			return err
		}
	}
	return nil
}

// Group splits documents by symbol into bars sorted by date.
func Group(docs []Doc) map[types.Symbol][]quote.Bar {
	out := make(map[types.Symbol][]quote.Bar)
	for _, d := range docs {
		s := types.Symbol(d.Symbol)
		out[s] = append(out[s], quote.Bar{
			Date:   d.Date,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: d.Volume,
		})
	}
	for _, bars := range out {
		sort.SliceStable(bars, func(i, j int) bool {
			return bars[i].Date.Before(bars[j].Date)
		})
	}
	return out
}

// ToDoc converts a bar to its stored form.
func ToDoc(symbol types.Symbol, b quote.Bar) Doc {
	return Doc{
		Symbol: string(symbol),
		Date:   b.Date,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// Store upserts the bars of symbol.
func (l *Loader) Store(ctx context.Context, symbol types.Symbol, bars []quote.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	ctx, cancel := l.context(ctx)
	defer cancel()

	models := make([]mongo.WriteModel, len(bars))
	for i, b := range bars {
		doc := ToDoc(symbol, b)
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"symbol": doc.Symbol, "date": doc.Date}).
			SetReplacement(doc).
			SetUpsert(true)
	}
	_, err := l.collection().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return errors.Wrapf(err, "storing quotes of %s", symbol)
}
