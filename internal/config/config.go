// Package config reads the configuration of the gondola command.
//
// Settings come from an optional YAML file and are then overridden by
// GONDOLA_* environment variables:
//
//	logging:
//	  level: debug
//	  format: text
//	quotes:
//	  source: csv
//	  csv_dir: ./data
//	  date_layout: yyyy-MM-dd
//	engine:
//	  max_depth: 256
//	  cache_size: 512
//	server:
//	  addr: ":8080"
//	scan:
//	  workers: 8
//	  budget: 2s
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/sandrolain/gondola/internal/logging"
)

// Environment variables
const (
	EnvConfigFile = "GONDOLA_CONFIG"

	EnvLogLevel      = "GONDOLA_LOG_LEVEL"
	EnvLogFormat     = "GONDOLA_LOG_FORMAT"
	EnvLogIncludeSrc = "GONDOLA_LOG_INCLUDE_SRC"
	EnvLogToFile     = "GONDOLA_LOG_TO_FILE"
	EnvLogFilename   = "GONDOLA_LOG_FILENAME"

	EnvQuoteSource     = "GONDOLA_QUOTE_SOURCE"
	EnvQuoteCSVDir     = "GONDOLA_QUOTE_CSV_DIR"
	EnvQuoteDateLayout = "GONDOLA_QUOTE_DATE_LAYOUT"
	EnvMongoURI        = "GONDOLA_MONGO_URI"
	EnvMongoDatabase   = "GONDOLA_MONGO_DATABASE"
	EnvMongoCollection = "GONDOLA_MONGO_COLLECTION"
	EnvMongoTimeout    = "GONDOLA_MONGO_TIMEOUT"

	EnvMaxDepth      = "GONDOLA_MAX_DEPTH"
	EnvMaxIterations = "GONDOLA_MAX_ITERATIONS"
	EnvCacheSize     = "GONDOLA_CACHE_SIZE"

	EnvServerAddr  = "GONDOLA_SERVER_ADDR"
	EnvServerDebug = "GONDOLA_SERVER_DEBUG"

	EnvScanWorkers = "GONDOLA_SCAN_WORKERS"
	EnvScanBudget  = "GONDOLA_SCAN_BUDGET"
)

// Quote source kinds.
const (
	SourceCSV   = "csv"
	SourceMongo = "mongo"
)

// Config is the full configuration.
type Config struct {
	Logging logging.Config `yaml:"logging"`
	Quotes  QuoteConfig    `yaml:"quotes"`
	Engine  EngineConfig   `yaml:"engine"`
	Server  ServerConfig   `yaml:"server"`
	Scan    ScanConfig     `yaml:"scan"`
}

// QuoteConfig selects where quotes are loaded from.
type QuoteConfig struct {
	Source     string      `yaml:"source"`
	CSVDir     string      `yaml:"csv_dir"`
	DateLayout string      `yaml:"date_layout"`
	Mongo      MongoConfig `yaml:"mongo"`
}

// MongoConfig holds the MongoDB connection settings.
type MongoConfig struct {
	URI         string `yaml:"uri"`
	Database    string `yaml:"database"`
	Collection  string `yaml:"collection"`
	Timeout     int    `yaml:"timeout"` // seconds
	MaxPoolSize uint64 `yaml:"max_pool_size"`
}

// EngineConfig bounds compilation and evaluation.
type EngineConfig struct {
	MaxDepth      int  `yaml:"max_depth"`
	MaxIterations int  `yaml:"max_iterations"`
	CacheSize     int  `yaml:"cache_size"`
	NoSimplify    bool `yaml:"no_simplify"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Debug bool   `yaml:"debug"`
}

// ScanConfig holds scanner defaults.
type ScanConfig struct {
	Workers     int           `yaml:"workers"`
	Budget      time.Duration `yaml:"budget"`
	MaxFailures int           `yaml:"max_failures"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Logging: logging.Config{Level: "info", Format: "json"},
		Quotes: QuoteConfig{
			Source:     SourceCSV,
			CSVDir:     ".",
			DateLayout: "yyyy-MM-dd",
			Mongo:      MongoConfig{Collection: "quotes", Timeout: 10},
		},
		Engine: EngineConfig{
			MaxDepth:      256,
			MaxIterations: 1_000_000,
			CacheSize:     512,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults and applies the environment. An
// empty path falls back to GONDOLA_CONFIG; with neither, only defaults
// and environment apply.
func Load(path string) (Config, error) {
	conf := Default()
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "reading config file")
		}
		if err := Parse(data, &conf); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&conf, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return conf, conf.Validate()
}

// Parse decodes YAML into conf, keeping fields the document omits.
// Unknown keys are rejected.
func Parse(data []byte, conf *Config) error {
	if err := yaml.UnmarshalStrict(data, conf); err != nil {
		return errors.Wrap(err, "parsing config file")
	}
	return nil
}

// ApplyEnv overrides conf with the variables lookup finds.
func ApplyEnv(conf *Config, lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str(EnvLogLevel, &conf.Logging.Level)
	e.str(EnvLogFormat, &conf.Logging.Format)
	e.bool(EnvLogIncludeSrc, &conf.Logging.IncludeSrc)
	e.bool(EnvLogToFile, &conf.Logging.LogToFile)
	e.str(EnvLogFilename, &conf.Logging.Filename)

	e.str(EnvQuoteSource, &conf.Quotes.Source)
	e.str(EnvQuoteCSVDir, &conf.Quotes.CSVDir)
	e.str(EnvQuoteDateLayout, &conf.Quotes.DateLayout)
	e.str(EnvMongoURI, &conf.Quotes.Mongo.URI)
	e.str(EnvMongoDatabase, &conf.Quotes.Mongo.Database)
	e.str(EnvMongoCollection, &conf.Quotes.Mongo.Collection)
	e.int(EnvMongoTimeout, &conf.Quotes.Mongo.Timeout)

	e.int(EnvMaxDepth, &conf.Engine.MaxDepth)
	e.int(EnvMaxIterations, &conf.Engine.MaxIterations)
	e.int(EnvCacheSize, &conf.Engine.CacheSize)

	e.str(EnvServerAddr, &conf.Server.Addr)
	e.bool(EnvServerDebug, &conf.Server.Debug)

	e.int(EnvScanWorkers, &conf.Scan.Workers)
	e.duration(EnvScanBudget, &conf.Scan.Budget)

	return e.err
}

// Validate reports settings no component can work with.
func (c Config) Validate() error {
	switch c.Quotes.Source {
	case SourceCSV:
	case SourceMongo:
		if c.Quotes.Mongo.URI == "" || c.Quotes.Mongo.Database == "" {
			return errors.New("mongo quote source needs uri and database")
		}
	default:
		return errors.Errorf("unknown quote source %q", c.Quotes.Source)
	}
	if c.Engine.MaxDepth < 0 || c.Engine.MaxIterations < 0 || c.Engine.CacheSize < 0 {
		return errors.New("engine limits must not be negative")
	}
	if c.Scan.Workers < 0 || c.Scan.Budget < 0 || c.Scan.MaxFailures < 0 {
		return errors.New("scan settings must not be negative")
	}
	return nil
}

// envReader keeps the first conversion error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) int(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) fail(name string, err error) {
	if e.err == nil {
		e.err = errors.Wrapf(err, "environment variable %s", name)
	}
}
