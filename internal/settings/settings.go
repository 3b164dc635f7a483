// Package settings loads the configuration shared by the unnest binaries:
// a YAML file layered over defaults, then UNNEST_* environment variables.
package settings

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/unnest/destructure"
	"github.com/jacentio/unnest/hasher"
	"github.com/jacentio/unnest/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UNNEST_"

// Settings is the complete configuration.
type Settings struct {
	// UniqueID seeds every row hash. destructure.Nested selects cascaded
	// hashing where each row is seeded with its parent's id.
	UniqueID string `yaml:"unique_id"`

	// Exclude lists keys kept out of every table.
	Exclude []string `yaml:"exclude"`

	// MaxDepth bounds object nesting.
	// Default: 5
	MaxDepth int `yaml:"max_depth"`

	// Algorithm names the digest, see hasher.Algorithms.
	// Default: md5
	Algorithm string `yaml:"algorithm"`

	// Encoding names the byte encoding of hashed text.
	// Default: utf-8
	Encoding string `yaml:"encoding"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `yaml:"log_level"`

	Store StoreSettings `yaml:"store"`
}

// StoreSettings configures the DynamoDB row store.
type StoreSettings struct {
	RowTable          string `yaml:"row_table"`
	RelationshipTable string `yaml:"relationship_table"`
	ChildIndex        string `yaml:"child_index"`
	NumShards         int    `yaml:"num_shards"`

	// Routes sends rows with a given name to their own table.
	Routes map[string]string `yaml:"routes"`
}

// Default returns the default configuration.
func Default() *Settings {
	cfg := store.DefaultConfig()
	return &Settings{
		MaxDepth:  destructure.DefaultMaxDepth,
		Algorithm: string(hasher.MD5),
		Encoding:  "utf-8",
		LogLevel:  "info",
		Store: StoreSettings{
			RowTable:          cfg.RowTable,
			RelationshipTable: cfg.RelationshipTable,
			ChildIndex:        cfg.ChildIndex,
			NumShards:         cfg.NumShards,
		},
	}
}

// Load reads path (skipped when empty) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (*Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		if err := s.merge(data); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse reads YAML settings over the defaults without consulting the
// environment.
func Parse(data []byte) (*Settings, error) {
	s := Default()
	if err := s.merge(data); err != nil {
		return nil, err
	}
	return s, s.Validate()
}

func (s *Settings) merge(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, s)
}

// ApplyEnv overrides fields from UNNEST_* variables found by lookup.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("UNIQUE_ID", &s.UniqueID)
	str("ALGORITHM", &s.Algorithm)
	str("ENCODING", &s.Encoding)
	str("LOG_LEVEL", &s.LogLevel)
	str("ROW_TABLE", &s.Store.RowTable)
	str("RELATIONSHIP_TABLE", &s.Store.RelationshipTable)
	str("CHILD_INDEX", &s.Store.ChildIndex)
	if v, ok := lookup(EnvPrefix + "EXCLUDE"); ok {
		s.Exclude = SplitList(v)
	}
	if err := num("MAX_DEPTH", &s.MaxDepth); err != nil {
		return err
	}
	return num("NUM_SHARDS", &s.Store.NumShards)
}

// Validate checks that the named algorithm, encoding and level exist.
func (s *Settings) Validate() error {
	if _, err := s.algorithm().New(); err != nil {
		return err
	}
	if _, err := hasher.LookupEncoding(s.Encoding); err != nil {
		return err
	}
	if _, err := s.Level(); err != nil {
		return err
	}
	return nil
}

func (s *Settings) algorithm() hasher.Algorithm {
	if s.Algorithm == "" {
		return hasher.MD5
	}
	return hasher.Algorithm(s.Algorithm)
}

// Level parses LogLevel.
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s.LogLevel, err)
	}
	return level, nil
}

// Logger returns a JSON logger writing to w at the configured level.
func (s *Settings) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := s.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// Hasher builds the configured hasher.
func (s *Settings) Hasher() (*hasher.Hasher, error) {
	if _, err := s.algorithm().New(); err != nil {
		return nil, err
	}
	enc, err := hasher.LookupEncoding(s.Encoding)
	if err != nil {
		return nil, err
	}
	return hasher.New(
		hasher.WithAlgorithm(s.algorithm()),
		hasher.WithEncoding(enc),
	), nil
}

// Engine builds the configured destructuring engine.
func (s *Settings) Engine(logger *slog.Logger) (*destructure.Engine, error) {
	h, err := s.Hasher()
	if err != nil {
		return nil, err
	}
	opts := []destructure.Option{
		destructure.WithUniqueID(s.UniqueID),
		destructure.WithExcludedKeys(s.Exclude...),
		destructure.WithMaxDepth(s.MaxDepth),
	}
	if logger != nil {
		opts = append(opts, destructure.WithLogger(logger))
	}
	return destructure.New(h, opts...), nil
}

// StoreConfig returns the row store configuration; unset fields take the
// store defaults.
func (s *Settings) StoreConfig() store.Config {
	cfg := store.DefaultConfig()
	if s.Store.RowTable != "" {
		cfg.RowTable = s.Store.RowTable
	}
	if s.Store.RelationshipTable != "" {
		cfg.RelationshipTable = s.Store.RelationshipTable
	}
	if s.Store.ChildIndex != "" {
		cfg.ChildIndex = s.Store.ChildIndex
	}
	if s.Store.NumShards > 0 {
		cfg.NumShards = s.Store.NumShards
	}
	return cfg
}

// Registry returns the row routes, or nil when none are configured.
func (s *Settings) Registry() *store.Registry {
	if len(s.Store.Routes) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.Store.Routes))
	for name := range s.Store.Routes {
		names = append(names, name)
	}
	sort.Strings(names)

	r := store.NewRegistry()
	for _, name := range names {
		r.Register(store.Route{Name: name, TableName: s.Store.Routes[name]})
	}
	return r
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
