// unnest flattens JSON documents into relational rows. Each row carries the
// key it was found under, its own scalar fields, a content hash id and the id
// of the row containing it.
//
// Documents are read from the named files, or stdin when none are given. By
// default each input holds one document; with --jsonl every non-blank line is
// a document. Rows are written to stdout as JSON lines or CBOR.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/jacentio/unnest/destructure"
	"github.com/jacentio/unnest/internal/settings"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	uniqueID   string
	nested     bool
	exclude    []string
	maxDepth   int
	algorithm  string
	encoding   string
	jsonl      bool
	jsonc      bool
	format     string
	logLevel   string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("unnest", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "path to a YAML settings file")
	flagSet.StringVar(&opts.uniqueID, "unique-id", "", "seed mixed into every row hash")
	flagSet.BoolVar(&opts.nested, "nested", false, "seed each row's hash with its parent's id")
	flagSet.StringSliceVar(&opts.exclude, "exclude", nil, "keys to leave out of every table (repeatable)")
	flagSet.IntVar(&opts.maxDepth, "max-depth", destructure.DefaultMaxDepth, "maximum object nesting")
	flagSet.StringVar(&opts.algorithm, "algorithm", "md5", "digest: md5, sha1, sha256, fnv128a, blake3")
	flagSet.StringVar(&opts.encoding, "encoding", "utf-8", "byte encoding of hashed text")
	flagSet.BoolVar(&opts.jsonl, "jsonl", false, "read one document per line")
	flagSet.BoolVar(&opts.jsonc, "jsonc", false, "accept comments and trailing commas in input")
	flagSet.StringVar(&opts.format, "format", "jsonl", "output format: jsonl or cbor")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: unnest [flags] [file...]\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	s, err := settings.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(flagSet, &opts, s)
	if err := s.Validate(); err != nil {
		return err
	}

	level, err := s.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	engine, err := s.Engine(logger)
	if err != nil {
		return err
	}

	buffered := bufio.NewWriter(stdout)
	out, err := newRowWriter(opts.format, buffered)
	if err != nil {
		return err
	}

	c := &converter{engine: engine, out: out, jsonl: opts.jsonl, jsonc: opts.jsonc, logger: logger}
	if paths := flagSet.Args(); len(paths) > 0 {
		for _, path := range paths {
			if err := c.convertFile(path); err != nil {
				return err
			}
		}
	} else if err := c.convert("stdin", stdin); err != nil {
		return err
	}

	return buffered.Flush()
}

// applyFlags overrides settings with the flags given on the command line.
func applyFlags(flagSet *pflag.FlagSet, opts *options, s *settings.Settings) {
	if flagSet.Changed("unique-id") {
		s.UniqueID = opts.uniqueID
	}
	if opts.nested {
		s.UniqueID = destructure.Nested
	}
	if flagSet.Changed("exclude") {
		s.Exclude = opts.exclude
	}
	if flagSet.Changed("max-depth") {
		s.MaxDepth = opts.maxDepth
	}
	if flagSet.Changed("algorithm") {
		s.Algorithm = opts.algorithm
	}
	if flagSet.Changed("encoding") {
		s.Encoding = opts.encoding
	}
	if flagSet.Changed("log-level") {
		s.LogLevel = opts.logLevel
	}
}

type converter struct {
	engine *destructure.Engine
	out    rowWriter
	jsonl  bool
	jsonc  bool
	logger *slog.Logger
}

func (c *converter) convertFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.convert(path, f)
}

func (c *converter) convert(name string, r io.Reader) error {
	if !c.jsonl {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := c.document(data); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		if err := c.document(data); err != nil {
			return fmt.Errorf("%s:%d: %w", name, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (c *converter) document(data []byte) error {
	if c.jsonc {
		data = jsonc.ToJSON(data)
	}
	rows, err := c.engine.DestructureJSON(data)
	if err != nil {
		return err
	}
	c.logger.Debug("converted document", "rows", len(rows), "rowID", rows[len(rows)-1].RowID)
	return c.out.WriteRows(rows)
}
