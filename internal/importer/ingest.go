package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"github.com/argent-dev/argent/internal/logger"
	"github.com/argent-dev/argent/internal/model"
	"github.com/argent-dev/argent/internal/source"
	"github.com/argent-dev/argent/internal/textnorm"
)

// maxLineBytes bounds a single decoded statement line.
const maxLineBytes = 1 << 20

// ErrUndecodable reports bytes that are invalid in the declared encoding.
var ErrUndecodable = errors.New("invalid byte sequence for encoding")

// UnavailableError means a source could not be opened, read or decoded.
// Unlike a line that fails to parse, it stops that source's contribution.
type UnavailableError struct {
	Source string
	Line   int // 1-based; 0 when the source could not be opened
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("source %s unavailable at line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// SourceResult is the outcome of reading one source.
type SourceResult struct {
	Source  string
	Records []model.CardTransaction
	Lines   int
	Skipped int   // lines that were not transactions
	Err     error // *UnavailableError, or nil
}

// Options configures an Ingestor.
type Options struct {
	Parser   LineParser        // defaults to CardParser
	Encoding encoding.Encoding // required
	Workers  int               // concurrent sources; <1 means 1
}

// Ingestor reads statement sources into card transactions.
type Ingestor struct {
	opener   source.Opener
	parser   LineParser
	encoding encoding.Encoding
	workers  int
}

// NewIngestor creates an Ingestor reading through opener.
func NewIngestor(opener source.Opener, opts Options) *Ingestor {
	parser := opts.Parser
	if parser == nil {
		parser = &CardParser{}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Ingestor{
		opener:   opener,
		parser:   parser,
		encoding: opts.Encoding,
		workers:  workers,
	}
}

// ReadSource reads one source line by line, normalizing and parsing each line
// and keeping only the transactions. Lines that do not parse are counted in
// Skipped.
func (in *Ingestor) ReadSource(ctx context.Context, name string) SourceResult {
	log := logger.FromContext(ctx).With().Str("source", name).Logger()
	res := SourceResult{Source: name}

	rc, err := in.opener.Open(ctx, name)
	if err != nil {
		res.Err = &UnavailableError{Source: name, Err: err}
		return res
	}
	defer rc.Close()

	sc := bufio.NewScanner(source.NewDecodingReader(rc, in.encoding))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		res.Lines++
		raw := sc.Text()
		if strings.ContainsRune(raw, utf8.RuneError) {
			return SourceResult{
				Source: name,
				Lines:  res.Lines,
				Err:    &UnavailableError{Source: name, Line: res.Lines, Err: ErrUndecodable},
			}
		}

		txn, ok := in.parser.ParseLine(textnorm.Normalize(raw))
		if !ok {
			res.Skipped++
			log.Debug().Int("line", res.Lines).Msg("skipping non-transaction line")
			continue
		}
		res.Records = append(res.Records, txn)
	}
	if err := sc.Err(); err != nil {
		return SourceResult{
			Source: name,
			Lines:  res.Lines,
			Err:    &UnavailableError{Source: name, Line: res.Lines + 1, Err: err},
		}
	}

	log.Info().
		Int("lines", res.Lines).
		Int("parsed", len(res.Records)).
		Int("skipped", res.Skipped).
		Msg("read statement")
	return res
}

// ReadAll reads every source, up to the configured number at a time, and
// returns the results in the order of names.
func (in *Ingestor) ReadAll(ctx context.Context, names []string) []SourceResult {
	results := make([]SourceResult, len(names))

	var g errgroup.Group
	g.SetLimit(in.workers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = in.ReadSource(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Collect concatenates the records of results in order. If keepGoing is false
// the first failed source's error is returned; otherwise failed sources are
// logged and left out.
func Collect(ctx context.Context, results []SourceResult, keepGoing bool) ([]model.CardTransaction, error) {
	log := logger.FromContext(ctx)

	var all []model.CardTransaction
	for _, r := range results {
		if r.Err != nil {
			if !keepGoing {
				return nil, r.Err
			}
			log.Warn().Err(r.Err).Str("source", r.Source).Msg("skipping unavailable source")
			continue
		}
		all = append(all, r.Records...)
	}
	return all, nil
}

// Ingest reads names and collects their records.
func (in *Ingestor) Ingest(ctx context.Context, names []string, keepGoing bool) ([]model.CardTransaction, error) {
	return Collect(ctx, in.ReadAll(ctx, names), keepGoing)
}
