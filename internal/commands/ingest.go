package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/argent-dev/argent/internal/cluster"
	"github.com/argent-dev/argent/internal/config"
	"github.com/argent-dev/argent/internal/gitops"
	"github.com/argent-dev/argent/internal/importer"
	"github.com/argent-dev/argent/internal/logger"
	"github.com/argent-dev/argent/internal/model"
	"github.com/argent-dev/argent/internal/report"
	"github.com/argent-dev/argent/internal/runlog"
	"github.com/argent-dev/argent/internal/source"
)

type ingestOptions struct {
	repoDir   string
	keepGoing bool
	encoding  string
	outDir    string
	logLevel  string
	sorted    bool
}

func newIngestCommand() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest [sources...]",
		Short: "Read card statements, group merchants and export the result",
		Long: `Read card statements, group merchants and export the result.

Sources are local paths or gs://bucket/object URIs. With no sources, every
statement file in the configured import directory is read and moved to the
processed directory afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			absDir, err := filepath.Abs(opts.repoDir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			opts.repoDir = absDir

			cfg, err := config.LoadOrDefault(absDir)
			if err != nil {
				return err
			}
			if err := config.LoadEnv(absDir); err != nil {
				return err
			}
			cfg.ApplyEnv()
			if cmd.Flags().Changed("keep-going") {
				cfg.Ingest.KeepGoing = opts.keepGoing
			}
			if opts.encoding != "" {
				cfg.Statement.Encoding = opts.encoding
			}
			if opts.outDir != "" {
				cfg.Export.Dir = opts.outDir
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}

			log, err := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), log)

			return runIngest(ctx, cmd.OutOrStdout(), absDir, cfg, args, opts.sorted)
		},
	}

	cmd.Flags().StringVar(&opts.repoDir, "repo", ".", "project directory")
	cmd.Flags().BoolVar(&opts.keepGoing, "keep-going", false, "skip unreadable sources instead of failing")
	cmd.Flags().StringVar(&opts.encoding, "encoding", "", "statement text encoding (default from config)")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "export directory (default from config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (default from config)")
	cmd.Flags().BoolVar(&opts.sorted, "sort", false, "order the transactions export by date, then amount")

	return cmd
}

// ingestRun carries what one ingest run produced.
type ingestRun struct {
	id       string
	started  time.Time
	results  []importer.SourceResult
	records  []model.CardTransaction
	txnsPath string
	sumsPath string
	logPath  string
}

func runIngest(ctx context.Context, out io.Writer, repoRoot string, cfg *config.Config, sources []string, sorted bool) error {
	log := logger.FromContext(ctx)

	scanned := false
	if len(sources) == 0 {
		files, err := importer.Scan(resolve(repoRoot, cfg.Statement.ImportDir), cfg.Statement.Extensions)
		if err != nil {
			return err
		}
		for _, f := range files {
			sources = append(sources, f.Path)
		}
		scanned = true
	}
	if len(sources) == 0 {
		fmt.Fprintln(out, "No statement files to ingest")
		return nil
	}

	enc, err := source.LookupEncoding(cfg.Statement.Encoding)
	if err != nil {
		return err
	}
	parser := importer.DefaultRegistry().Get(cfg.Statement.Format)
	if parser == nil {
		return fmt.Errorf("unknown statement format %q (available: %s)",
			cfg.Statement.Format, strings.Join(importer.DefaultRegistry().Formats(), ", "))
	}

	opener := source.Mux{Local: source.LocalOpener{}}
	if slices.ContainsFunc(sources, source.IsGCS) {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("creating storage client: %w", err)
		}
		defer client.Close()
		opener.GCS = source.NewGCSOpener(client)
	}

	run := &ingestRun{
		id:      uuid.NewString(),
		started: time.Now().UTC(),
		logPath: resolve(repoRoot, cfg.Log.RunLog),
	}
	log = log.With().Str("run_id", run.id).Logger()
	ctx = logger.WithContext(ctx, log)

	ing := importer.NewIngestor(opener, importer.Options{
		Parser:   parser,
		Encoding: enc,
		Workers:  cfg.Ingest.Workers,
	})
	run.results = ing.ReadAll(ctx, sources)

	// The run log records every source, including the ones that fail the run.
	if err := runlog.Append(run.logPath, logEntries(run)); err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}

	records, err := importer.Collect(ctx, run.results, cfg.Ingest.KeepGoing)
	if err != nil {
		log.Error().Err(err).Msg("ingest aborted")
		return err
	}
	run.records = cluster.Cluster(records)
	if sorted {
		model.SortTransactions(run.records)
	}

	if err := writeExports(resolve(repoRoot, cfg.Export.Dir), run); err != nil {
		return err
	}

	if scanned {
		processedDir := resolve(repoRoot, cfg.Statement.ProcessedDir)
		for _, r := range run.results {
			if r.Err != nil {
				continue
			}
			if err := importer.MarkProcessed(filepath.Dir(r.Source), processedDir, filepath.Base(r.Source)); err != nil {
				return err
			}
		}
	}

	if cfg.Git.AutoCommit && gitops.IsRepo(repoRoot) {
		author := gitops.Author{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail}
		paths := committable(repoRoot, run.txnsPath, run.sumsPath, run.logPath)
		msg := fmt.Sprintf("ingest: %d records from %d sources (run %s)", len(run.records), len(sources), run.id)
		hash, err := gitops.Commit(repoRoot, msg, author, paths...)
		if err != nil {
			return fmt.Errorf("committing run: %w", err)
		}
		log.Info().Str("commit", hash).Msg("committed run")
	}

	groups := len(cluster.Buckets(run.records))
	fmt.Fprintf(out, "Ingested %d records from %d sources into %d groups (run %s)\n",
		len(run.records), len(sources), groups, run.id)
	fmt.Fprintf(out, "  %s\n  %s\n", run.txnsPath, run.sumsPath)
	return nil
}

func writeExports(dir string, run *ingestRun) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}

	summary, err := report.Summarize(run.records)
	if err != nil {
		return err
	}

	run.txnsPath = filepath.Join(dir, run.id+"-transactions.csv")
	if err := writeFile(run.txnsPath, func(w io.Writer) error {
		return report.WriteRecords(w, run.records)
	}); err != nil {
		return err
	}

	run.sumsPath = filepath.Join(dir, run.id+"-groups.csv")
	return writeFile(run.sumsPath, func(w io.Writer) error {
		return report.WriteSummary(w, summary)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func logEntries(run *ingestRun) []runlog.Entry {
	entries := make([]runlog.Entry, 0, len(run.results))
	for _, r := range run.results {
		e := runlog.Entry{
			Timestamp: run.started,
			RunID:     run.id,
			Source:    r.Source,
			Lines:     r.Lines,
			Parsed:    len(r.Records),
			Skipped:   r.Skipped,
			Status:    runlog.StatusOK,
		}
		if r.Err != nil {
			e.Status = runlog.StatusUnavailable
			e.Error = r.Err.Error()
		}
		entries = append(entries, e)
	}
	return entries
}

// committable returns the paths relative to repoRoot, dropping any outside it.
func committable(repoRoot string, paths ...string) []string {
	var rel []string
	for _, p := range paths {
		r, err := filepath.Rel(repoRoot, p)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			continue
		}
		rel = append(rel, r)
	}
	return rel
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
