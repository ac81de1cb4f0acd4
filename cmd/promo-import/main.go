// Command promo-import loads promotion definitions from gzip-compressed
// NDJSON exports into the promotions table.
//
// Files are read concurrently. When a code appears more than once, the
// definition from the file listed last wins. Definitions that fail
// validation are logged and skipped.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cafe-promotions/internal/domain/promotion"
	"github.com/xenking/cafe-promotions/internal/storage/postgres"
)

const (
	bloomCapacity = 100_000
	bloomFPR      = 0.001
	maxLineBytes  = 1 << 20
)

// record is a decoded definition with its origin for diagnostics.
type record struct {
	def  promotion.Definition
	file string
	line int
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing promotion exports")
	flag.StringVar(&pattern, "pattern", "promotions*.ndjson.gz", "glob for export files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate files without writing to the database")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL, dryRun); err != nil {
		slog.Error("promotion import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promotion import completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrapf(err, "glob %s", glob)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", glob)
	}
	sort.Strings(files)

	slog.Info("decoding export files", slog.Int("files", len(files)))

	perFile, err := decodeFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "decode files")
	}

	records, replaced := merge(perFile)
	slog.Info("merged definitions",
		slog.Int("unique", len(records)),
		slog.Int("replaced", replaced),
	)

	valid := validate(records, time.Now())
	slog.Info("validated definitions",
		slog.Int("valid", len(valid)),
		slog.Int("rejected", len(records)-len(valid)),
	)

	if dryRun || len(valid) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writePromotions(ctx, postgres.NewPromotionRepository(pool), valid); err != nil {
		return errors.Wrap(err, "write promotions to database")
	}

	return nil
}

// decodeFiles decodes every file concurrently. The result keeps the order of
// files.
func decodeFiles(ctx context.Context, files []string) ([][]record, error) {
	out := make([][]record, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			records, err := decodeFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "decode %s", path)
			}
			slog.Info("file decoded",
				slog.String("file", filepath.Base(path)),
				slog.Int("definitions", len(records)),
			)
			out[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// decodeFile streams one gzip NDJSON file. Blank lines are skipped.
func decodeFile(ctx context.Context, path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var records []record
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for n := 1; scanner.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var def promotion.Definition
		if err := json.Unmarshal(line, &def); err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		records = append(records, record{def: def, file: filepath.Base(path), line: n})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}

	return records, nil
}

// merge flattens the per-file records in order, letting a later occurrence
// of a code replace the earlier one in place. A bloom filter answers most
// first-seen lookups without touching the index.
func merge(perFile [][]record) ([]record, int) {
	var (
		filter   = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		index    = make(map[string]int)
		out      []record
		replaced int
	)

	for _, records := range perFile {
		for _, r := range records {
			code := r.def.Code
			if filter.TestString(code) {
				if i, ok := index[code]; ok {
					slog.Warn("duplicate promotion code",
						slog.String("code", code),
						slog.String("previous", out[i].file),
						slog.String("file", r.file),
						slog.Int("line", r.line),
					)
					out[i] = r
					replaced++
					continue
				}
			}
			filter.AddString(code)
			index[code] = len(out)
			out = append(out, r)
		}
	}

	return out, replaced
}

// validate keeps the definitions that compile.
func validate(records []record, now time.Time) []promotion.Definition {
	valid := make([]promotion.Definition, 0, len(records))
	for _, r := range records {
		if _, err := promotion.Compile(r.def, now); err != nil {
			slog.Warn("skipping invalid promotion",
				slog.String("file", r.file),
				slog.Int("line", r.line),
				slog.String("error", err.Error()),
			)
			continue
		}
		valid = append(valid, r.def)
	}
	return valid
}

// promotionWriter is the subset of the promotion repository the import needs.
type promotionWriter interface {
	Upsert(ctx context.Context, def promotion.Definition) error
}

// writePromotions upserts the definitions in file order, which becomes
// catalog order for newly inserted codes.
func writePromotions(ctx context.Context, repo promotionWriter, defs []promotion.Definition) error {
	slog.Info("writing promotions to database", slog.Int("count", len(defs)))

	for i, def := range defs {
		if err := repo.Upsert(ctx, def); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", def.Code)
		}

		if (i+1)%100 == 0 || i+1 == len(defs) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(defs)))
		}
	}

	return nil
}
