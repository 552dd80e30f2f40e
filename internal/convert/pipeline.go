// Package convert drives the conversion of PGN archives into tables.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/deepskill/pgnconv/internal/codec"
	"github.com/deepskill/pgnconv/internal/config"
	"github.com/deepskill/pgnconv/internal/metrics"
	"github.com/deepskill/pgnconv/internal/schema"
	"github.com/deepskill/pgnconv/internal/storage"
	"github.com/deepskill/pgnconv/internal/table"
	"github.com/deepskill/pgnconv/pkg/pgn"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInputNotFound is returned when an input archive does not exist
	ErrInputNotFound = errors.New("input archive not found")
	// ErrOutputExists is returned when overwriting is disabled and the
	// output table is already present
	ErrOutputExists = errors.New("output table already exists")
)

// Options configures a Pipeline
type Options struct {
	RawDir       string
	ProcessedDir string

	Format           table.Format
	Workers          int
	ProgressInterval int64
	ReadBufferSize   int
	WriteBufferSize  int
	Overwrite        bool

	ParquetCompression  string
	ParquetRowGroupSize int
}

// OptionsFromConfig builds pipeline options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	format, err := table.ParseFormat(cfg.Convert.Format)
	if err != nil {
		return Options{}, err
	}

	return Options{
		RawDir:              cfg.Data.RawDir,
		ProcessedDir:        cfg.Data.ProcessedDir,
		Format:              format,
		Workers:             cfg.Convert.Workers,
		ProgressInterval:    cfg.Convert.ProgressInterval,
		ReadBufferSize:      int(cfg.Convert.ReadBufferSize),
		WriteBufferSize:     int(cfg.Convert.WriteBufferSize),
		Overwrite:           cfg.Convert.Overwrite,
		ParquetCompression:  cfg.Convert.ParquetCompression,
		ParquetRowGroupSize: cfg.Convert.ParquetRowGroupSize,
	}, nil
}

// Result describes one converted archive
type Result struct {
	Input    string
	Output   string
	Codec    codec.Codec
	Games    int64
	BytesIn  int64
	Duration time.Duration
}

// Pipeline converts archives read from a storage backend into tables
// written to the same backend.
type Pipeline struct {
	store   storage.Backend
	opts    Options
	metrics *metrics.Metrics
	runID   string
	logger  zerolog.Logger
}

// New creates a Pipeline
func New(store storage.Backend, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.Format == "" {
		opts.Format = table.FormatCSV
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	runID := uuid.New().String()[:8]
	return &Pipeline{
		store:   store,
		opts:    opts,
		metrics: metrics.Get(),
		runID:   runID,
		logger:  logger.With().Str("component", "convert").Str("run_id", runID).Logger(),
	}
}

// RunID returns the identifier attached to this pipeline's log lines
func (p *Pipeline) RunID() string {
	return p.runID
}

// Paths returns the storage paths of the archive called name and of the
// table it converts to.
func (p *Pipeline) Paths(name string) (input, output string) {
	input = path.Join(p.opts.RawDir, name)
	output = path.Join(p.opts.ProcessedDir, OutputName(name, p.opts.Format.Extension()))
	return input, output
}

// OutputName replaces the last two extensions of name with ext, so
// "2013/lichess.pgn.zst" becomes "2013/lichess.csv". Directories in name
// are kept.
func OutputName(name, ext string) string {
	stem := name
	for i := 0; i < 2; i++ {
		e := path.Ext(stem)
		if e == "" || e == path.Base(stem) {
			break
		}
		stem = strings.TrimSuffix(stem, e)
	}
	return stem + ext
}

// Discover lists the archives in the raw directory, as names relative to it
func (p *Pipeline) Discover(ctx context.Context) ([]string, error) {
	paths, err := p.store.List(ctx, p.opts.RawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p.opts.RawDir, err)
	}

	prefix := strings.Trim(p.opts.RawDir, "/")
	if prefix != "" {
		prefix += "/"
	}
	var names []string
	for _, pth := range paths {
		if !strings.HasPrefix(pth, prefix) {
			continue
		}
		name := strings.TrimPrefix(pth, prefix)
		if strings.Contains(strings.ToLower(path.Base(name)), ".pgn") {
			names = append(names, name)
		}
	}
	return names, nil
}

// Run converts every named archive. With one worker the archives are
// processed in order and the first failure stops the run; earlier outputs
// stay in place. With more workers archives are converted concurrently and
// the first failure cancels the rest. Results are returned in the order of
// names for every archive that was attempted.
func (p *Pipeline) Run(ctx context.Context, names []string) ([]Result, error) {
	if p.opts.Workers <= 1 || len(names) <= 1 {
		results := make([]Result, 0, len(names))
		for _, name := range names {
			res, err := p.Convert(ctx, name)
			results = append(results, res)
			if err != nil {
				return results, err
			}
		}
		return results, nil
	}

	results := make([]Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, name := range names {
		g.Go(func() error {
			res, err := p.Convert(gctx, name)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	return results, err
}

// Convert streams one archive into its table. The input is opened and its
// compression header checked before the output is created, so a missing or
// unreadable archive leaves no output behind. A failure after that point
// leaves the rows written so far.
func (p *Pipeline) Convert(ctx context.Context, name string) (res Result, err error) {
	input, output := p.Paths(name)
	res = Result{Input: input, Output: output}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	log := p.logger.With().Str("input", input).Str("output", output).Logger()
	start := time.Now()

	p.metrics.IncFilesStarted()
	defer func() {
		res.Duration = time.Since(start)
		p.metrics.RecordConvertLatency(res.Duration.Microseconds())
		if err != nil {
			p.metrics.IncFilesFailed()
			return
		}
		p.metrics.IncFilesSucceeded()
	}()

	src, err := p.store.Open(ctx, input)
	if err != nil {
		p.metrics.IncStorageErrors()
		if errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("%w: %s: %w", ErrInputNotFound, input, err)
		}
		return res, fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer src.Close()

	counted := &countingReader{r: src}
	dec, c, err := codec.NewReader(counted, name)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", input, err)
	}
	defer dec.Close()
	res.Codec = c

	if !p.opts.Overwrite {
		exists, err := p.store.Exists(ctx, output)
		if err != nil {
			p.metrics.IncStorageErrors()
			return res, fmt.Errorf("failed to check %s: %w", output, err)
		}
		if exists {
			return res, fmt.Errorf("%w: %s", ErrOutputExists, output)
		}
	}

	dst, err := p.store.Create(ctx, output)
	if err != nil {
		p.metrics.IncStorageErrors()
		return res, fmt.Errorf("failed to create %s: %w", output, err)
	}

	w, err := table.Open(dst, p.opts.Format, table.Options{
		Columns:      schema.Fields(),
		BufferSize:   p.opts.WriteBufferSize,
		Compression:  p.opts.ParquetCompression,
		RowGroupSize: p.opts.ParquetRowGroupSize,
	})
	if err != nil {
		dst.Close()
		return res, fmt.Errorf("failed to open %s table %s: %w", p.opts.Format, output, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			p.metrics.IncStorageErrors()
			err = fmt.Errorf("failed to finish %s: %w", output, cerr)
		}
	}()

	log.Info().Str("codec", string(c)).Str("format", string(p.opts.Format)).Msg("Converting archive")

	if err := w.WriteHeader(); err != nil {
		return res, fmt.Errorf("failed to write header to %s: %w", output, err)
	}

	consumer := NewConsumer(w, p.opts.ProgressInterval, log)
	reader := pgn.NewReader(dec, pgn.WithBufferSize(p.opts.ReadBufferSize))
	games, err := reader.ReadAll(ctx, consumer)

	res.Games = games
	res.BytesIn = counted.n
	p.metrics.IncGames(games)
	p.metrics.IncRows(w.Rows())
	p.metrics.IncStorageReadBytes(counted.n)

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			log.Warn().Int64("games", games).Msg("Conversion interrupted")
			return res, fmt.Errorf("conversion of %s interrupted after %d games: %w", input, games, err)
		}
		return res, fmt.Errorf("failed to convert %s after %d games: %w", input, games, err)
	}

	log.Info().
		Int64("games", games).
		Int64("bytes_in", counted.n).
		Dur("duration", time.Since(start)).
		Msg("Converted archive")

	return res, nil
}

// countingReader counts the compressed bytes pulled from storage
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
