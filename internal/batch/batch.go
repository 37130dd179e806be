// Package batch converts all record files of a store concurrently.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/dnswlt/dpmap/internal/convert"
	"github.com/dnswlt/dpmap/internal/filter"
	"github.com/dnswlt/dpmap/internal/log"
	"github.com/dnswlt/dpmap/internal/record"
	"github.com/dnswlt/dpmap/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner converts record files read from Source and writes the results to
// Sink, keeping each file's path relative to InputDir.
type Runner struct {
	Source   store.Store
	Sink     store.Store
	InputDir string
	Convert  convert.Converter
	// Filter selects the records to convert. A nil Filter selects all.
	Filter *filter.Filter
	Format store.Format
	Indent int
	// Maximum number of files processed in parallel. Values below 1 mean 1.
	Concurrency int
	Logger      logrus.FieldLogger
}

// Summary counts records by outcome.
type Summary struct {
	Converted int
	Skipped   int
	Failed    int
	// Files that could not be read or held records that failed to convert.
	FailedFiles []string
}

func (s Summary) String() string {
	return fmt.Sprintf("%d converted, %d skipped, %d failed", s.Converted, s.Skipped, s.Failed)
}

// Run converts all files. Malformed input files and records the filter cannot
// evaluate are counted as failed and do not stop the run. Write errors
// cancel the run and are returned along with the partial summary.
func (r *Runner) Run(ctx context.Context, files []string) (Summary, error) {
	if r.Convert == nil {
		return Summary{}, errors.New("batch: no converter")
	}
	logger := r.Logger
	if logger == nil {
		logger = log.Discard()
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	add := func(res fileResult, file string) {
		mu.Lock()
		defer mu.Unlock()
		summary.Converted += res.converted
		summary.Skipped += res.skipped
		summary.Failed += res.failed
		if res.failed > 0 {
			summary.FailedFiles = append(summary.FailedFiles, file)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Concurrency, 1))
	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := r.convertFile(gctx, file, log.WithFile(file, logger))
			add(res, file)
			return err
		})
	}
	err := g.Wait()
	slices.Sort(summary.FailedFiles)
	if err == nil {
		err = ctx.Err()
	}
	return summary, err
}

type fileResult struct {
	converted, skipped, failed int
}

func (r *Runner) convertFile(ctx context.Context, file string, logger logrus.FieldLogger) (fileResult, error) {
	var res fileResult
	recs, err := store.ReadRecords(r.Source, file)
	if err != nil {
		logger.WithError(err).Error("cannot read records")
		res.failed++
		return res, nil
	}

	var selected []*record.Record
	for i, rec := range recs {
		ok, err := r.Filter.Match(rec)
		switch {
		case err != nil:
			logger.WithError(err).WithField("index", i).Error("filter failed")
			res.failed++
		case !ok:
			logger.WithField("index", i).Debug("skipped by filter")
			res.skipped++
		default:
			selected = append(selected, rec)
		}
	}

	for i, rec := range selected {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := r.outputPath(file, i, len(selected))
		if err := store.WriteRecord(r.Sink, out, r.Convert(rec), r.format(), r.Indent); err != nil {
			return res, err
		}
		logger.WithField("output", out).Info("converted")
		res.converted++
	}
	return res, nil
}

// format returns the output format, JSON unless set.
func (r *Runner) format() store.Format {
	if r.Format == "" {
		return store.FormatJSON
	}
	return r.Format
}

// outputPath maps file to its path in the sink. Files holding several
// selected records get one output per record, numbered from 0.
func (r *Runner) outputPath(file string, i, n int) string {
	rel := file
	if dir := path.Clean(r.InputDir); dir != "." && dir != "" {
		rel = strings.TrimPrefix(path.Clean(file), dir+"/")
	}
	if n > 1 {
		ext := path.Ext(rel)
		rel = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(rel, ext), i, ext)
	}
	return store.OutputPath(rel, r.format())
}
