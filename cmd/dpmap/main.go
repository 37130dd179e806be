package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dnswlt/dpmap/internal/batch"
	"github.com/dnswlt/dpmap/internal/config"
	"github.com/dnswlt/dpmap/internal/convert"
	"github.com/dnswlt/dpmap/internal/filter"
	"github.com/dnswlt/dpmap/internal/gitclient"
	"github.com/dnswlt/dpmap/internal/log"
	"github.com/dnswlt/dpmap/internal/record"
	"github.com/dnswlt/dpmap/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/peterbourgon/ff/v3"
	"github.com/sirupsen/logrus"
)

var (
	// Version is the application version.
	// It is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
)

const envPrefix = "DPMAP"

// errNotFixedPoint is returned by roundtrip if a record changes on the
// second round trip.
var errNotFixedPoint = errors.New("round trip is not a fixed point")

// env gives commands access to the process environment. Tests replace it.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	e := &env{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
	}
	if err := run(ctx, e, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dpmap: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command. Available commands: convert, batch, roundtrip, ls, version")
	}
	switch args[0] {
	case "convert":
		return runConvert(e, args[1:])
	case "batch":
		return runBatch(ctx, e, args[1:])
	case "roundtrip":
		return runRoundTrip(e, args[1:])
	case "ls":
		return runList(ctx, e, args[1:])
	case "version":
		fmt.Fprintln(e.stdout, Version)
		return nil
	}
	return fmt.Errorf("unknown command %q. Available commands: convert, batch, roundtrip, ls, version", args[0])
}

// commonOptions are the flags shared by all commands.
type commonOptions struct {
	LogLevel string
}

func (o *commonOptions) register(fs *flag.FlagSet) {
	fs.StringVar(&o.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func parseFlags(e *env, fs *flag.FlagSet, args []string) error {
	fs.SetOutput(e.stderr)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(envPrefix)); err != nil {
		return fmt.Errorf("flag error: %w", err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

// ConvertOptions are the flags of the convert command.
type ConvertOptions struct {
	commonOptions
	To     string
	Kind   string
	In     string
	Out    string
	Format string
	Indent int
}

func runConvert(e *env, args []string) error {
	var opts ConvertOptions
	fs := flag.NewFlagSet("dpmap convert", flag.ContinueOnError)
	opts.register(fs)
	fs.StringVar(&opts.To, "to", "package", "Target schema: package or catalog")
	fs.StringVar(&opts.Kind, "kind", "dataset", "Record kind: dataset or resource")
	fs.StringVar(&opts.In, "in", "-", "Input file (.json, .yaml or .yml); - reads JSON from stdin")
	fs.StringVar(&opts.Out, "out", "-", "Output file; - writes to stdout")
	fs.StringVar(&opts.Format, "format", "json", "Output format: json or yaml")
	fs.IntVar(&opts.Indent, "indent", 0, "Indentation width (0 selects the format's default)")
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}
	logger, err := log.InitLogs(e.stderr, opts.LogLevel)
	if err != nil {
		return err
	}

	dir, err := convert.ParseDirection(opts.To)
	if err != nil {
		return err
	}
	kind, err := convert.ParseKind(opts.Kind)
	if err != nil {
		return err
	}
	format, err := store.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	conv, err := convert.For(dir, kind)
	if err != nil {
		return err
	}

	recs, err := readInput(e, opts.In)
	if err != nil {
		return err
	}
	out := make([]*record.Record, len(recs))
	for i, rec := range recs {
		if dir == convert.ToCatalog && kind == convert.Dataset {
			var report convert.CollapseReport
			out[i], report = convert.PackageToCatalogWithReport(rec)
			logCollapse(logger, rec, report)
		} else {
			out[i] = conv(rec)
		}
	}
	logger.WithFields(logrus.Fields{"records": len(out), "direction": dir, "kind": kind}).Debug("converted")

	bs, err := store.EncodeRecords(out, format, opts.Indent)
	if err != nil {
		return err
	}
	if opts.Out == "-" {
		_, err = e.stdout.Write(bs)
		return err
	}
	return store.NewDiskStore(filepath.Dir(opts.Out)).WriteFile(filepath.Base(opts.Out), bs)
}

func logCollapse(logger logrus.FieldLogger, rec *record.Record, report convert.CollapseReport) {
	name, _ := rec.String("name")
	entry := logger.WithFields(logrus.Fields{
		"name":         name,
		"licenses":     report.Licenses,
		"sources":      report.Sources,
		"contributors": report.Contributors,
	})
	if report.Lossless() {
		entry.Debug("collapsed lists")
	} else {
		entry.Info("archived lists in extras")
	}
}

func readInput(e *env, in string) ([]*record.Record, error) {
	if in == "-" {
		bs, err := io.ReadAll(e.stdin)
		if err != nil {
			return nil, fmt.Errorf("cannot read stdin: %w", err)
		}
		return store.DecodeRecords("stdin.json", bs)
	}
	return store.ReadRecords(store.NewDiskStore(filepath.Dir(in)), filepath.Base(in))
}

// BatchOptions are the flags of the batch command.
type BatchOptions struct {
	commonOptions
	To          string
	Kind        string
	RootDir     string
	GitURL      string
	GitRef      string
	InputDir    string
	OutDir      string
	ConfigFile  string
	Filter      string
	Format      string
	Concurrency int
}

func runBatch(ctx context.Context, e *env, args []string) error {
	var opts BatchOptions
	fs := flag.NewFlagSet("dpmap batch", flag.ContinueOnError)
	opts.register(fs)
	fs.StringVar(&opts.To, "to", "package", "Target schema: package or catalog")
	fs.StringVar(&opts.Kind, "kind", "dataset", "Record kind: dataset or resource")
	fs.StringVar(&opts.RootDir, "root-dir", ".", "Root directory of the local input store")
	fs.StringVar(&opts.GitURL, "git-url", "", "URL of a git repository to use as the input store")
	fs.StringVar(&opts.GitRef, "git-ref", "", "Git ref (branch or tag) to read; defaults to the default branch")
	fs.StringVar(&opts.InputDir, "input-dir", ".", "Directory holding the input records (relative to the input store root)")
	fs.StringVar(&opts.OutDir, "out-dir", "", "Output directory")
	fs.StringVar(&opts.ConfigFile, "config", "", "Configuration YAML file (relative to the input store root)")
	fs.StringVar(&opts.Filter, "filter", "", "CEL expression selecting records, e.g. 'record.private == false'. Overrides the config file.")
	fs.StringVar(&opts.Format, "format", "", "Output format: json or yaml. Overrides the config file.")
	fs.IntVar(&opts.Concurrency, "concurrency", 0, "Maximum number of files converted in parallel. Overrides the config file.")
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}
	logger, err := log.InitLogs(e.stderr, opts.LogLevel)
	if err != nil {
		return err
	}
	if opts.OutDir == "" {
		return errors.New("-out-dir is required")
	}

	dir, err := convert.ParseDirection(opts.To)
	if err != nil {
		return err
	}
	kind, err := convert.ParseKind(opts.Kind)
	if err != nil {
		return err
	}
	conv, err := convert.For(dir, kind)
	if err != nil {
		return err
	}

	src, err := createSource(ctx, e, opts, logger)
	if err != nil {
		return err
	}
	st, err := src.Store(opts.GitRef)
	if err != nil {
		return fmt.Errorf("cannot open input store: %w", err)
	}

	cfg := config.Default()
	if opts.ConfigFile != "" {
		cfg, err = config.Load(st, opts.ConfigFile)
		if err != nil {
			return err
		}
	}
	if opts.Filter != "" {
		cfg.Filter = opts.Filter
	}
	if opts.Format != "" {
		cfg.Output.Format = opts.Format
	}
	if opts.Concurrency != 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	flt, err := filter.Compile(cfg.Filter)
	if err != nil {
		return err
	}
	format, err := store.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	files, err := store.RecordFiles(st, opts.InputDir, cfg.Input.Extensions)
	if err != nil {
		return fmt.Errorf("cannot list input files: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"files":     len(files),
		"direction": dir,
		"kind":      kind,
		"filter":    flt.String(),
	}).Info("starting batch conversion")

	r := &batch.Runner{
		Source:      st,
		Sink:        store.NewDiskStore(opts.OutDir),
		InputDir:    opts.InputDir,
		Convert:     conv,
		Filter:      flt,
		Format:      format,
		Indent:      cfg.Output.Indent,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}
	summary, err := r.Run(ctx, files)
	logger.WithField("failed_files", summary.FailedFiles).Infof("batch conversion done: %s", summary)
	if err != nil {
		return fmt.Errorf("batch conversion aborted: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d records failed", summary.Failed)
	}
	return nil
}

func gitClientAuthFromEnv(e *env) *gitclient.Auth {
	user := e.getenv(envPrefix + "_GIT_USER")
	if user == "" {
		return nil
	}
	return &gitclient.Auth{
		Username: user,
		Password: e.getenv(envPrefix + "_GIT_PASSWORD"),
	}
}

func createSource(ctx context.Context, e *env, opts BatchOptions, logger logrus.FieldLogger) (store.Source, error) {
	if opts.GitURL != "" {
		logger.Infof("Retrieving records from git URL %s", opts.GitURL)
		client, err := gitclient.New(ctx, opts.GitURL, gitClientAuthFromEnv(e))
		if err != nil {
			return nil, err
		}
		src, err := store.NewGitSource(client, opts.GitRef)
		if err != nil {
			return nil, fmt.Errorf("no -git-ref specified and no default branch found: %w", err)
		}
		logger.Infof("Using git ref %q", src.DefaultRef())
		return src, nil
	}
	if opts.GitRef != "" {
		return nil, errors.New("-git-ref requires -git-url")
	}
	logger.Infof("Using local store at %s", opts.RootDir)
	return store.NewDiskStore(opts.RootDir), nil
}

// RoundTripOptions are the flags of the roundtrip command.
type RoundTripOptions struct {
	commonOptions
	In string
}

// runRoundTrip converts Catalog datasets to Package form and back twice
// and checks that the second round trip leaves them unchanged.
func runRoundTrip(e *env, args []string) error {
	var opts RoundTripOptions
	fs := flag.NewFlagSet("dpmap roundtrip", flag.ContinueOnError)
	opts.register(fs)
	fs.StringVar(&opts.In, "in", "-", "Input file holding Catalog datasets; - reads JSON from stdin")
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}
	logger, err := log.InitLogs(e.stderr, opts.LogLevel)
	if err != nil {
		return err
	}
	recs, err := readInput(e, opts.In)
	if err != nil {
		return err
	}

	var unstable int
	for i, c1 := range recs {
		name, ok := c1.String("name")
		if !ok {
			name = fmt.Sprintf("#%d", i)
		}
		c2, report := convert.PackageToCatalogWithReport(convert.CatalogDatasetToPackage(c1))
		c3 := convert.PackageToCatalog(convert.CatalogDatasetToPackage(c2))
		if diff := cmp.Diff(c2.ToMap(), c3.ToMap()); diff != "" {
			unstable++
			fmt.Fprintf(e.stdout, "%s: not a fixed point (-first +second):\n%s", name, diff)
			continue
		}
		fmt.Fprintf(e.stdout, "%s: ok (licenses=%s sources=%s contributors=%s)\n",
			name, report.Licenses, report.Sources, report.Contributors)
	}
	logger.WithFields(logrus.Fields{"records": len(recs), "unstable": unstable}).Debug("round trip done")
	if unstable > 0 {
		return fmt.Errorf("%w for %d of %d records", errNotFixedPoint, unstable, len(recs))
	}
	return nil
}

// runList prints the refs of a git input store and the record files
// a batch run would read.
func runList(ctx context.Context, e *env, args []string) error {
	var opts BatchOptions
	fs := flag.NewFlagSet("dpmap ls", flag.ContinueOnError)
	opts.register(fs)
	fs.StringVar(&opts.RootDir, "root-dir", ".", "Root directory of the local input store")
	fs.StringVar(&opts.GitURL, "git-url", "", "URL of a git repository to use as the input store")
	fs.StringVar(&opts.GitRef, "git-ref", "", "Git ref (branch or tag) to list; defaults to the default branch")
	fs.StringVar(&opts.InputDir, "input-dir", ".", "Directory holding the input records (relative to the input store root)")
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}
	logger, err := log.InitLogs(e.stderr, opts.LogLevel)
	if err != nil {
		return err
	}
	src, err := createSource(ctx, e, opts, logger)
	if err != nil {
		return err
	}
	if gs, ok := src.(*store.GitSource); ok {
		refs, err := gs.ListReferences()
		if err != nil {
			return fmt.Errorf("cannot list references: %w", err)
		}
		fmt.Fprintf(e.stdout, "Branches and tags in %s:\n", opts.GitURL)
		for _, r := range refs {
			fmt.Fprintf(e.stdout, "  %s\n", r)
		}
		fmt.Fprintln(e.stdout)
	}
	st, err := src.Store(opts.GitRef)
	if err != nil {
		return fmt.Errorf("cannot open input store: %w", err)
	}
	files, err := store.RecordFiles(st, opts.InputDir, config.Default().Input.Extensions)
	if err != nil {
		return fmt.Errorf("cannot list input files: %w", err)
	}
	fmt.Fprintf(e.stdout, "Record files in %s:\n", opts.InputDir)
	for _, f := range files {
		fmt.Fprintf(e.stdout, "  %s\n", f)
	}
	return nil
}
