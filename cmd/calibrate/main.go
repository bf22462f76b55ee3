package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"mertoncli/internal/config"
	"mertoncli/internal/dataset"
	"mertoncli/internal/exporter"
	"mertoncli/internal/infrastructure"
	"mertoncli/internal/merton"
	"mertoncli/internal/services"
)

const (
	modeSingle = "single"
	modeSeries = "series"
)

// options are the parsed command line flags
type options struct {
	configFile string
	mode       string

	code      string
	equity    float64
	equityVol float64
	debt      float64
	rate      float64
	rateSet   bool
	horizon   float64

	prices       string
	fundamentals string
	workbook     string
	window       int

	tolerance     float64
	maxIterations int
	cdfMethod     string

	csvOut    string
	xlsxOut   string
	appendCSV bool
	report    bool
	logLevel  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "calibrate: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configFile, "config", os.Getenv(config.ConfigFileEnv), "YAML config file")
	fs.StringVar(&o.mode, "mode", modeSingle, "single | series")

	fs.StringVar(&o.code, "code", "", "company code")
	fs.Float64Var(&o.equity, "equity", 0, "equity value (single mode without dataset files)")
	fs.Float64Var(&o.equityVol, "equity-vol", 0, "annualised equity volatility")
	fs.Float64Var(&o.debt, "debt", 0, "face value of debt")
	fs.Float64Var(&o.rate, "rate", 0, "risk-free rate (defaults to the configured rate)")
	fs.Float64Var(&o.horizon, "horizon", 0, "debt horizon in years (defaults to the configured horizon)")

	fs.StringVar(&o.prices, "prices", "", "daily prices CSV")
	fs.StringVar(&o.fundamentals, "fundamentals", "", "fundamentals CSV")
	fs.StringVar(&o.workbook, "workbook", "", "xlsx workbook with prices and fundamentals sheets")
	fs.IntVar(&o.window, "window", 0, "observation window (defaults to the configured window)")

	fs.Float64Var(&o.tolerance, "tolerance", 0, "override convergence tolerance")
	fs.IntVar(&o.maxIterations, "max-iter", 0, "override iteration cap")
	fs.StringVar(&o.cdfMethod, "cdf", "", "closed_form | quadrature")

	fs.StringVar(&o.csvOut, "csv", "", "CSV report, relative paths land in the reports directory")
	fs.StringVar(&o.xlsxOut, "xlsx", "", "xlsx report with charts (series mode)")
	fs.BoolVar(&o.appendCSV, "append", false, "append single-point rows to an existing CSV")
	fs.BoolVar(&o.report, "report", false, "write reports named after the company code unless -csv or -xlsx are set")
	fs.StringVar(&o.logLevel, "log-level", "", "override log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "rate" {
			o.rateSet = true
		}
	})

	switch o.mode {
	case modeSingle:
		if !o.hasDataset() && (o.equity <= 0 || o.equityVol <= 0 || o.debt <= 0) {
			return nil, errors.New("single mode needs -equity, -equity-vol and -debt, or dataset files")
		}
	case modeSeries:
		if !o.hasDataset() {
			return nil, errors.New("series mode needs -workbook or -prices with -fundamentals")
		}
		if o.appendCSV {
			return nil, errors.New("-append only applies to single mode")
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", o.mode)
	}
	if o.hasDataset() && o.code == "" {
		return nil, errors.New("-code is required with dataset files")
	}
	if o.workbook == "" && (o.prices == "") != (o.fundamentals == "") {
		return nil, errors.New("-prices and -fundamentals go together")
	}
	if o.xlsxOut != "" && o.mode != modeSeries {
		return nil, errors.New("-xlsx only applies to series mode")
	}

	if o.report {
		if o.csvOut == "" {
			o.csvOut = config.ReportFileName(o.code, "csv")
		}
		if o.mode == modeSeries && o.xlsxOut == "" {
			o.xlsxOut = config.ReportFileName(o.code, "xlsx")
		}
	}
	return o, nil
}

func (o *options) hasDataset() bool {
	return o.workbook != "" || o.prices != "" || o.fundamentals != ""
}

func (o *options) calibrationOptions() *services.CalibrationOptions {
	if o.tolerance == 0 && o.maxIterations == 0 && o.cdfMethod == "" {
		return nil
	}
	return &services.CalibrationOptions{
		Tolerance:     o.tolerance,
		MaxIterations: o.maxIterations,
		CDFMethod:     o.cdfMethod,
	}
}

func (o *options) ratePtr() *float64 {
	if !o.rateSet {
		return nil
	}
	return &o.rate
}

func (o *options) horizonPtr() *float64 {
	if o.horizon <= 0 {
		return nil
	}
	return &o.horizon
}

// run parses args, calibrates, writes the requested reports and prints a
// summary to stdout. Logs go to stderr and the configured log file.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFrom(o.configFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if cfg.Logging.Output != "console" && cfg.Logging.FilePath == "" {
		cfg.Logging.Output = "console"
	}

	logger, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	paths := config.ResolvePaths(wd, cfg.Paths)

	// The CLI exports nothing; spans and instruments are no-ops
	cfg.Telemetry.EnableTracing = false
	cfg.Telemetry.EnableMetrics = false
	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return err
	}
	metrics, err := infrastructure.NewCalibrationMetrics(providers.Meter)
	if err != nil {
		return err
	}

	c := &calibrator{
		opts:    o,
		cfg:     cfg,
		service: services.NewCalibrationService(cfg.Calibration, paths, providers.Tracer, metrics, logger),
		writer:  exporter.NewCSVWriter(paths).WithLogger(logger),
		logger:  logger,
		stdout:  stdout,
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	logger.InfoContext(ctx, "Starting calibration",
		slog.String("mode", o.mode),
		slog.String("code", o.code),
		slog.Bool("dataset", o.hasDataset()))

	if o.mode == modeSeries {
		return c.series(ctx)
	}
	return c.single(ctx)
}

type calibrator struct {
	opts    *options
	cfg     *config.Config
	service *services.CalibrationService
	writer  *exporter.CSVWriter
	logger  *slog.Logger
	stdout  io.Writer
}

func (c *calibrator) load() (dataset.FirmSeries, error) {
	window := c.opts.window
	if window == 0 {
		window = c.cfg.Calibration.Window
	}
	src := dataset.Source{
		PricesPath:       c.opts.prices,
		FundamentalsPath: c.opts.fundamentals,
		WorkbookPath:     c.opts.workbook,
	}
	series, err := src.Load(c.opts.code, window)
	if err != nil {
		return dataset.FirmSeries{}, err
	}
	c.logger.Info("Dataset loaded",
		slog.String("code", series.Code),
		slog.Int("observations", series.Len()),
		slog.Float64("debt", series.Debt))
	return series, nil
}

func (c *calibrator) single(ctx context.Context) error {
	req := services.SinglePointRequest{
		Code:      c.opts.code,
		Equity:    c.opts.equity,
		EquityVol: c.opts.equityVol,
		Debt:      c.opts.debt,
		Rate:      c.opts.ratePtr(),
		Horizon:   c.opts.horizonPtr(),
		Options:   c.opts.calibrationOptions(),
	}

	if c.opts.hasDataset() {
		series, err := c.load()
		if err != nil {
			return err
		}
		snap, err := series.Snapshot(0, 1)
		if err != nil {
			return err
		}
		req.Code = series.Code
		req.Equity = snap.Equity
		req.EquityVol = snap.EquityVol
		req.Debt = snap.Debt
	}

	resp, err := c.service.CalibrateSingle(ctx, req)
	if err != nil {
		return err
	}

	if c.opts.csvOut != "" {
		record := exporter.SinglePointRecord{Code: resp.Code, Snapshot: resp.Input, Result: resp.Result}
		if err := c.writer.WriteSinglePointCSV(c.opts.csvOut, []exporter.SinglePointRecord{record}, c.opts.appendCSV); err != nil {
			return err
		}
	}

	printSingle(c.stdout, resp)
	if c.opts.csvOut != "" {
		fmt.Fprintf(c.stdout, "report:\t%s\n", c.writer.ResolvePath(c.opts.csvOut))
	}
	return nil
}

func (c *calibrator) series(ctx context.Context) error {
	series, err := c.load()
	if err != nil {
		return err
	}

	resp, err := c.service.CalibrateTimeSeries(ctx, services.TimeSeriesRequest{
		Code:     series.Code,
		Equities: series.MarketCaps,
		Debt:     series.Debt,
		Rate:     c.opts.ratePtr(),
		Horizon:  c.opts.horizonPtr(),
		Options:  c.opts.calibrationOptions(),
	})
	if err != nil {
		return err
	}

	report, err := exporter.NewTimeSeriesReport(exporter.SeriesInput{
		Code:       series.Code,
		Dates:      series.Dates,
		MarketCaps: series.MarketCaps,
		Debt:       series.Debt,
		BookAssets: series.BookAssets,
	}, resp.Result)
	if err != nil {
		return err
	}

	var written []string
	if c.opts.csvOut != "" {
		if err := c.writer.WriteTimeSeriesCSV(c.opts.csvOut, report); err != nil {
			return err
		}
		written = append(written, c.writer.ResolvePath(c.opts.csvOut))
	}
	if c.opts.xlsxOut != "" {
		if err := c.writer.WriteTimeSeriesWorkbook(c.opts.xlsxOut, report); err != nil {
			return err
		}
		written = append(written, c.writer.ResolvePath(c.opts.xlsxOut))
	}

	printSeries(c.stdout, resp)
	for _, path := range written {
		fmt.Fprintf(c.stdout, "report:\t%s\n", path)
	}
	return nil
}

func printSingle(w io.Writer, resp *services.SinglePointResponse) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	r := resp.Result
	fmt.Fprintf(tw, "code:\t%s\n", resp.Code)
	fmt.Fprintf(tw, "equity:\t%.6g\tequity vol:\t%.6g\n", resp.Input.Equity, resp.Input.EquityVol)
	fmt.Fprintf(tw, "debt:\t%.6g\trate:\t%.4g\thorizon:\t%.4g\n", resp.Input.Debt, resp.Input.Rate, resp.Input.Horizon)
	fmt.Fprintf(tw, "asset:\t%.6g\tasset vol:\t%.6g\n", r.Asset, r.AssetVol)
	fmt.Fprintf(tw, "pd:\t%.6g\tdd:\t%.6g\n", r.DefaultProbability, r.DistanceToDefault)
	fmt.Fprintf(tw, "status:\t%s\titerations:\t%d\tresidual:\t%.3g\n", r.Status, r.Iterations, r.Residual)
	tw.Flush()
	warnNotConverged(w, r.Converged, r.Status)
}

func printSeries(w io.Writer, resp *services.TimeSeriesResponse) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	r := resp.Result
	fmt.Fprintf(tw, "code:\t%s\tobservations:\t%d\n", resp.Code, resp.Observations)
	fmt.Fprintf(tw, "debt:\t%.6g\trate:\t%.4g\thorizon:\t%.4g\n", resp.Debt, resp.Rate, resp.Horizon)
	fmt.Fprintf(tw, "asset vol:\t%.6g\tequity vol:\t%.6g\n", r.AssetVol, r.EquityVol)
	if n := len(r.Assets); n > 0 {
		fmt.Fprintf(tw, "latest asset:\t%.6g\tlatest dd:\t%.6g\n", r.Assets[n-1], r.DistancesToDefault[n-1])
	}
	fmt.Fprintf(tw, "latest pd:\t%.6g\n", resp.LatestDefaultProbability)
	fmt.Fprintf(tw, "status:\t%s\titerations:\t%d\teval:\t%.3g\n", r.Status, r.Iterations, r.Eval)
	tw.Flush()
	warnNotConverged(w, r.Converged, r.Status)
}

func warnNotConverged(w io.Writer, converged bool, status merton.Status) {
	if !converged {
		fmt.Fprintf(w, "warning: calibration did not converge (%s); results are the last iterate\n", status)
	}
}
