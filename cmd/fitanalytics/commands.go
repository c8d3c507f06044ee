package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	fitanalytics "github.com/lucasjlepore/fit-analytics"
	"github.com/lucasjlepore/fit-analytics/api"
	"github.com/lucasjlepore/fit-analytics/config"
	"github.com/lucasjlepore/fit-analytics/export"
	"github.com/lucasjlepore/fit-analytics/ingest"
	"github.com/lucasjlepore/fit-analytics/store"
	"github.com/lucasjlepore/fit-analytics/store/postgres"
	"github.com/lucasjlepore/fit-analytics/store/sqlite"
)

// env is what every command needs once flags are parsed.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	store  store.ReadWriter
	svc    *fitanalytics.Service

	closers []io.Closer
}

func newFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s [flags]\n", filepath.Base(os.Args[0]), name)
		flags.PrintDefaults()
	}
	return flags
}

func setup(flags *pflag.FlagSet) (*env, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	logger, logCloser := config.NewLogger(cfg.Log, "")
	e := &env{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	st, closer, err := openStore(cfg, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, closer)
	e.svc = fitanalytics.New(st, logger, cfg.Analysis())
	return e, nil
}

// Close releases the store before the log file.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close: %v\n", err)
		}
	}
}

func openStore(cfg *config.Config, logger *log.Logger) (store.ReadWriter, io.Closer, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		s, err := postgres.Open(cfg.Store.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		db, err := sqlite.Open(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	}
}

// analysisFlags are shared by the analysis commands.
type analysisFlags struct {
	athlete *string
	months  *int
	jsonOut *bool
}

func addAnalysisFlags(flags *pflag.FlagSet) analysisFlags {
	return analysisFlags{
		athlete: flags.StringP("athlete", "a", "", "athlete id (required)"),
		months:  flags.IntP("months", "m", api.DefaultPeriodMonths, "analysis period in months (1-24)"),
		jsonOut: flags.Bool("json", false, "emit the full report as JSON"),
	}
}

func (a analysisFlags) check(flags *pflag.FlagSet) error {
	if strings.TrimSpace(*a.athlete) == "" {
		flags.Usage()
		return errors.New("--athlete is required")
	}
	return nil
}

func printReport(jsonOut bool, report interface{}, notes string) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("json encode failed: %w", err)
		}
		return nil
	}
	fmt.Println(notes)
	return nil
}

func runClimbs(args []string) error {
	flags := newFlagSet("climbs")
	af := addAnalysisFlags(flags)
	flags.Parse(args)
	if err := af.check(flags); err != nil {
		return err
	}
	e, err := setup(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.svc.AnalyzeClimbs(context.Background(), *af.athlete, *af.months)
	if err != nil {
		return err
	}
	return printReport(*af.jsonOut, report, fitanalytics.BuildClimbNotes(report))
}

func runFTP(args []string) error {
	flags := newFlagSet("ftp")
	af := addAnalysisFlags(flags)
	flags.Parse(args)
	if err := af.check(flags); err != nil {
		return err
	}
	e, err := setup(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.svc.EstimateFTP(context.Background(), *af.athlete, *af.months)
	if err != nil {
		return err
	}
	return printReport(*af.jsonOut, report, fitanalytics.BuildFTPNotes(report))
}

func runCadence(args []string) error {
	flags := newFlagSet("cadence")
	af := addAnalysisFlags(flags)
	ftp := flags.Float64("ftp", 0, "FTP in watts for power zones (optional; defaults to the profile FTP)")
	flags.Parse(args)
	if err := af.check(flags); err != nil {
		return err
	}
	e, err := setup(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	var ftpW *float64
	if flags.Changed("ftp") {
		ftpW = ftp
	}
	report, err := e.svc.AnalyzeCadence(context.Background(), *af.athlete, *af.months, ftpW)
	if err != nil {
		return err
	}
	return printReport(*af.jsonOut, report, fitanalytics.BuildCadenceNotes(report))
}

func runTrends(args []string) error {
	flags := newFlagSet("trends")
	af := addAnalysisFlags(flags)
	period := flags.StringP("period", "p", "month", "comparison period: month, quarter or year")
	flags.Parse(args)
	if err := af.check(flags); err != nil {
		return err
	}
	e, err := setup(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.svc.AnalyzeTrends(context.Background(), *af.athlete, *period)
	if err != nil {
		return err
	}
	return printReport(*af.jsonOut, report, fitanalytics.BuildTrendNotes(report))
}

func runExport(args []string) error {
	flags := newFlagSet("export")
	af := addAnalysisFlags(flags)
	what := flags.String("what", "climbs", "what to export: climbs (parquet), curve (parquet) or chart (html)")
	out := flags.StringP("out", "o", "", "output file (required)")
	flags.Parse(args)
	if err := af.check(flags); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		flags.Usage()
		return errors.New("--out is required")
	}
	e, err := setup(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	var data []byte
	switch *what {
	case "climbs":
		report, err := e.svc.AnalyzeClimbs(ctx, *af.athlete, *af.months)
		if err != nil {
			return err
		}
		if data, err = export.ClimbsParquet(report.Records); err != nil {
			return err
		}
		fmt.Printf("climbs:              %d\n", len(report.Records))
	case "curve":
		report, err := e.svc.EstimateFTP(ctx, *af.athlete, *af.months)
		if err != nil {
			return err
		}
		if data, err = export.PowerCurveParquet(report.Curve); err != nil {
			return err
		}
		fmt.Printf("curve points:        %d\n", len(report.Curve))
	case "chart":
		report, err := e.svc.AnalyzeClimbs(ctx, *af.athlete, *af.months)
		if err != nil {
			return err
		}
		buckets := report.MonthlyTrends
		if n := e.svc.Options().ReportTrendMonths; n > 0 && len(buckets) > n {
			buckets = buckets[len(buckets)-n:]
		}
		var buf bytes.Buffer
		if err := export.ClimbTrendChart(&buf, buckets, fmt.Sprintf("Climbing trend for %s", *af.athlete)); err != nil {
			return err
		}
		data = buf.Bytes()
		fmt.Printf("months:              %d\n", len(buckets))
	default:
		return fmt.Errorf("unknown export %q (want climbs, curve or chart)", *what)
	}

	if err := export.WriteFile(*out, data); err != nil {
		return err
	}
	fmt.Printf("written:             %s\n", *out)
	return nil
}

func runImport(args []string) error {
	flags := newFlagSet("import")
	athlete := flags.StringP("athlete", "a", "", "athlete id (required)")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s import --athlete ID <file.fit|dir>...\n", filepath.Base(os.Args[0]))
		flags.PrintDefaults()
	}
	flags.Parse(args)
	if strings.TrimSpace(*athlete) == "" || flags.NArg() == 0 {
		flags.Usage()
		return errors.New("--athlete and at least one path are required")
	}

	paths, err := fitFiles(flags.Args())
	if err != nil {
		return err
	}
	e, err := setup(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	importer := ingest.NewImporter(e.store, e.logger)
	ctx := context.Background()
	var failed int
	for _, path := range paths {
		if _, err := importer.ImportFile(ctx, path, *athlete); err != nil {
			e.logger.Printf("ingest: %v", err)
			failed++
		}
	}
	fmt.Printf("imported:            %d\n", len(paths)-failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

// fitFiles expands directories into the .fit files beneath them.
func fitFiles(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".fit") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func runMigrate(args []string) error {
	flags := newFlagSet("migrate")
	flags.Parse(args)
	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	logger, logCloser := config.NewLogger(cfg.Log, "")
	defer logCloser.Close()

	if cfg.Store.Driver == config.DriverPostgres {
		s, err := postgres.Open(cfg.Store.PostgresDSN, logger)
		if err != nil {
			return err
		}
		return s.Close()
	}

	db, err := sqlite.Open(cfg.Store.SQLitePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Printf("schema version:      %d (dirty: %t)\n", version, dirty)
	return nil
}

func runServe(args []string) error {
	flags := newFlagSet("serve")
	flags.Parse(args)
	e, err := setup(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	router := mux.NewRouter()
	api.NewHandler(e.svc, e.logger, e.svc.Options().ReportTrendMonths).RegisterRoutes(router)
	srv := &http.Server{
		Addr:              e.cfg.HTTP.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		e.logger.Printf("serve: listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	e.logger.Printf("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
