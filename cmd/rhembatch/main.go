package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bytemomo/rhembatch/internal/adapter/artifacts"
	"bytemomo/rhembatch/internal/adapter/jsonreport"
	"bytemomo/rhembatch/internal/adapter/localexec"
	"bytemomo/rhembatch/internal/adapter/logger"
	"bytemomo/rhembatch/internal/adapter/pgtable"
	"bytemomo/rhembatch/internal/adapter/xlsxtable"
	"bytemomo/rhembatch/internal/config"
	"bytemomo/rhembatch/internal/csip"
	"bytemomo/rhembatch/internal/domain"
	"bytemomo/rhembatch/internal/runner"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var version = "dev"

type overrides struct {
	workbook    string
	count       int
	out         string
	concurrency int
	mode        string
	runID       string
	verbose     bool
	set         map[string]bool
}

func main() {
	fs := flag.NewFlagSet("rhembatch", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "Path to configuration YAML (optional)")
		showVer    = fs.Bool("version", false, "Print version and exit")
		ov         overrides
	)
	fs.StringVar(&ov.workbook, "workbook", "", "Scenario workbook (.xlsx)")
	fs.IntVar(&ov.count, "count", 0, "Number of scenario rows to consider (0 = all)")
	fs.StringVar(&ov.out, "out", "", "Output directory for artifacts and reports")
	fs.IntVar(&ov.concurrency, "concurrency", 0, "Maximum scenarios in flight")
	fs.StringVar(&ov.mode, "mode", "", "Execution mode: service or local")
	fs.StringVar(&ov.runID, "run-id", "", "Run identifier (default: random UUID)")
	fs.BoolVar(&ov.verbose, "verbose", false, "Enable debug logging")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		os.Exit(2)
	}
	if *showVer {
		fmt.Println("rhembatch", version)
		return
	}
	ov.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { ov.set[f.Name] = true })

	cfg, err := config.NewLoader(".").Load(*configPath)
	if err == nil {
		err = applyOverrides(cfg, ov)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(2)
	}

	closer, err := logger.Setup(logger.Options{
		Level:  cfg.Runtime.Logging.Level,
		Format: cfg.Runtime.Logging.Format,
		File:   cfg.Runtime.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		logrus.WithError(err).Error("Batch failed")
	}
	_ = closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config, ov overrides) error {
	if ov.set["workbook"] {
		cfg.Table.Kind = config.TableXLSX
		cfg.Table.Path = ov.workbook
	}
	if ov.set["count"] {
		cfg.Table.ScenarioCount = ov.count
	}
	if ov.set["out"] {
		cfg.Runtime.OutDir = ov.out
	}
	if ov.set["concurrency"] {
		cfg.Runtime.Concurrency = ov.concurrency
	}
	if ov.set["mode"] {
		cfg.Runtime.Mode = ov.mode
	}
	if ov.set["run-id"] {
		cfg.Runtime.RunID = ov.runID
	}
	if ov.verbose {
		cfg.Runtime.Logging.Level = "debug"
	}
	if cfg.Runtime.RunID == "" {
		cfg.Runtime.RunID = uuid.NewString()
	}
	return cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logrus.WithFields(logrus.Fields{
		"run_id": cfg.Runtime.RunID,
		"name":   cfg.Name,
	})

	table, closeTable, err := openTable(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTable()

	sink, err := newArtifactSink(ctx, cfg)
	if err != nil {
		return err
	}

	r := runner.Runner{
		Table:     table,
		Executors: newExecutors(cfg, sink, log),
		Report:    jsonreport.New(cfg.Runtime.OutDir),
		Log:       log,
		Config: runner.Config{
			RunID:         cfg.Runtime.RunID,
			Mode:          cfg.Runtime.Mode,
			Concurrency:   cfg.Runtime.Concurrency,
			Timeout:       cfg.Timeout(),
			ScenarioCount: cfg.Table.ScenarioCount,
			Layout:        cfg.Layout(),
		},
	}
	_, err = r.Run(ctx)
	return err
}

func openTable(ctx context.Context, cfg *config.Config) (domain.ScenarioTable, func(), error) {
	switch cfg.Table.Kind {
	case config.TablePostgres:
		t, err := pgtable.Open(ctx, cfg.Table.DSN, cfg.Table.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("open scenario table: %w", err)
		}
		return t, func() { _ = t.Close() }, nil
	default:
		t, err := xlsxtable.Open(cfg.Table.Path, cfg.Table.Sheet, cfg.Headers())
		if err != nil {
			return nil, nil, fmt.Errorf("open scenario table: %w", err)
		}
		return t, func() { _ = t.Close() }, nil
	}
}

func newArtifactSink(ctx context.Context, cfg *config.Config) (domain.ArtifactSink, error) {
	sinks := artifacts.Tee{artifacts.NewDir(cfg.Runtime.OutDir)}
	if m := cfg.Artifacts.Minio; m.Enabled {
		mirror, err := artifacts.NewMinio(ctx, artifacts.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Region:    m.Region,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			UseSSL:    m.UseSSL,
		}, cfg.Runtime.RunID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, mirror)
	}
	return sinks, nil
}

func newExecutors(cfg *config.Config, sink domain.ArtifactSink, log *logrus.Entry) []domain.ScenarioExecutor {
	return []domain.ScenarioExecutor{
		csip.NewClient(csip.Config{
			URL:       cfg.Service.URL,
			AuxResult: cfg.Service.AuxResult,
		}, &http.Client{}, sink, log),
		localexec.New(localexec.Config{
			Executable:  cfg.Local.Executable,
			Args:        cfg.Local.Args,
			WorkDir:     cfg.Local.WorkDir,
			ControlFile: cfg.Local.ControlFile,
			ParFile:     cfg.Local.ParFile,
			ClimateFile: cfg.Local.ClimateFile,
			OutputFile:  cfg.Local.OutputFile,
		}, sink, log),
	}
}
