package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"lungqct/internal/logging"
	"lungqct/internal/models"
	"lungqct/pkg/config"
	"lungqct/pkg/masks"
	"lungqct/pkg/qct"
	"lungqct/pkg/report"
	"lungqct/pkg/store"
	"lungqct/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "lungqct.yaml", "YAML configuration file")
	baseDir := flag.String("base", "", "Directory holding one sub-directory per subject")
	outputDir := flag.String("output", "", "Directory for tables and plots")
	numCores := flag.Int("cores", 0, "Number of subjects analysed in parallel (default: config or all CPUs)")
	lr := flag.Bool("lr", false, "Perform analysis on left-right lung")
	ul := flag.Bool("ul", false, "Perform analysis on upper-lower lung")
	vd := flag.Bool("vd", false, "Perform analysis on ventral-dorsal lung")
	quadrants := flag.Bool("quadrants", false, "Perform analysis on the upper/lower ventral/dorsal quadrants")
	noPlots := flag.Bool("no-plots", false, "Do not write histogram plots")
	dbPath := flag.String("db", "", "SQLite file recording the run")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fatal("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatal("Failed to load configuration: %v", err)
	}
	applyFlags(cfg, flagOverrides{
		baseDir: *baseDir, outputDir: *outputDir, numCores: *numCores,
		lr: *lr, ul: *ul, vd: *vd, quadrants: *quadrants,
		noPlots: *noPlots, dbPath: *dbPath, logLevel: *logLevel,
	})
	if err := cfg.Validate(); err != nil {
		fatal("Invalid configuration:\n%v", err)
	}

	level, err := logging.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		fatal("%v", err)
	}
	var log zerolog.Logger
	if cfg.Output.LogJSON {
		log = logging.New(os.Stderr, level)
	} else {
		log = logging.NewConsole(level)
	}

	fmt.Println("================================")
	fmt.Println("LUNG QUANTITATIVE CT FEATURE EXTRACTION")
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
	}

	fmt.Printf("\nAnalysed %d of %d subjects in %.2f seconds\n",
		summary.Analysed, summary.Subjects, summary.Elapsed.Seconds())
	fmt.Printf("- Regions written: %d\n", summary.Regions)
	fmt.Printf("- Rejected gaussian fits: %d\n", summary.RejectedFits)
	fmt.Printf("- Skipped regions: %d\n", summary.RegionFailures)
	fmt.Printf("- Aborted subjects: %d\n", summary.Aborted)
	for _, e := range summary.Errors {
		fmt.Printf("  %s: %v\n", qct.Kind(e), e)
	}
	fmt.Printf("Results saved to: %s\n", cfg.Output.Dir)

	if err != nil {
		os.Exit(1)
	}
}

type flagOverrides struct {
	baseDir, outputDir, dbPath, logLevel string
	numCores                             int
	lr, ul, vd, quadrants, noPlots       bool
}

// applyFlags overrides the configuration with explicitly set flags. Any
// region switch replaces the configured regions with bilat plus the
// requested subdivisions.
func applyFlags(cfg *config.Config, f flagOverrides) {
	if f.baseDir != "" {
		cfg.Input.BaseDir = f.baseDir
	}
	if f.outputDir != "" {
		cfg.Output.Dir = f.outputDir
	}
	if f.numCores > 0 {
		cfg.Processing.NumCores = f.numCores
	}
	if f.dbPath != "" {
		cfg.Output.Database = f.dbPath
	}
	if f.logLevel != "" {
		cfg.Output.LogLevel = f.logLevel
	}
	if f.noPlots {
		cfg.Output.Plots = false
	}

	if f.lr || f.ul || f.vd || f.quadrants {
		regions := []models.Region{models.Bilateral}
		if f.lr {
			regions = append(regions, models.Left, models.Right)
		}
		if f.ul {
			regions = append(regions, models.Upper, models.Lower)
		}
		if f.vd {
			regions = append(regions, models.Ventral, models.Dorsal)
		}
		if f.quadrants {
			regions = append(regions,
				models.UpperVentral, models.UpperDorsal, models.LowerVentral, models.LowerDorsal)
		}
		cfg.QCT.Regions = cfg.QCT.Regions[:0]
		for _, r := range regions {
			cfg.QCT.Regions = append(cfg.QCT.Regions, string(r))
		}
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) (qct.Summary, error) {
	regions, err := cfg.Regions()
	if err != nil {
		return qct.Summary{}, err
	}

	analyzer, err := qct.NewAnalyzer(qct.Options{
		Regions:        regions,
		SliceThickness: cfg.Processing.SliceThickness,
		Ventilation:    cfg.QCT.Ventilation,
		WithPlots:      cfg.Output.Plots,
		Peak:           cfg.Peak(),
	}, log)
	if err != nil {
		return qct.Summary{}, err
	}

	loader := &qct.DirLoader{
		Base: cfg.Input.BaseDir,
		Layout: qct.Layout{
			CT:          cfg.Input.CTName,
			LungMask:    cfg.Input.LungMask,
			UpperMask:   cfg.Input.UpperMask,
			VentralMask: cfg.Input.VentralMask,
			MixedMask:   cfg.Input.MixedMask,
			DICOMDir:    cfg.Input.DICOMDir,
		},
		Generate: cfg.Input.GenerateMasks,
		Write:    cfg.Input.WriteMasks,
		Orientation: masks.Options{
			UpperAtLowZ:    cfg.Input.UpperAtLowZ,
			VentralAtHighY: cfg.Input.VentralAtHighY,
		},
		Needed: analyzer.RequiredMasks(),
		Log:    logging.Component(log, "loader"),
	}

	ids := cfg.Input.Subjects
	if len(ids) == 0 {
		if ids, err = loader.Subjects(); err != nil {
			return qct.Summary{}, err
		}
	}
	log.Info().Int("subjects", len(ids)).Str("base", cfg.Input.BaseDir).
		Strs("regions", cfg.QCT.Regions).Msg("starting analysis")

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return qct.Summary{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	table, err := report.CreateTable(filepath.Join(cfg.Output.Dir, cfg.Output.Table), cfg.QCT.Ventilation)
	if err != nil {
		return qct.Summary{}, err
	}
	defer table.Close()

	wide, err := report.CreateWide(filepath.Join(cfg.Output.Dir, cfg.Output.Wide), regions, cfg.QCT.Ventilation)
	if err != nil {
		return qct.Summary{}, err
	}
	defer wide.Close()

	sinks := []qct.Sink{table, wide, &visualization.Renderer{
		Dir:        cfg.Output.Dir,
		Histograms: cfg.Output.Plots,
		Previews:   cfg.Output.Previews,
		Log:        logging.Component(log, "renderer"),
	}}

	var db *store.Store
	if cfg.Output.Database != "" {
		if db, err = store.Open(cfg.Output.Database, log); err != nil {
			return qct.Summary{}, err
		}
		defer db.Close()

		snapshot, err := yaml.Marshal(cfg)
		if err != nil {
			return qct.Summary{}, fmt.Errorf("error marshaling config: %w", err)
		}
		id, err := db.BeginRun(ctx, string(snapshot))
		if err != nil {
			return qct.Summary{}, err
		}
		log.Info().Str("run", id).Str("database", cfg.Output.Database).Msg("recording run")
		sinks = append(sinks, db)
	}

	runner := qct.NewRunner(analyzer, loader, cfg.Processing.NumCores, log, sinks...)
	summary, runErr := runner.Run(ctx, ids)

	if db != nil {
		// the run context may be cancelled, the totals are still recorded
		if err := db.FinishRun(context.Background(), summary); err != nil && runErr == nil {
			runErr = err
		}
	}
	return summary, runErr
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
