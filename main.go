package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Shirosaru/Chai-pipeline/benchmark"
	"github.com/Shirosaru/Chai-pipeline/config"
	"github.com/Shirosaru/Chai-pipeline/tools/chai_script"
	"github.com/Shirosaru/Chai-pipeline/tools/fasta_split"
	"github.com/Shirosaru/Chai-pipeline/tools/invoker"
	"github.com/Shirosaru/Chai-pipeline/tools/pipeline"
	"github.com/Shirosaru/Chai-pipeline/tools/sanity_check"
)

// Exit codes: a partial run finished but some records failed alignment.
const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

// Global flags
var (
	configPath   string
	verbose      bool
	dryRun       bool
	benchmarking bool
)

// Stage flags shared by align, convert and run
var (
	tgtExec       string
	cpus          int
	pkg           string
	database      string
	iterations    int
	converterExec string
	interpreter   []string
	predict       bool
	noReport      bool
)

var rootCmd = &cobra.Command{
	Use:   "chai_pipeline",
	Short: "Batch MSA generation and chai-lab driver preparation",
	Long: `chai_pipeline - protein MSA batch pipeline

Splits FASTA inputs per record, runs the A3M/TGT alignment generator for
each record, converts the resulting .a3m files to .pqt with chai-lab and
writes a predict_with_msas.py driver next to the converted tables.

Examples:

  # Generate alignments for every .fasta file in ./inputs
  chai_pipeline align ./inputs

  # Convert a directory holding one .fasta and its .a3m files
  chai_pipeline convert ./inputs/antibody_final_output

  # Both stages, then run the driver inside a conda environment
  chai_pipeline run ./inputs --predict --interpreter conda,run,-n,chai,python`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON config file (default "+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging and tool output on the terminal")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log external commands instead of running them")
	rootCmd.PersistentFlags().BoolVar(&benchmarking, "benchmark", false, "report time and memory usage of the command")

	for _, c := range []*cobra.Command{alignCmd, convertCmd, runCmd} {
		f := c.Flags()
		f.StringVar(&tgtExec, "tgt-exec", "", "alignment generator executable")
		f.IntVarP(&cpus, "cpus", "c", 0, "CPUs for the alignment generator")
		f.StringVar(&pkg, "package", "", "search package passed to the generator (-h)")
		f.StringVarP(&database, "database", "d", "", "sequence database passed to the generator")
		f.IntVarP(&iterations, "iterations", "n", 0, "search iterations")
		f.StringVar(&converterExec, "converter", "", "a3m-to-pqt converter executable")
		f.StringSliceVar(&interpreter, "interpreter", nil, "argv prefix that runs the prediction driver")
		f.BoolVar(&predict, "predict", false, "execute the prediction driver after conversion")
		f.BoolVar(&noReport, "no-report", false, "skip report.json and msa_depth.svg")
	}

	rootCmd.AddCommand(alignCmd, convertCmd, runCmd, splitCmd, rewriteCmd, checkCmd, versionCmd)
}

var alignCmd = &cobra.Command{
	Use:   "align [input-dir]",
	Short: "Split FASTA files and generate per-record alignments",
	Args:  cobra.MaximumNArgs(1),
	RunE:  stageRunner(pipeline.ModeAlign),
}

var convertCmd = &cobra.Command{
	Use:   "convert [input-dir]",
	Short: "Convert .a3m alignments to .pqt and write the prediction driver",
	Args:  cobra.MaximumNArgs(1),
	RunE:  stageRunner(pipeline.ModeConvert),
}

var runCmd = &cobra.Command{
	Use:   "run [input-dir]",
	Short: "Align, then convert each aggregated result",
	Args:  cobra.MaximumNArgs(1),
	RunE:  stageRunner(pipeline.ModeFull),
}

var splitCmd = &cobra.Command{
	Use:   "split <fasta> [dest-dir]",
	Short: "Split a FASTA file into one file per record",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := "."
		if len(args) == 2 {
			dest = args[1]
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}
		paths, err := fasta_split.Split(args[0], dest)
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return err
	},
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <fasta>",
	Short: "Print a FASTA file with chai-lab tagged headers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), chai_script.RewriteHeaders(string(data)))
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run diagnostic test of the external tool setup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if missing := sanity_check.Run(cmd.OutOrStdout(), cfg); missing > 0 {
			return fmt.Errorf("%d external tool(s) not found", missing)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "chai_pipeline - Version Information Menu")
		fmt.Fprintln(w, "Central Executable:")
		fmt.Fprintf(w, "\tchai_pipeline:\t\t%s\n", config.Main_version)
		fmt.Fprintf(w, "\nModular tools:\n")
		fmt.Fprintf(w, "\tFASTA Split:\t\t%s\n", config.FASTA_Split)
		fmt.Fprintf(w, "\tPipeline:\t\t%s\n", config.Pipeline)
		fmt.Fprintf(w, "\tChai Script:\t\t%s\n", config.Chai_Script)
		fmt.Fprintf(w, "\tMSA Report:\t\t%s\n", config.MSA_Report)
		fmt.Fprintf(w, "\tSanity Check:\t\t%s\n", config.Sanity_check)
		fmt.Fprintf(w, "\tBenchmark:\t\t%s\n", config.Benchmark)
	},
}

// partial is set when a stage finished with failed records.
var partial bool

func stageRunner(mode pipeline.Mode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		applyFlags(cmd, cfg)
		if len(args) == 1 {
			cfg.InputDir = args[0]
		}

		logger, closeLog := newLogger(cfg)
		defer closeLog()
		log.SetDefault(logger)

		runID := uuid.NewString()
		logger.Info("starting chai_pipeline", "mode", mode, "input_dir", cfg.InputDir, "run_id", runID, "dry_run", dryRun)
		logger.Debug("loaded config", "tgt_exec", cfg.TGTExec, "cpus", cfg.TGTCPUs, "package", cfg.TGTPackage,
			"database", cfg.TGTDatabase, "iterations", cfg.TGTIterations, "converter", cfg.ConverterExec,
			"interpreter", strings.Join(cfg.Interpreter, " "))

		var runner invoker.Runner = invoker.ExecRunner{Logger: logger, Verbose: verbose}
		if dryRun {
			runner = invoker.DryRunner{Logger: logger}
		}

		p := pipeline.New(pipeline.Options{
			InputDir: cfg.InputDir,
			Mode:     mode,
			TGT: invoker.TGTConfig{
				Exec:       cfg.TGTExec,
				CPUs:       cfg.TGTCPUs,
				Package:    cfg.TGTPackage,
				Database:   cfg.TGTDatabase,
				Iterations: cfg.TGTIterations,
			},
			Converter:   invoker.ConverterConfig{Exec: cfg.ConverterExec},
			Interpreter: invoker.Interpreter(cfg.Interpreter),
			Predict:     predict,
			DryRun:      dryRun,
			Report:      cfg.Report,
			RunID:       runID,
		}, runner, logger)

		var res *pipeline.Result
		run := func() error {
			var err error
			res, err = p.Run(cmd.Context())
			return err
		}
		if benchmarking {
			label := fmt.Sprintf("chai_pipeline %s %s", mode, strings.Join(args, " "))
			_, err = benchmark.Run(label, logger, run)
		} else {
			err = run()
		}
		if err != nil {
			return err
		}

		if res.Partial() {
			partial = true
			logger.Warn("run finished with failures", "failed_records", res.Failed())
		} else {
			logger.Info("run finished", "inputs", len(res.Aligned)+len(res.Converted))
		}
		return nil
	}
}

// applyFlags copies explicitly set stage flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("tgt-exec") {
		cfg.TGTExec = tgtExec
	}
	if f.Changed("cpus") {
		cfg.TGTCPUs = cpus
	}
	if f.Changed("package") {
		cfg.TGTPackage = pkg
	}
	if f.Changed("database") {
		cfg.TGTDatabase = database
	}
	if f.Changed("iterations") {
		cfg.TGTIterations = iterations
	}
	if f.Changed("converter") {
		cfg.ConverterExec = converterExec
	}
	if f.Changed("interpreter") {
		cfg.Interpreter = interpreter
	}
	if noReport {
		cfg.Report = false
	}
}

// newLogger builds the run logger: stderr, teed into log_file when set.
func newLogger(cfg *config.Config) (*log.Logger, func()) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	var fileErr error
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			out = io.MultiWriter(os.Stderr, f)
			closeFn = func() { _ = f.Close() }
		} else {
			fileErr = err
		}
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "chai_pipeline",
	})

	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			logger.SetLevel(log.DebugLevel)
		case "info", "":
			logger.SetLevel(log.InfoLevel)
		case "warn", "warning":
			logger.SetLevel(log.WarnLevel)
		case "error":
			logger.SetLevel(log.ErrorLevel)
		default:
			logger.SetLevel(log.InfoLevel)
			logger.Warn("unknown log_level in config, defaulting to info", "provided", cfg.LogLevel)
		}
	}
	if fileErr != nil {
		logger.Warn("log_file could not be opened; logging to stderr only", "path", cfg.LogFile, "err", fileErr)
	}
	return logger, closeFn
}

// Main controller
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	switch {
	case err == nil && partial:
		os.Exit(exitPartial)
	case err == nil:
		os.Exit(exitOK)
	case errors.Is(err, context.Canceled):
		log.Error("interrupted")
	default:
		log.Error("chai_pipeline failed", "err", err)
	}
	os.Exit(exitFatal)
}
