// Package pipeline drives the MSA batch: splitting FASTA inputs, running the
// alignment generator per record, converting alignments to .pqt tables and
// rendering the prediction driver. Everything runs sequentially.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Shirosaru/Chai-pipeline/tools/chai_script"
	"github.com/Shirosaru/Chai-pipeline/tools/fasta_split"
	"github.com/Shirosaru/Chai-pipeline/tools/invoker"
	"github.com/Shirosaru/Chai-pipeline/tools/layout"
	"github.com/Shirosaru/Chai-pipeline/tools/msa_report"
	"github.com/Shirosaru/Chai-pipeline/tools/relocate"
	common "github.com/Shirosaru/Chai-pipeline/utils"
)

// Mode selects which stages a run performs.
type Mode string

const (
	ModeAlign   Mode = "align"
	ModeConvert Mode = "convert"
	ModeFull    Mode = "run"
)

// Options configures a run. InputDir is always explicit; the process
// working directory is never scanned implicitly.
type Options struct {
	InputDir    string
	Mode        Mode
	TGT         invoker.TGTConfig
	Converter   invoker.ConverterConfig
	Interpreter invoker.Interpreter

	// Predict executes the rendered driver with Interpreter.
	Predict bool

	// DryRun leaves alignment files in place and skips prediction.
	// Commands are still handed to the Runner.
	DryRun bool

	// Report writes report.json and msa_depth.svg per input.
	Report bool
	RunID  string
}

// Pipeline runs one batch. Concurrent runs over the same directory are
// unsafe.
type Pipeline struct {
	Opts   Options
	Runner invoker.Runner
	Logger *log.Logger
}

func New(opts Options, runner invoker.Runner, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{Opts: opts, Runner: runner, Logger: logger}
}

// Run executes the stages selected by Opts.Mode. The returned Result is
// filled as far as the run got, also when an error is returned.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{Mode: p.Opts.Mode}

	info, err := os.Stat(p.Opts.InputDir)
	if err != nil {
		return res, &common.FileAccessError{Op: "stat", Path: p.Opts.InputDir, Err: err}
	}
	if !info.IsDir() {
		return res, &common.FileAccessError{Op: "stat", Path: p.Opts.InputDir, Err: fmt.Errorf("not a directory")}
	}

	switch p.Opts.Mode {
	case ModeAlign:
		res.Aligned, err = p.alignDir(ctx, p.Opts.InputDir)
		return res, err
	case ModeConvert:
		cr, err := p.convertDir(ctx, p.Opts.InputDir)
		if cr != nil {
			res.Converted = append(res.Converted, *cr)
		}
		return res, err
	case ModeFull:
		res.Aligned, err = p.alignDir(ctx, p.Opts.InputDir)
		if err != nil {
			return res, err
		}
		for _, a := range res.Aligned {
			cr, err := p.convertDir(ctx, a.FinalDir)
			if cr != nil {
				res.Converted = append(res.Converted, *cr)
			}
			if err != nil {
				return res, err
			}
		}
		return res, nil
	default:
		return res, fmt.Errorf("unknown mode %q", p.Opts.Mode)
	}
}

// alignDir runs the alignment stage over every .fasta file in dir.
func (p *Pipeline) alignDir(ctx context.Context, dir string) ([]AlignResult, error) {
	fastas, err := common.ListByExt(dir, ".fasta")
	if err != nil {
		return nil, err
	}
	if len(fastas) == 0 {
		p.Logger.Warn("no .fasta files found", "dir", dir)
	}

	var results []AlignResult
	for _, src := range fastas {
		ar, err := p.alignFile(ctx, layout.New(dir), src)
		results = append(results, ar)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (p *Pipeline) alignFile(ctx context.Context, l layout.Layout, src string) (AlignResult, error) {
	base := layout.Stem(src)
	ar := AlignResult{Source: src}

	var err error
	if ar.FinalDir, err = l.FinalDir(base); err != nil {
		return ar, err
	}
	if ar.SplitDir, err = l.SplitDir(base); err != nil {
		return ar, err
	}

	records, err := fasta_split.Split(src, ar.SplitDir)
	if err != nil {
		return ar, err
	}
	p.Logger.Info("split input", "fasta", src, "records", len(records), "dir", ar.SplitDir)
	if len(records) == 0 {
		p.Logger.Warn("input has no FASTA records", "fasta", src)
	}

	for _, rec := range records {
		sr := SequenceResult{Name: layout.Stem(rec), FastaPath: rec}
		if sr.OutputDir, err = l.SequenceDir(ar.FinalDir, sr.Name); err != nil {
			return ar, err
		}

		sr.Err = p.Opts.TGT.Generate(ctx, p.Runner, rec, sr.OutputDir)
		if sr.Err != nil {
			if ctx.Err() != nil {
				return ar, ctx.Err()
			}
			p.Logger.Error("alignment failed, continuing with next sequence", "fasta", rec, "err", sr.Err)
		} else {
			p.Logger.Info("alignment finished", "fasta", rec, "dir", sr.OutputDir)
		}
		ar.Sequences = append(ar.Sequences, sr)
	}

	collectFrom := []string{ar.SplitDir}
	for _, sr := range ar.Sequences {
		if sr.Err == nil {
			collectFrom = append(collectFrom, sr.OutputDir)
		}
	}
	// A full run leaves the canonical copy in each sequence dir; it is
	// never an alignment of its own.
	collector := relocate.NewCollector(ar.FinalDir, layout.CanonicalA3M)
	for _, from := range collectFrom {
		copied, err := collector.Collect(from, ".a3m")
		if err != nil {
			return ar, err
		}
		ar.A3MFiles = append(ar.A3MFiles, copied...)
	}
	if _, err := relocate.CopyFile(src, ar.FinalDir); err != nil {
		return ar, err
	}
	p.Logger.Info("collected alignments", "fasta", src, "a3m", len(ar.A3MFiles), "failed", ar.Failed(), "dir", ar.FinalDir)

	if p.Opts.Report {
		p.writeAlignReport(ar)
	}
	return ar, nil
}

// convertDir runs the conversion stage on a directory holding exactly one
// .fasta file and at least one .a3m file.
func (p *Pipeline) convertDir(ctx context.Context, dir string) (*ConvertResult, error) {
	fastas, err := common.ListByExt(dir, ".fasta")
	if err != nil {
		return nil, err
	}
	a3ms, err := common.ListByExt(dir, ".a3m")
	if err != nil {
		return nil, err
	}
	switch {
	case len(fastas) == 0:
		return nil, &common.MissingInputError{Dir: dir, Ext: ".fasta"}
	case len(fastas) > 1:
		return nil, &common.MissingInputError{Dir: dir, Ext: ".fasta", Reason: fmt.Sprintf("%d FASTA files, expected exactly one", len(fastas))}
	case len(a3ms) == 0:
		return nil, &common.MissingInputError{Dir: dir, Ext: ".a3m"}
	}

	l := layout.New(dir)
	cr := &ConvertResult{Dir: dir, Fasta: fastas[0]}
	p.Logger.Info("converting alignments", "dir", dir, "a3m", len(a3ms), "fasta", cr.Fasta)

	for _, a3m := range a3ms {
		mr, err := p.convertOne(ctx, l, a3m, cr)
		cr.MSAs = append(cr.MSAs, mr)
		if err != nil {
			return cr, err
		}
	}

	if err := p.writeDriver(cr); err != nil {
		return cr, err
	}

	if p.Opts.Predict {
		if p.Opts.DryRun {
			p.Logger.Info("dry-run: skipping prediction", "script", cr.Script)
		} else if err := p.Opts.Interpreter.Predict(ctx, p.Runner, cr.Script); err != nil {
			return cr, &StageError{Stage: "predict", Path: cr.Script, Err: err}
		} else {
			cr.Predicted = true
			p.Logger.Info("prediction completed", "output", cr.OutputDir)
		}
	}

	if p.Opts.Report {
		p.writeConvertReport(cr)
	}
	return cr, nil
}

// convertOne converts a single alignment. The output directory is created
// after the first successful conversion.
func (p *Pipeline) convertOne(ctx context.Context, l layout.Layout, a3m string, cr *ConvertResult) (MSAResult, error) {
	mr := MSAResult{Source: a3m}
	stem := layout.Stem(a3m)

	var err error
	if mr.WorkDir, err = l.WorkDir(stem); err != nil {
		return mr, err
	}
	if depth, err := common.CountRecords(a3m); err == nil {
		mr.Depth = depth
	} else {
		p.Logger.Warn("could not count alignment depth", "a3m", a3m, "err", err)
	}

	if p.Opts.DryRun {
		p.Logger.Info("dry-run: would move alignment", "a3m", a3m, "dest", filepath.Join(mr.WorkDir, layout.CanonicalA3M))
	} else if _, err := relocate.MoveInto(a3m, mr.WorkDir, layout.CanonicalA3M); err != nil {
		return mr, err
	}

	if err := p.Opts.Converter.Convert(ctx, p.Runner, mr.WorkDir); err != nil {
		p.Logger.Error("conversion failed, aborting batch", "dir", mr.WorkDir, "err", err)
		return mr, err
	}

	if cr.OutputDir == "" {
		if cr.OutputDir, err = l.OutputDir(layout.Stem(cr.Fasta)); err != nil {
			return mr, err
		}
	}
	if mr.Tables, err = relocate.CopyMatching(mr.WorkDir, cr.OutputDir, ".pqt"); err != nil {
		return mr, err
	}
	p.Logger.Info("collected tables", "a3m", a3m, "pqt", len(mr.Tables), "dir", cr.OutputDir)
	return mr, nil
}

// writeDriver renders the prediction driver for cr's FASTA into its
// output directory.
func (p *Pipeline) writeDriver(cr *ConvertResult) error {
	data, err := os.ReadFile(cr.Fasta)
	if err != nil {
		return &StageError{Stage: "driver", Path: cr.Fasta, Err: &common.FileAccessError{Op: "read", Path: cr.Fasta, Err: err}}
	}
	script := filepath.Join(cr.OutputDir, chai_script.ScriptName)
	if err := chai_script.Write(script, chai_script.RewriteHeaders(string(data))); err != nil {
		return &StageError{Stage: "driver", Path: script, Err: err}
	}
	cr.Script = script
	p.Logger.Info("wrote prediction driver", "script", script)
	return nil
}

func (p *Pipeline) writeAlignReport(ar AlignResult) {
	r := msa_report.New(p.Opts.RunID, string(ModeAlign), ar.Source)
	for _, sr := range ar.Sequences {
		length := 0
		if lengths, err := msa_report.SequenceLengths(sr.FastaPath); err == nil && len(lengths) > 0 {
			length = lengths[0]
		}
		depth := 0
		if sr.Err == nil {
			depth = p.depthIn(sr.OutputDir)
		}
		r.Add(sr.Name, length, depth, sr.Err)
	}
	r.Finish()
	if err := r.Write(ar.FinalDir); err != nil {
		p.Logger.Warn("could not write report", "dir", ar.FinalDir, "err", err)
	}
}

func (p *Pipeline) writeConvertReport(cr *ConvertResult) {
	r := msa_report.New(p.Opts.RunID, string(ModeConvert), cr.Fasta)
	for _, mr := range cr.MSAs {
		r.Add(layout.Stem(mr.Source), 0, mr.Depth, nil)
	}
	r.Finish()
	if err := r.Write(cr.OutputDir); err != nil {
		p.Logger.Warn("could not write report", "dir", cr.OutputDir, "err", err)
	}
}

// depthIn returns the record count of the first .a3m file under dir.
func (p *Pipeline) depthIn(dir string) int {
	depth := 0
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".a3m") {
			return nil
		}
		n, cerr := common.CountRecords(path)
		if cerr != nil {
			p.Logger.Debug("could not count alignment depth", "a3m", path, "err", cerr)
			return nil
		}
		depth = n
		return fs.SkipAll
	})
	return depth
}
