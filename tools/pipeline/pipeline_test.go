package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/Shirosaru/Chai-pipeline/tools/chai_script"
	"github.com/Shirosaru/Chai-pipeline/tools/invoker"
	"github.com/Shirosaru/Chai-pipeline/tools/layout"
	"github.com/Shirosaru/Chai-pipeline/tools/msa_report"
	common "github.com/Shirosaru/Chai-pipeline/utils"
)

// fakeTools stands in for the alignment generator, the converter and the
// interpreter. It writes the files the real tools would produce.
type fakeTools struct {
	failAlign   map[string]bool
	failConvert map[string]bool
	calls       []string
}

func (f *fakeTools) Run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	switch name {
	case "tgt":
		flags := map[string]string{}
		for i := 0; i+1 < len(args); i += 2 {
			flags[args[i]] = args[i+1]
		}
		stem := layout.Stem(flags["-i"])
		if f.failAlign[stem] {
			return &common.ExternalToolError{Tool: name, Args: args, ExitCode: 1, Err: errors.New("exit status 1")}
		}
		return os.WriteFile(filepath.Join(flags["-o"], stem+".a3m"), []byte(">"+stem+"\nMKV\n>hit1\nMKI\n>hit2\nMRV\n"), 0o644)
	case "chai-lab":
		dir := args[1]
		if f.failConvert[filepath.Base(dir)] {
			return &common.ExternalToolError{Tool: name, Args: args, ExitCode: 2, Err: errors.New("exit status 2")}
		}
		if _, err := os.Stat(filepath.Join(dir, layout.CanonicalA3M)); err != nil {
			return &common.ExternalToolError{Tool: name, Args: args, ExitCode: 1, Err: err}
		}
		return os.WriteFile(filepath.Join(dir, filepath.Base(dir)+".aligned.pqt"), []byte("PAR1"), 0o644)
	case "python":
		return nil
	}
	return &common.ExternalToolError{Tool: name, Args: args, ExitCode: 127, Err: errors.New("not found")}
}

func (f *fakeTools) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func newTestPipeline(dir string, mode Mode, tools *fakeTools) *Pipeline {
	tgt := invoker.TGTDefault
	tgt.Exec = "tgt"
	return New(Options{
		InputDir:    dir,
		Mode:        mode,
		TGT:         tgt,
		Converter:   invoker.ConverterDefault,
		Interpreter: invoker.InterpreterDefault,
	}, tools, log.New(io.Discard))
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestAlignContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "batch.fasta"), ">seq1\nMKVL\n>seq2\nQVQL\n>seq3\nDILL\n")

	tools := &fakeTools{failAlign: map[string]bool{"seq2": true}}
	p := newTestPipeline(dir, ModeAlign, tools)
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tools.count("tgt") != 3 {
		t.Fatalf("expected 3 generator calls, got %d", tools.count("tgt"))
	}
	if res.Failed() != 1 || !res.Partial() {
		t.Fatalf("expected one failed record, got %d", res.Failed())
	}

	final := filepath.Join(dir, "batch_final_output")
	for _, name := range []string{"seq1", "seq3"} {
		if !exists(filepath.Join(final, name, name+".a3m")) {
			t.Errorf("missing alignment output for %s", name)
		}
		if !exists(filepath.Join(final, name+".a3m")) {
			t.Errorf("alignment for %s not collected into final dir", name)
		}
	}
	if exists(filepath.Join(final, "seq2", "seq2.a3m")) || exists(filepath.Join(final, "seq2.a3m")) {
		t.Error("failed sequence must not produce an alignment")
	}
	if !exists(filepath.Join(final, "batch.fasta")) {
		t.Error("original FASTA not copied into final dir")
	}
	for _, name := range []string{"seq1", "seq2", "seq3"} {
		if !exists(filepath.Join(dir, "batch_out", name+".fasta")) {
			t.Errorf("split file for %s missing", name)
		}
	}
}

func TestAlignArgs(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "one.fasta"), ">chain A/1\nMK\n")

	tools := &fakeTools{}
	if _, err := newTestPipeline(dir, ModeAlign, tools).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := "tgt -c 12 -i " + filepath.Join(dir, "one_out", "chain_A_1.fasta") +
		" -o " + filepath.Join(dir, "one_final_output", "chain_A_1") +
		" -h jackhmm -d uniref90 -n 3"
	if tools.calls[0] != want {
		t.Fatalf("call = %q\nwant  %q", tools.calls[0], want)
	}
}

func TestAlignEmptyDirectory(t *testing.T) {
	res, err := newTestPipeline(t.TempDir(), ModeAlign, &fakeTools{}).Run(context.Background())
	if err != nil {
		t.Fatalf("empty input dir should not fail: %v", err)
	}
	if len(res.Aligned) != 0 {
		t.Fatalf("expected no results, got %d", len(res.Aligned))
	}
}

func TestRunMissingInputDir(t *testing.T) {
	_, err := newTestPipeline(filepath.Join(t.TempDir(), "gone"), ModeAlign, &fakeTools{}).Run(context.Background())
	var fae *common.FileAccessError
	if !errors.As(err, &fae) {
		t.Fatalf("expected FileAccessError, got %v", err)
	}
}

func TestConvertMissingInputs(t *testing.T) {
	cases := []struct {
		name  string
		files []string
		ext   string
	}{
		{"no a3m", []string{"x.fasta"}, ".a3m"},
		{"no fasta", []string{"x.a3m"}, ".fasta"},
		{"two fasta", []string{"x.fasta", "y.fasta", "x.a3m"}, ".fasta"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range c.files {
				write(t, filepath.Join(dir, f), ">x\nMK\n")
			}
			tools := &fakeTools{}
			_, err := newTestPipeline(dir, ModeConvert, tools).Run(context.Background())
			var mie *common.MissingInputError
			if !errors.As(err, &mie) || mie.Ext != c.ext {
				t.Fatalf("expected MissingInputError for %s, got %v", c.ext, err)
			}
			if len(tools.calls) != 0 {
				t.Fatalf("no subprocess may run before inputs are validated, got %v", tools.calls)
			}
		})
	}
}

func TestConvertProducesTablesAndDriver(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "antibody.fasta"), ">heavy\nQVQL\n>light\nDILL\n")
	write(t, filepath.Join(dir, "heavy.a3m"), ">heavy\nQVQL\n>h1\nQVQI\n")
	write(t, filepath.Join(dir, "light.a3m"), ">light\nDILL\n")

	tools := &fakeTools{}
	p := newTestPipeline(dir, ModeConvert, tools)
	p.Opts.Report = true
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, stem := range []string{"heavy", "light"} {
		if !exists(filepath.Join(dir, stem, layout.CanonicalA3M)) {
			t.Errorf("%s not moved into its work dir", stem)
		}
		if exists(filepath.Join(dir, stem+".a3m")) {
			t.Errorf("%s.a3m should have been moved", stem)
		}
	}
	out := filepath.Join(dir, "antibody_output")
	for _, f := range []string{"heavy.aligned.pqt", "light.aligned.pqt", chai_script.ScriptName, msa_report.ReportName} {
		if !exists(filepath.Join(out, f)) {
			t.Errorf("output dir missing %s", f)
		}
	}
	if !exists(filepath.Join(dir, "heavy", "heavy.aligned.pqt")) {
		t.Error("tables must be copied, not moved, out of the work dir")
	}

	script, _ := os.ReadFile(filepath.Join(out, chai_script.ScriptName))
	if !strings.Contains(string(script), ">protein|name=heavy\nQVQL\n>protein|name=light\nDILL'''") {
		t.Fatalf("driver does not embed the rewritten FASTA:\n%s", script)
	}

	cr := res.Converted[0]
	if len(cr.MSAs) != 2 || cr.MSAs[0].Depth != 2 || cr.MSAs[1].Depth != 1 {
		t.Fatalf("unexpected MSA results %+v", cr.MSAs)
	}
	if cr.Predicted {
		t.Fatal("prediction must not run unless requested")
	}
}

func TestConvertFailureAbortsBatch(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "ab.fasta"), ">a\nMK\n>b\nMV\n")
	write(t, filepath.Join(dir, "a.a3m"), ">a\nMK\n")
	write(t, filepath.Join(dir, "b.a3m"), ">b\nMV\n")

	tools := &fakeTools{failConvert: map[string]bool{"a": true}}
	_, err := newTestPipeline(dir, ModeConvert, tools).Run(context.Background())

	var convErr *common.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if tools.count("chai-lab") != 1 {
		t.Fatalf("conversion must stop after the first failure, calls: %v", tools.calls)
	}
	if !exists(filepath.Join(dir, "b.a3m")) {
		t.Fatal("later alignment files must be left untouched")
	}
	if exists(filepath.Join(dir, "ab_output")) {
		t.Fatal("output dir must not be created when the first conversion fails")
	}
}

func TestConvertPredict(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "x.fasta"), ">x\nMK\n")
	write(t, filepath.Join(dir, "x.a3m"), ">x\nMK\n")

	tools := &fakeTools{}
	p := newTestPipeline(dir, ModeConvert, tools)
	p.Opts.Predict = true
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := "python " + filepath.Join(dir, "x_output", chai_script.ScriptName)
	if tools.calls[len(tools.calls)-1] != want || !res.Converted[0].Predicted {
		t.Fatalf("prediction not run as expected: %v", tools.calls)
	}

	p.Opts.Interpreter = invoker.Interpreter{"missing-python"}
	write(t, filepath.Join(dir, "x.a3m"), ">x\nMK\n")
	_, err = p.Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "predict" {
		t.Fatalf("expected predict StageError, got %v", err)
	}
}

func TestDryRunLeavesAlignments(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "x.fasta"), ">x\nMK\n")
	write(t, filepath.Join(dir, "x.a3m"), ">x\nMK\n")

	p := New(Options{
		InputDir:    dir,
		Mode:        ModeConvert,
		Converter:   invoker.ConverterDefault,
		Interpreter: invoker.InterpreterDefault,
		Predict:     true,
		DryRun:      true,
	}, invoker.DryRunner{Logger: log.New(io.Discard)}, log.New(io.Discard))
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !exists(filepath.Join(dir, "x.a3m")) {
		t.Fatal("dry run must not move alignment files")
	}
}

func TestFullRun(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "pair.fasta"), ">h\nQVQL\n>l\nDILL\n")

	tools := &fakeTools{}
	p := newTestPipeline(dir, ModeFull, tools)
	p.Opts.Report = true
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Aligned) != 1 || len(res.Converted) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	final := filepath.Join(dir, "pair_final_output")
	out := filepath.Join(final, "pair_output")
	for _, f := range []string{"h.aligned.pqt", "l.aligned.pqt", chai_script.ScriptName} {
		if !exists(filepath.Join(out, f)) {
			t.Errorf("missing %s in %s", f, out)
		}
	}
	if !exists(filepath.Join(final, msa_report.ReportName)) {
		t.Error("alignment report not written")
	}
}

func TestFullRunTwiceConvertsSameAlignments(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "pair.fasta"), ">h\nQVQL\n>l\nDILL\n")

	for i := 0; i < 2; i++ {
		res, err := newTestPipeline(dir, ModeFull, &fakeTools{}).Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		var got []string
		for _, mr := range res.Converted[0].MSAs {
			got = append(got, filepath.Base(mr.Source))
		}
		if strings.Join(got, " ") != "h.a3m l.a3m" {
			t.Fatalf("run %d converted %v", i, got)
		}
	}
	final := filepath.Join(dir, "pair_final_output")
	if exists(filepath.Join(final, "uniref90")) || exists(filepath.Join(final, "pair_output", "uniref90.aligned.pqt")) {
		t.Fatal("canonical alignment from the first run was converted again")
	}
}

func TestFullRunAllAlignmentsFail(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "solo.fasta"), ">s\nMK\n")

	tools := &fakeTools{failAlign: map[string]bool{"s": true}}
	res, err := newTestPipeline(dir, ModeFull, tools).Run(context.Background())
	var mie *common.MissingInputError
	if !errors.As(err, &mie) {
		t.Fatalf("expected MissingInputError, got %v", err)
	}
	if res.Failed() != 1 {
		t.Fatalf("alignment failures must still be reported, got %d", res.Failed())
	}
}
