package invoker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	common "github.com/Shirosaru/Chai-pipeline/utils"
)

// Flag is one command line option and its value.
type Flag struct {
	Name  string
	Value string
}

// Flags is an ordered option list; order is kept when rendered into argv.
type Flags []Flag

// Args renders the flags as "name value" pairs.
func (f Flags) Args() []string {
	args := make([]string, 0, 2*len(f))
	for _, fl := range f {
		args = append(args, fl.Name, fl.Value)
	}
	return args
}

// TGTConfig describes a call to the A3M/TGT alignment generator.
type TGTConfig struct {
	Exec       string
	CPUs       int
	Package    string
	Database   string
	Iterations int
}

var TGTDefault = TGTConfig{
	Exec:       "/home2/TGT_Package/A3M_TGT_Gen.sh",
	CPUs:       12,
	Package:    "jackhmm",
	Database:   "uniref90",
	Iterations: 3,
}

// Flags builds the generator options for one single-record FASTA file.
func (conf TGTConfig) Flags(input, outDir string) Flags {
	return Flags{
		{"-c", strconv.Itoa(conf.CPUs)},
		{"-i", input},
		{"-o", outDir},
		{"-h", conf.Package},
		{"-d", conf.Database},
		{"-n", strconv.Itoa(conf.Iterations)},
	}
}

// Generate runs the alignment generator for input, writing into outDir.
// The caller decides whether a failure stops the batch.
func (conf TGTConfig) Generate(ctx context.Context, r Runner, input, outDir string) error {
	return r.Run(ctx, conf.Exec, conf.Flags(input, outDir).Args()...)
}

// ConverterConfig describes the a3m-to-pqt converter.
type ConverterConfig struct {
	Exec string
}

var ConverterDefault = ConverterConfig{Exec: "chai-lab"}

func (conf ConverterConfig) Args(dir string) []string {
	return []string{"a3m-to-pqt", dir}
}

// Convert turns the uniref90.a3m inside dir into .pqt tables in dir.
// Any failure is returned as *common.ConversionError.
func (conf ConverterConfig) Convert(ctx context.Context, r Runner, dir string) error {
	if err := r.Run(ctx, conf.Exec, conf.Args(dir)...); err != nil {
		return &common.ConversionError{Dir: dir, Err: err}
	}
	return nil
}

// Interpreter is the argv prefix that executes the generated driver, e.g.
// ["conda", "run", "-n", "chai", "python"]. It selects the runtime
// explicitly instead of relying on a shell activation step.
type Interpreter []string

var InterpreterDefault = Interpreter{"python"}

// Predict executes script with the interpreter.
func (in Interpreter) Predict(ctx context.Context, r Runner, script string) error {
	if len(in) == 0 {
		return errors.New("no interpreter configured")
	}
	args := append(append([]string{}, in[1:]...), script)
	if err := r.Run(ctx, in[0], args...); err != nil {
		return fmt.Errorf("running prediction driver %s: %w", script, err)
	}
	return nil
}
