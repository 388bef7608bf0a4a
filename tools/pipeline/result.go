package pipeline

import "fmt"

// SequenceResult is the outcome of aligning one split record.
type SequenceResult struct {
	Name      string
	FastaPath string
	OutputDir string
	Err       error
}

// AlignResult covers one input FASTA in the alignment stage.
type AlignResult struct {
	Source    string
	SplitDir  string
	FinalDir  string
	Sequences []SequenceResult
	A3MFiles  []string
}

// Failed counts the records whose alignment failed.
func (a AlignResult) Failed() int {
	n := 0
	for _, s := range a.Sequences {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// MSAResult is one converted alignment.
type MSAResult struct {
	Source  string
	WorkDir string
	Tables  []string
	Depth   int
}

// ConvertResult covers one directory in the conversion stage.
type ConvertResult struct {
	Dir       string
	Fasta     string
	OutputDir string
	MSAs      []MSAResult
	Script    string
	Predicted bool
}

// Result is everything a run produced. A run that returns a nil error can
// still be partial: some records may have failed alignment.
type Result struct {
	Mode      Mode
	Aligned   []AlignResult
	Converted []ConvertResult
}

// Failed counts failed records across all inputs.
func (r *Result) Failed() int {
	n := 0
	for _, a := range r.Aligned {
		n += a.Failed()
	}
	return n
}

// Partial reports whether some, but not necessarily all, work failed.
func (r *Result) Partial() bool {
	return r.Failed() > 0
}

// StageError reports a failure after conversion: reading the FASTA,
// writing the driver or running the prediction.
type StageError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
