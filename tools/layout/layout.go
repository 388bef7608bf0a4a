// Package layout owns the directory naming of a pipeline run.
// Every role method creates its directory if needed and returns the path;
// calling it again for the same role returns the same path without error.
package layout

import (
	"os"
	"path/filepath"
	"strings"

	common "github.com/Shirosaru/Chai-pipeline/utils"
	"github.com/Shirosaru/Chai-pipeline/tools/fasta_split"
)

// CanonicalA3M is the file name the converter expects inside a work dir.
const CanonicalA3M = "uniref90.a3m"

// Layout resolves stage directories beneath Root, the input directory.
type Layout struct {
	Root string
}

func New(root string) Layout {
	return Layout{Root: root}
}

// SplitDir holds the per-record FASTA files of one input: <root>/<base>_out.
func (l Layout) SplitDir(base string) (string, error) {
	return ensure(filepath.Join(l.Root, fasta_split.Sanitize(base)+"_out"))
}

// FinalDir aggregates alignment results of one input:
// <root>/<base>_final_output.
func (l Layout) FinalDir(base string) (string, error) {
	return ensure(filepath.Join(l.Root, base+"_final_output"))
}

// SequenceDir is where the alignment tool writes for a single record.
func (l Layout) SequenceDir(finalDir, sequence string) (string, error) {
	return ensure(filepath.Join(finalDir, fasta_split.Sanitize(sequence)))
}

// WorkDir is the conversion working directory of one alignment file.
func (l Layout) WorkDir(a3mStem string) (string, error) {
	return ensure(filepath.Join(l.Root, a3mStem))
}

// OutputDir aggregates converted tables and the driver script:
// <root>/<base>_output.
func (l Layout) OutputDir(base string) (string, error) {
	return ensure(filepath.Join(l.Root, base+"_output"))
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &common.FileAccessError{Op: "mkdir", Path: dir, Err: err}
	}
	return dir, nil
}
