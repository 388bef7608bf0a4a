// Package chai_script prepares the FASTA block and renders the driver
// script that runs chai-lab structure prediction over the converted MSAs.
// The script is only written here; executing it is a separate step.
package chai_script

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"
	"text/template"

	common "github.com/Shirosaru/Chai-pipeline/utils"
)

// ScriptName is the file name of the rendered driver.
const ScriptName = "predict_with_msas.py"

// Prediction parameters baked into the driver.
const (
	TrunkRecycles    = 3
	DiffusionSteps   = 200
	Seed             = 42
	Device           = "cuda:0"
	UseESMEmbeddings = true
	UseMSAServer     = false
	ScoreModelIndex  = 2
	HeaderTag        = ">protein|name="
)

// RewriteHeaders rewrites every '>' line into chai-lab's tagged form,
// ">protein|name=<original>", and passes other lines through. Lines are
// joined with "\n" and the result carries no trailing newline.
func RewriteHeaders(fasta string) string {
	var lines []string
	reader := bufio.NewReader(strings.NewReader(fasta))
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			if strings.HasPrefix(line, ">") {
				line = HeaderTag + line[1:]
			}
			lines = append(lines, line)
		}
		if err != nil {
			// only io.EOF from a strings.Reader
			break
		}
	}
	return strings.Join(lines, "\n")
}

type scriptData struct {
	Fasta           string
	TrunkRecycles   int
	DiffusionSteps  int
	Seed            int
	Device          string
	UseESM          string
	UseMSAServer    string
	ScoreModelIndex int
}

var driver = template.Must(template.New(ScriptName).Parse(`
import tempfile
from pathlib import Path
import numpy as np

from chai_lab.chai1 import run_inference

tmp_dir = Path(tempfile.mkdtemp())

# Prepare input fasta
example_fasta = '''{{.Fasta}}'''

fasta_path = tmp_dir / "example.fasta"
fasta_path.write_text(example_fasta)

# Generate structure
output_dir = tmp_dir / "outputs"
candidates = run_inference(
    fasta_file=fasta_path,
    output_dir=output_dir,
    num_trunk_recycles={{.TrunkRecycles}},
    num_diffn_timesteps={{.DiffusionSteps}},
    seed={{.Seed}},
    device="{{.Device}}",
    use_esm_embeddings={{.UseESM}},
    msa_directory=Path(__file__).parent,
    use_msa_server={{.UseMSAServer}},
)
cif_paths = candidates.cif_paths
scores = [rd.aggregate_score for rd in candidates.ranking_data]

# Load pTM, ipTM, pLDDTs and clash scores for sample {{.ScoreModelIndex}}
scores = np.load(output_dir.joinpath("scores.model_idx_{{.ScoreModelIndex}}.npz"))
`))

// Render writes the driver with fasta embedded as a triple-quoted literal.
func Render(w io.Writer, fasta string) error {
	return driver.Execute(w, scriptData{
		Fasta:           escapeLiteral(fasta),
		TrunkRecycles:   TrunkRecycles,
		DiffusionSteps:  DiffusionSteps,
		Seed:            Seed,
		Device:          Device,
		UseESM:          pyBool(UseESMEmbeddings),
		UseMSAServer:    pyBool(UseMSAServer),
		ScoreModelIndex: ScoreModelIndex,
	})
}

// Write renders the driver to path.
func Write(path, fasta string) error {
	var buf bytes.Buffer
	if err := Render(&buf, fasta); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return &common.FileAccessError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// escapeLiteral keeps the FASTA text from terminating the ''' literal,
// including trailing quotes that would run into the closing delimiter.
func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
