// Package msa_report summarizes a pipeline run: which sequences produced
// alignments, how deep each MSA is, and length statistics of the inputs.
// The summary is written as report.json plus an SVG chart of MSA depth.
package msa_report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	common "github.com/Shirosaru/Chai-pipeline/utils"
)

const (
	ReportName = "report.json"
	PlotName   = "msa_depth.svg"
)

// Entry statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Entry is one sequence (alignment stage) or one MSA (conversion stage).
type Entry struct {
	Name     string `json:"name"`
	Length   int    `json:"length,omitempty"`
	MSADepth int    `json:"msa_depth"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Stats holds summary statistics over a set of values.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Report is the persisted summary of one stage over one input.
type Report struct {
	RunID    string    `json:"run_id"`
	Mode     string    `json:"mode"`
	Input    string    `json:"input"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Entries  []Entry   `json:"entries"`
	Lengths  Stats     `json:"lengths"`
	Depths   Stats     `json:"msa_depths"`
	Failed   int       `json:"failed"`
}

// New starts a report for mode over input, stamped with a fresh run id.
func New(runID, mode, input string) *Report {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Report{RunID: runID, Mode: mode, Input: input, Started: time.Now()}
}

// Add appends an entry; a non-nil err marks it failed.
func (r *Report) Add(name string, length, depth int, err error) {
	e := Entry{Name: name, Length: length, MSADepth: depth, Status: StatusOK}
	if err != nil {
		e.Status = StatusFailed
		e.Error = err.Error()
		r.Failed++
	}
	r.Entries = append(r.Entries, e)
}

// Finish computes the statistics and stamps the end time.
func (r *Report) Finish() {
	r.Finished = time.Now()
	var lengths, depths []float64
	for _, e := range r.Entries {
		if e.Length > 0 {
			lengths = append(lengths, float64(e.Length))
		}
		if e.Status == StatusOK {
			depths = append(depths, float64(e.MSADepth))
		}
	}
	r.Lengths = Summarize(lengths)
	r.Depths = Summarize(depths)
}

// Write stores report.json and, when there is something to draw,
// msa_depth.svg in dir.
func (r *Report) Write(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	path := filepath.Join(dir, ReportName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &common.FileAccessError{Op: "write", Path: path, Err: err}
	}

	if len(r.Entries) == 0 {
		return nil
	}
	svg, err := DepthPlotSVG(r.Entries)
	if err != nil {
		return fmt.Errorf("plotting msa depth: %w", err)
	}
	path = filepath.Join(dir, PlotName)
	if err := os.WriteFile(path, svg, 0o644); err != nil {
		return &common.FileAccessError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Summarize returns count, mean, standard deviation, median and range.
// Fewer than two values give a zero standard deviation.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := Stats{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// SequenceLengths reads a FASTA file and returns the residue count of each
// record in file order.
func SequenceLengths(path string) ([]int, error) {
	in, err := common.OpenFasta(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return readLengths(in)
}

func readLengths(r io.Reader) ([]int, error) {
	sc := seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.Protein)))
	var lengths []int
	for sc.Next() {
		lengths = append(lengths, sc.Seq().Len())
	}
	if err := sc.Error(); err != nil {
		return lengths, fmt.Errorf("reading sequences: %w", err)
	}
	return lengths, nil
}

// DepthPlotSVG draws one bar per successful entry with its MSA depth.
func DepthPlotSVG(entries []Entry) ([]byte, error) {
	var names []string
	var depths plotter.Values
	for _, e := range entries {
		if e.Status != StatusOK {
			continue
		}
		names = append(names, e.Name)
		depths = append(depths, float64(e.MSADepth))
	}
	if len(depths) == 0 {
		names = []string{"none"}
		depths = plotter.Values{0}
	}

	p := plot.New()
	p.Title.Text = "MSA Depth per Sequence"
	p.Y.Label.Text = "Aligned Sequences"

	bars, err := plotter.NewBarChart(depths, vg.Points(20))
	if err != nil {
		return nil, err
	}
	bars.Color = color.RGBA{R: 50, G: 100, B: 200, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)

	width := vg.Length(len(names))*vg.Centimeter + 4*vg.Inch
	writer, err := p.WriterTo(width, 4*vg.Inch, "svg")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
