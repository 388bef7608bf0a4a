// Package fasta_split splits multi-record FASTA files into one file per
// record. Sequence lines are copied verbatim: no re-wrapping, no case change.
package fasta_split

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	common "github.com/Shirosaru/Chai-pipeline/utils"
)

// Record is a single FASTA entry.
// ID is the header text after '>' and Body holds the sequence lines exactly
// as read, line terminators included.
type Record struct {
	ID   string
	Body []string
}

// Sanitize turns a record ID into a file and directory safe name.
func Sanitize(id string) string {
	return strings.NewReplacer(" ", "_", "/", "_").Replace(id)
}

// Parse reads FASTA records from r in order of appearance.
// Lines before the first header are dropped, as are records whose header is
// empty. Input without any header yields no records and no error.
func Parse(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)

	var records []Record
	var current *Record

	flush := func() {
		if current != nil && current.ID != "" {
			records = append(records, *current)
		}
		current = nil
	}

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if strings.HasPrefix(line, ">") {
				flush()
				id := strings.TrimLeft(strings.TrimSpace(line), ">")
				current = &Record{ID: id}
			} else if current != nil {
				current.Body = append(current.Body, line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading FASTA: %w", err)
		}
	}
	flush()

	return records, nil
}

// Split writes every record of the FASTA file at src into its own
// <sanitized-id>.fasta file inside destDir and returns the written paths in
// source order.
//
// When two records sanitize to the same name within one file, the later one
// is written as <name>_2.fasta, <name>_3.fasta and so on. Files already
// written are left in place when a later write fails.
func Split(src, destDir string) ([]string, error) {
	in, err := common.OpenFasta(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	records, err := Parse(in)
	if err != nil {
		return nil, &common.FileAccessError{Op: "read", Path: src, Err: err}
	}

	used := make(map[string]bool)
	var paths []string
	for _, rec := range records {
		name := uniqueName(Sanitize(rec.ID), used)
		if name != Sanitize(rec.ID) {
			log.Warn("sanitized name collision, writing with suffix", "id", rec.ID, "file", name+".fasta", "source", src)
		}
		path := filepath.Join(destDir, name+".fasta")
		if err := WriteRecord(path, rec); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteRecord writes a single record to path, replacing any existing file.
func WriteRecord(path string, rec Record) error {
	f, err := os.Create(path)
	if err != nil {
		return &common.FileAccessError{Op: "create", Path: path, Err: err}
	}

	w := bufio.NewWriter(f)
	w.WriteString(">" + rec.ID + "\n")
	for _, line := range rec.Body {
		w.WriteString(line)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return &common.FileAccessError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &common.FileAccessError{Op: "close", Path: path, Err: err}
	}
	return nil
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
	used[candidate] = true
	return candidate
}
