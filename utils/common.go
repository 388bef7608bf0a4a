// Common package contains helpers shared by the pipeline tools
// Exporting these functions from the Common package reduces redundant code
package common

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// gzipReadCloser closes both the gzip stream and the file underneath it.
type gzipReadCloser struct {
	*gzip.Reader
	f *os.File
}

func (g gzipReadCloser) Close() error {
	gerr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return gerr
}

// OpenFasta opens a FASTA file for reading. Gzipped files are detected by
// their magic bytes rather than the extension and decompressed on the fly.
func OpenFasta(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Op: "open", Path: path, Err: err}
	}

	buf := make([]byte, 2)
	n, _ := io.ReadFull(f, buf)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, &FileAccessError{Op: "seek", Path: path, Err: err}
	}
	if n == 2 && buf[0] == 0x1F && buf[1] == 0x8B {
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &FileAccessError{Op: "open gzip", Path: path, Err: err}
		}
		return gzipReadCloser{Reader: gr, f: f}, nil
	}
	return f, nil
}

// ListByExt returns the regular files directly inside dir whose extension
// equals ext, sorted by name so runs are reproducible.
func ListByExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &FileAccessError{Op: "read dir", Path: dir, Err: err}
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// CountRecords counts header lines ('>') in a FASTA or A3M file.
func CountRecords(path string) (int, error) {
	r, err := OpenFasta(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	count := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), ">") {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scanner error: %w", err)
	}
	return count, nil
}
