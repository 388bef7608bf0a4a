// Package relocate copies and moves pipeline artifacts between stage
// directories. Copies are flattened: the source subdirectory structure is
// not reproduced in the destination.
package relocate

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	common "github.com/Shirosaru/Chai-pipeline/utils"
)

// CopyMatching walks src recursively and copies every regular file whose
// name ends with suffix into dest. It returns the destination paths in walk
// order.
//
// Within one call, a file whose base name was already copied is written as
// <stem>_2<ext>, <stem>_3<ext> and so on. Files left in dest by an earlier
// run are overwritten.
func CopyMatching(src, dest, suffix string) ([]string, error) {
	return NewCollector(dest).Collect(src, suffix)
}

// Collector flattens files from several source trees into one destination.
// Collision suffixes are assigned across all Collect calls on the same
// Collector, so two sources never overwrite each other.
type Collector struct {
	Dest string

	skip map[string]bool
	used map[string]bool
}

// NewCollector returns a Collector for dest. Files whose base name is in
// skip are never collected.
func NewCollector(dest string, skip ...string) *Collector {
	c := &Collector{Dest: dest, skip: make(map[string]bool), used: make(map[string]bool)}
	for _, name := range skip {
		c.skip[name] = true
	}
	return c
}

// Collect copies every regular file under src whose name ends with suffix
// into c.Dest and returns the destination paths in walk order.
func (c *Collector) Collect(src, suffix string) ([]string, error) {
	var copied []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &common.FileAccessError{Op: "walk", Path: path, Err: err}
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		if c.skip[d.Name()] {
			log.Debug("skipping artifact", "src", path)
			return nil
		}
		name := uniqueName(d.Name(), c.used)
		if name != d.Name() {
			log.Warn("artifact name collision, copying with suffix", "src", path, "name", name)
		}
		target := filepath.Join(c.Dest, name)
		if err := copyFile(path, target); err != nil {
			return err
		}
		log.Debug("copied artifact", "src", path, "dest", target)
		copied = append(copied, target)
		return nil
	})
	return copied, err
}

// CopyFile copies src into destDir keeping its base name.
func CopyFile(src, destDir string) (string, error) {
	target := filepath.Join(destDir, filepath.Base(src))
	if err := copyFile(src, target); err != nil {
		return "", err
	}
	return target, nil
}

// MoveInto moves src into destDir under name, replacing any file there.
// Across filesystems it falls back to copy and remove.
func MoveInto(src, destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	err := os.Rename(src, target)
	if err == nil {
		return target, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "", &common.FileAccessError{Op: "move", Path: src, Err: err}
	}

	if err := copyFile(src, target); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", &common.FileAccessError{Op: "remove", Path: src, Err: err}
	}
	return target, nil
}

func copyFile(src, dst string) error {
	if same, _ := sameFile(src, dst); same {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return &common.FileAccessError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &common.FileAccessError{Op: "create", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &common.FileAccessError{Op: "write", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &common.FileAccessError{Op: "close", Path: dst, Err: err}
	}
	return nil
}

func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}

func uniqueName(name string, used map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	used[candidate] = true
	return candidate
}
