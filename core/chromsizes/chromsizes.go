// Package chromsizes reads and writes chrom-sizes files: one
// "name<TAB>length" pair per line, as consumed by wigToBigWig.
package chromsizes

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Chrom is one named sequence and its length in bases.
type Chrom struct {
	Name   string
	Length int
}

// Sizes keeps chromosomes in file order.
type Sizes []Chrom

// Lookup returns the length recorded for name.
func (s Sizes) Lookup(name string) (int, bool) {
	for _, c := range s {
		if c.Name == name {
			return c.Length, true
		}
	}
	return 0, false
}

// Total is the summed length of all chromosomes.
func (s Sizes) Total() int64 {
	var n int64
	for _, c := range s {
		n += int64(c.Length)
	}
	return n
}

// Read parses whitespace-separated name/length pairs. Columns past the
// second are ignored, which makes a samtools .fai readable too.
// Blank lines and '#' comments are skipped.
func Read(r io.Reader) (Sizes, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	var (
		out  Sizes
		seen = map[string]struct{}{}
		ln   int
	)
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 2 {
			return nil, fmt.Errorf("line %d: want name and length, got %q", ln, line)
		}
		n, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad length %q", ln, f[1])
		}
		if n <= 0 {
			return nil, fmt.Errorf("line %d: length of %s must be > 0", ln, f[0])
		}
		if _, dup := seen[f[0]]; dup {
			return nil, fmt.Errorf("line %d: duplicate chromosome %s", ln, f[0])
		}
		seen[f[0]] = struct{}{}
		out = append(out, Chrom{Name: f[0], Length: n})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFile reads a chrom-sizes (or .fai) file.
func ReadFile(path string) (Sizes, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	s, err := Read(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("%s: no chromosomes", path)
	}
	return s, nil
}

// ReadFAI reads the name and length columns of a samtools faidx index.
func ReadFAI(path string) (Sizes, error) { return ReadFile(path) }

// Write emits one "name\tlength" line per chromosome.
func Write(w io.Writer, s Sizes) error {
	bw := bufio.NewWriter(w)
	for _, c := range s {
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", c.Name, c.Length); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes s to path through a temp file and rename, so a
// half-written sizes file is never observed.
func WriteFile(path string, s Sizes) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if err := Write(tmp, s); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
