package fasta

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extensions recognised as FASTA when scanning a directory. A trailing
// ".gz" is accepted on any of them.
var Extensions = []string{".fa", ".fasta", ".fna", ".fas"}

// IsFASTA reports whether name carries a FASTA extension.
func IsFASTA(name string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, ".gz"))
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// BaseName strips the directory and any FASTA/gzip extension:
// "/data/hg38.fa.gz" → "hg38".
func BaseName(path string) string {
	b := filepath.Base(path)
	b = strings.TrimSuffix(b, ".gz")
	b = strings.TrimSuffix(b, ".GZ")
	lower := strings.ToLower(b)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return b[:len(b)-len(ext)]
		}
	}
	if ext := filepath.Ext(b); ext != "" && ext != b {
		return strings.TrimSuffix(b, ext)
	}
	return b
}

func hasGlobMeta(s string) bool { return strings.ContainsAny(s, "*?[") }

// Discover expands inputs into FASTA file paths. Each input may be a file,
// a directory (scanned one level deep for FASTA extensions) or a glob
// (matches filtered the same way as directory entries).
// Order of first appearance is preserved and duplicates are dropped.
func Discover(inputs []string) ([]string, error) {
	var out []string
	seen := map[string]struct{}{}
	add := func(p string) {
		key := filepath.Clean(p)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}

	for _, in := range inputs {
		if hasGlobMeta(in) {
			m, err := filepath.Glob(in)
			if err != nil {
				return nil, fmt.Errorf("bad glob %q: %v", in, err)
			}
			if len(m) == 0 {
				return nil, fmt.Errorf("no input matched %q", in)
			}
			sort.Strings(m)
			n := 0
			for _, p := range m {
				st, err := os.Stat(p)
				if err != nil {
					return nil, err
				}
				if st.IsDir() || !IsFASTA(p) {
					continue
				}
				add(p)
				n++
			}
			if n == 0 {
				return nil, fmt.Errorf("no FASTA files matched %q", in)
			}
			continue
		}
		st, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			add(in)
			continue
		}
		ents, err := os.ReadDir(in)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, e := range ents {
			if e.IsDir() || !IsFASTA(e.Name()) {
				continue
			}
			add(filepath.Join(in, e.Name()))
			n++
		}
		if n == 0 {
			return nil, fmt.Errorf("no FASTA files in directory %q", in)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no FASTA inputs")
	}
	return out, nil
}
