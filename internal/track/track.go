// Package track opens mappability tracks (BigWig or WIG) behind one
// interface and names them by their k-mer key.
package track

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"maptrack-core/bigwig"
	"maptrack-core/wig"
)

// Source yields per-base values of a track. Uncovered bases are NaN.
type Source interface {
	Chroms() []bigwig.Chrom
	Values(chrom string, start, end int) ([]float32, error)
	Close() error
}

// Track is an opened source together with its key.
type Track struct {
	Key  string
	Path string
	Source
}

var bigwigExt = map[string]bool{".bw": true, ".bigwig": true}

// IsTrack reports whether name looks like a track file.
func IsTrack(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return bigwigExt[ext] || ext == ".wig"
}

// Open opens path by extension.
func Open(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case bigwigExt[ext]:
		r, err := bigwig.Open(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	case ext == ".wig":
		w, err := openWig(path)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	return nil, fmt.Errorf("%s: unsupported track type %q", path, ext)
}

// KeyOf is the file name up to the first underscore ("24_hg38.bw" → "24").
// Names without an underscore lose their extension instead.
func KeyOf(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '_'); i >= 0 {
		return base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SortKeys orders keys numerically when all of them are integers and
// lexicographically otherwise.
func SortKeys(keys []string) {
	numeric := true
	nums := make(map[string]int, len(keys))
	for _, k := range keys {
		n, err := strconv.Atoi(k)
		if err != nil {
			numeric = false
			break
		}
		nums[k] = n
	}
	if numeric {
		sort.SliceStable(keys, func(i, j int) bool { return nums[keys[i]] < nums[keys[j]] })
		return
	}
	sort.Strings(keys)
}

// Discover lists the track files directly inside dir, sorted by key. Two
// files with the same key are an error.
func Discover(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	byKey := map[string]string{}
	var keys []string
	for _, e := range ents {
		if e.IsDir() || !IsTrack(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		k := KeyOf(p)
		if prev, dup := byKey[k]; dup {
			return nil, fmt.Errorf("tracks %s and %s share key %q", prev, p, k)
		}
		byKey[k] = p
		keys = append(keys, k)
	}
	SortKeys(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out, nil
}

// OpenAll opens every path as a Track. On error the tracks opened so far
// are closed.
func OpenAll(paths []string) ([]Track, error) {
	out := make([]Track, 0, len(paths))
	for _, p := range paths {
		src, err := Open(p)
		if err != nil {
			CloseAll(out)
			return nil, err
		}
		out = append(out, Track{Key: KeyOf(p), Path: p, Source: src})
	}
	return out, nil
}

// CloseAll closes every track and returns the first error.
func CloseAll(ts []Track) error {
	var first error
	for _, t := range ts {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// wigSource holds a parsed WIG in memory. Chromosome sizes are the end of
// the last covered base.
type wigSource struct {
	chroms []bigwig.Chrom
	items  map[string][]wig.Item
}

func openWig(path string) (*wigSource, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	secs, err := wig.Parse(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return newWigSource(secs), nil
}

func newWigSource(secs []wig.Section) *wigSource {
	ws := &wigSource{items: map[string][]wig.Item{}}
	size := map[string]int{}
	for _, s := range secs {
		ws.items[s.Chrom] = append(ws.items[s.Chrom], s.Items...)
		for _, it := range s.Items {
			if it.End > size[s.Chrom] {
				size[s.Chrom] = it.End
			}
		}
	}
	names := make([]string, 0, len(size))
	for n := range size {
		names = append(names, n)
	}
	sort.Strings(names)
	for i, n := range names {
		ws.chroms = append(ws.chroms, bigwig.Chrom{Name: n, ID: uint32(i), Size: size[n]})
		its := ws.items[n]
		sort.SliceStable(its, func(a, b int) bool { return its[a].Start < its[b].Start })
	}
	return ws
}

func (w *wigSource) Chroms() []bigwig.Chrom { return append([]bigwig.Chrom(nil), w.chroms...) }

func (w *wigSource) Values(chrom string, start, end int) ([]float32, error) {
	size := -1
	for _, c := range w.chroms {
		if c.Name == chrom {
			size = c.Size
		}
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: %s", bigwig.ErrUnknownChrom, chrom)
	}
	if start < 0 || end < start || end > size {
		return nil, fmt.Errorf("range %s:%d-%d outside 0-%d", chrom, start, end, size)
	}
	out := make([]float32, end-start)
	nan := float32(math.NaN())
	for i := range out {
		out[i] = nan
	}
	its := w.items[chrom]
	i := sort.Search(len(its), func(i int) bool { return its[i].End > start })
	for ; i < len(its) && its[i].Start < end; i++ {
		lo, hi := its[i].Start, its[i].End
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		for p := lo; p < hi; p++ {
			out[p-start] = its[i].Value
		}
	}
	return out, nil
}

func (w *wigSource) Close() error { return nil }
