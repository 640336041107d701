// Package layout owns every file-name convention of a pipeline run.
//
//	<out>/<base>/index                      genmap index
//	<out>/<base>/map/k<K>_e<E>/*.wig        genmap map output
//	<out>/<base>/<base>.chrom.sizes         derived chromosome sizes
//	<out>/<base>/<base>.fai                 samtools faidx index
//	<out>/<base>/bigwig/<K>_<base>.bw       converted tracks
//	<out>/.maptrack-state                   step stamps
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"maptrack-core/fasta"
)

// Genome holds the paths derived for one FASTA input.
type Genome struct {
	FASTA string
	Base  string
	Root  string
}

// Layout derives paths below an output directory.
type Layout struct {
	Out string
}

func New(out string) Layout { return Layout{Out: out} }

func (l Layout) StateDir() string { return filepath.Join(l.Out, ".maptrack-state") }

// Genome derives the per-FASTA directory. The base name comes from the
// FASTA file name with its extensions removed.
func (l Layout) Genome(fastaPath string) Genome {
	base := fasta.BaseName(fastaPath)
	return Genome{FASTA: fastaPath, Base: base, Root: filepath.Join(l.Out, base)}
}

func (g Genome) IndexDir() string { return filepath.Join(g.Root, "index") }

func (g Genome) MapDir(k, mismatches int) string {
	return filepath.Join(g.Root, "map", fmt.Sprintf("k%d_e%d", k, mismatches))
}

func (g Genome) ChromSizes() string { return filepath.Join(g.Root, g.Base+".chrom.sizes") }

func (g Genome) FAI() string { return filepath.Join(g.Root, g.Base+".fai") }

func (g Genome) BigWigDir() string { return filepath.Join(g.Root, "bigwig") }

// BigWig names the converted track so that the text before the first
// underscore is the k-mer size.
func (g Genome) BigWig(k int) string {
	return filepath.Join(g.BigWigDir(), fmt.Sprintf("%d_%s.bw", k, g.Base))
}

// CheckUnique rejects inputs that would share an output directory.
func (l Layout) CheckUnique(fastas []string) error {
	seen := map[string]string{}
	for _, f := range fastas {
		b := fasta.BaseName(f)
		if prev, dup := seen[b]; dup {
			return fmt.Errorf("%s and %s both map to output %q", prev, f, filepath.Join(l.Out, b))
		}
		seen[b] = f
	}
	return nil
}

// FindWig returns the single WIG file genmap wrote into dir.
func FindWig(dir string) (string, error) {
	return findOne(dir, ".wig")
}

// FindGenmapSizes returns the chrom-sizes file genmap writes next to its
// WIG output, or "" when there is none.
func FindGenmapSizes(dir string) (string, error) {
	p, err := findOne(dir, ".chrom.sizes")
	if os.IsNotExist(err) {
		return "", nil
	}
	return p, err
}

func findOne(dir, suffix string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var hits []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			hits = append(hits, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(hits)
	switch len(hits) {
	case 0:
		return "", &os.PathError{Op: "find " + suffix, Path: dir, Err: os.ErrNotExist}
	case 1:
		return hits[0], nil
	default:
		return "", fmt.Errorf("%s: %d %s files, expected one: %s", dir, len(hits), suffix, strings.Join(hits, ", "))
	}
}
