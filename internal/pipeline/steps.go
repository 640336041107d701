package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"maptrack-core/bigwig"
	"maptrack-core/chromsizes"
	"maptrack-core/fasta"
	"maptrack-core/wig"

	"maptrack/internal/layout"
	"maptrack/internal/toolrun"
)

func (p *Pipeline) index(ctx context.Context, g layout.Genome) (StepReport, error) {
	dir := g.IndexDir()
	c := toolrun.Cmd{Tool: "genmap", Path: p.tools.Genmap, Args: []string{"index", "-F", g.FASTA, "-I", dir}}
	return p.step(ctx, stepSpec{
		name:    StepIndex,
		target:  g.Base,
		args:    []string{"genmap", "index"},
		inputs:  []string{g.FASTA},
		outputs: func() []string { return existing(dir) },
		command: c.String(),
		run: func(ctx context.Context) error {
			// genmap refuses to write into an existing index directory.
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
			if err := ensureDir(g.Root); err != nil {
				return err
			}
			_, err := p.runner.Run(ctx, c)
			return err
		},
	})
}

func (p *Pipeline) mapArgs(g layout.Genome, k int) []string {
	args := []string{
		"map",
		"-K", strconv.Itoa(k),
		"-E", strconv.Itoa(p.cfg.Errors),
		"-I", g.IndexDir(),
		"-O", g.MapDir(k, p.cfg.Errors),
		"-w",
	}
	if p.cfg.Threads > 0 {
		args = append(args, "-T", strconv.Itoa(p.cfg.Threads))
	}
	return args
}

func (p *Pipeline) mapK(ctx context.Context, g layout.Genome, k int) (StepReport, error) {
	dir := g.MapDir(k, p.cfg.Errors)
	args := p.mapArgs(g, k)
	c := toolrun.Cmd{Tool: "genmap", Path: p.tools.Genmap, Args: args}
	// Thread count does not change the result, so it stays out of the fingerprint.
	return p.step(ctx, stepSpec{
		name:   StepMap,
		target: kTarget(g, k),
		args:   []string{"genmap", "map", strconv.Itoa(k), strconv.Itoa(p.cfg.Errors)},
		inputs: []string{g.IndexDir()},
		outputs: func() []string {
			w, err := layout.FindWig(dir)
			if err != nil {
				return nil
			}
			return []string{w}
		},
		command: c.String(),
		run: func(ctx context.Context) error {
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
			if err := ensureDir(dir); err != nil {
				return err
			}
			_, err := p.runner.Run(ctx, c)
			return err
		},
	})
}

// locate never skips; it resolves the WIG the map step left behind.
func (p *Pipeline) locate(ctx context.Context, g layout.Genome, k int) (StepReport, error) {
	dir := g.MapDir(k, p.cfg.Errors)
	rep := StepReport{Step: StepLocate, Target: kTarget(g, k)}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if p.cfg.DryRun {
		rep.Status = Planned
		rep.Outputs = []string{filepath.Join(dir, "*.wig")}
		p.setWig(g, k, rep.Outputs[0])
		return rep, nil
	}
	w, err := layout.FindWig(dir)
	if err != nil {
		return rep, fmt.Errorf("locate %s: %w", rep.Target, err)
	}
	p.setWig(g, k, w)
	rep.Status = Ran
	rep.Outputs = []string{w}
	p.debugf("locate %s: %s", rep.Target, w)
	return rep, nil
}

func (p *Pipeline) chromSizes(ctx context.Context, g layout.Genome) (StepReport, error) {
	if p.cfg.SizesFile != "" {
		rep := StepReport{Step: StepSizes, Target: g.Base, Status: Ran, Outputs: []string{p.cfg.SizesFile}}
		if p.cfg.DryRun {
			rep.Status = Planned
		} else if _, err := chromsizes.ReadFile(p.cfg.SizesFile); err != nil {
			return rep, fmt.Errorf("sizes %s: %w", g.Base, err)
		}
		p.setSizes(g, p.cfg.SizesFile)
		return rep, nil
	}

	dst := g.ChromSizes()
	var sources []string
	switch p.cfg.SizesSource {
	case SizesAuto:
		sources = []string{SizesGenmap}
		if p.tools.Samtools != "" {
			sources = append(sources, SizesFAIDX)
		}
		sources = append(sources, SizesFASTA)
	default:
		sources = []string{p.cfg.SizesSource}
	}

	var lastErr error
	for i, src := range sources {
		ss, err := p.sizesSpec(g, src, dst)
		if err == nil {
			var rep StepReport
			rep, err = p.step(ctx, ss)
			if err == nil {
				p.setSizes(g, dst)
				return rep, nil
			}
		}
		if ctx.Err() != nil {
			return StepReport{}, ctx.Err()
		}
		lastErr = err
		if i < len(sources)-1 {
			p.warnf("sizes %s: %s source failed, trying %s: %v", g.Base, src, sources[i+1], err)
		}
	}
	return StepReport{Step: StepSizes, Target: g.Base}, lastErr
}

// sizesSpec builds the step deriving dst from one source.
func (p *Pipeline) sizesSpec(g layout.Genome, src, dst string) (stepSpec, error) {
	ss := stepSpec{
		name:    StepSizes,
		target:  g.Base,
		args:    []string{"sizes", src},
		outputs: func() []string { return existing(dst) },
	}
	switch src {
	case SizesGenmap:
		// Any k works; genmap writes the same sizes next to every WIG.
		k := p.cfg.Kmers[0]
		dir := g.MapDir(k, p.cfg.Errors)
		var from string
		if !p.cfg.DryRun {
			var err error
			if from, err = layout.FindGenmapSizes(dir); err != nil {
				return ss, err
			}
			if from == "" {
				return ss, fmt.Errorf("no genmap chrom sizes in %s", dir)
			}
		} else {
			from = filepath.Join(dir, "*.chrom.sizes")
		}
		ss.inputs = []string{from}
		ss.command = "copy " + from
		ss.run = func(context.Context) error {
			s, err := chromsizes.ReadFile(from)
			if err != nil {
				return err
			}
			if err := ensureDir(g.Root); err != nil {
				return err
			}
			return chromsizes.WriteFile(dst, s)
		}
	case SizesFAIDX:
		if p.tools.Samtools == "" {
			return ss, fmt.Errorf("samtools not available")
		}
		fai := g.FAI()
		c := toolrun.Cmd{Tool: "samtools", Path: p.tools.Samtools, Args: []string{"faidx", g.FASTA, "--fai-idx", fai}}
		ss.inputs = []string{g.FASTA}
		ss.command = c.String()
		ss.run = func(ctx context.Context) error {
			if err := ensureDir(g.Root); err != nil {
				return err
			}
			if _, err := p.runner.Run(ctx, c); err != nil {
				return err
			}
			s, err := chromsizes.ReadFAI(fai)
			if err != nil {
				return err
			}
			return chromsizes.WriteFile(dst, s)
		}
	case SizesFASTA:
		ss.inputs = []string{g.FASTA}
		ss.command = "scan " + g.FASTA
		ss.run = func(ctx context.Context) error {
			var s chromsizes.Sizes
			err := fasta.ScanLengthsCtx(ctx, g.FASTA, func(id string, n int) error {
				s = append(s, chromsizes.Chrom{Name: id, Length: n})
				return nil
			})
			if err != nil {
				return err
			}
			if err := ensureDir(g.Root); err != nil {
				return err
			}
			return chromsizes.WriteFile(dst, s)
		}
	default:
		return ss, fmt.Errorf("unknown chrom-sizes source %q", src)
	}
	return ss, nil
}

// useExternal reports which converter the convert step runs.
func (p *Pipeline) useExternal() bool {
	switch p.cfg.Converter {
	case ConvertExternal:
		return true
	case ConvertNative:
		return false
	}
	return p.tools.WigToBigWig != ""
}

func (p *Pipeline) convert(ctx context.Context, g layout.Genome, k int) (StepReport, error) {
	w := p.wig(g, k)
	sizes := p.sizesFor(g)
	dst := g.BigWig(k)
	ss := stepSpec{
		name:    StepConvert,
		target:  kTarget(g, k),
		inputs:  []string{w, sizes},
		outputs: func() []string { return existing(dst) },
	}
	if p.useExternal() {
		c := toolrun.Cmd{Tool: "wigToBigWig", Path: p.tools.WigToBigWig, Args: []string{w, sizes, dst}}
		ss.args = []string{"convert", "external"}
		ss.command = c.String()
		ss.run = func(ctx context.Context) error {
			if err := ensureDir(g.BigWigDir()); err != nil {
				return err
			}
			_, err := p.runner.Run(ctx, c)
			return err
		}
	} else {
		ss.args = []string{"convert", "native"}
		ss.command = "native " + w
		ss.run = func(ctx context.Context) error { return convertNative(ctx, w, sizes, dst) }
	}
	return p.step(ctx, ss)
}

// convertNative parses a WIG and encodes it as a BigWig next to dst, then
// renames it into place.
func convertNative(ctx context.Context, wigPath, sizesPath, dst string) error {
	s, err := chromsizes.ReadFile(sizesPath)
	if err != nil {
		return err
	}
	fh, err := os.Open(wigPath)
	if err != nil {
		return err
	}
	secs, err := wig.Parse(fh)
	fh.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", wigPath, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := tempBeside(dst)
	if err != nil {
		return err
	}
	if err := bigwig.Encode(tmp, s, secs, bigwig.WriteOptions{}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return replaceFile(tmp.Name(), dst)
}
