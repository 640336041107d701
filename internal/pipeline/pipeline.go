package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/op/go-logging"

	"maptrack/internal/layout"
	"maptrack/internal/state"
	"maptrack/internal/toolrun"
)

// Step names, in execution order.
const (
	StepIndex   = "index"
	StepMap     = "map"
	StepLocate  = "locate"
	StepSizes   = "sizes"
	StepConvert = "convert"
)

// Chrom-sizes sources.
const (
	SizesAuto   = "auto"
	SizesGenmap = "genmap"
	SizesFAIDX  = "faidx"
	SizesFASTA  = "fasta"
)

// Converters.
const (
	ConvertAuto     = "auto"
	ConvertExternal = "external"
	ConvertNative   = "native"
)

// Status of a step in a run report.
type Status string

const (
	Ran     Status = "ran"
	Skipped Status = "skipped"
	Planned Status = "planned"
)

// DefaultKmers are the four k-mer sizes mapped when none are given.
var DefaultKmers = []int{24, 36, 50, 100}

// Config controls a pipeline run.
type Config struct {
	Out         string
	Kmers       []int
	Errors      int    // genmap -E
	Threads     int    // genmap -T; 0 leaves genmap's default
	Jobs        int    // concurrent steps within a stage (>=1)
	SizesSource string // auto | genmap | faidx | fasta
	SizesFile   string // explicit chrom-sizes file, overrides SizesSource
	Converter   string // auto | external | native
	Force       bool
	DryRun      bool
	RunID       string
}

// Tools holds resolved executables. Empty means unavailable.
type Tools struct {
	Genmap      string
	Samtools    string
	WigToBigWig string
}

// StepReport describes what happened to one step.
type StepReport struct {
	Step     string
	Target   string
	Status   Status
	Outputs  []string
	Command  string
	Duration time.Duration
}

// Pipeline runs the mappability steps for a set of FASTA files.
type Pipeline struct {
	cfg    Config
	tools  Tools
	runner *toolrun.Runner
	store  *state.Store
	log    *logging.Logger
	layout layout.Layout

	mu    sync.Mutex
	wigs  map[string]string // genome/k → wig
	sizes map[string]string // genome → chrom sizes
}

// New validates cfg and builds a pipeline. store may be nil in dry-run mode.
func New(cfg Config, tools Tools, runner *toolrun.Runner, store *state.Store, log *logging.Logger) (*Pipeline, error) {
	if cfg.Out == "" {
		return nil, errors.New("pipeline: output directory required")
	}
	if len(cfg.Kmers) == 0 {
		cfg.Kmers = append([]int(nil), DefaultKmers...)
	}
	seen := map[int]bool{}
	for _, k := range cfg.Kmers {
		if k < 1 {
			return nil, fmt.Errorf("pipeline: k-mer size %d must be > 0", k)
		}
		if seen[k] {
			return nil, fmt.Errorf("pipeline: duplicate k-mer size %d", k)
		}
		seen[k] = true
	}
	if cfg.Errors < 0 {
		return nil, errors.New("pipeline: errors must be >= 0")
	}
	if cfg.Jobs < 1 {
		cfg.Jobs = 1
	}
	if cfg.SizesSource == "" {
		cfg.SizesSource = SizesAuto
	}
	switch cfg.SizesSource {
	case SizesAuto, SizesGenmap, SizesFAIDX, SizesFASTA:
	default:
		return nil, fmt.Errorf("pipeline: unknown chrom-sizes source %q", cfg.SizesSource)
	}
	if cfg.Converter == "" {
		cfg.Converter = ConvertAuto
	}
	switch cfg.Converter {
	case ConvertAuto, ConvertExternal, ConvertNative:
	default:
		return nil, fmt.Errorf("pipeline: unknown converter %q", cfg.Converter)
	}
	if tools.Genmap == "" {
		return nil, errors.New("pipeline: genmap executable required")
	}
	if cfg.Converter == ConvertExternal && tools.WigToBigWig == "" {
		return nil, errors.New("pipeline: --converter external needs wigToBigWig")
	}
	if cfg.SizesSource == SizesFAIDX && cfg.SizesFile == "" && tools.Samtools == "" {
		return nil, errors.New("pipeline: --chrom-sizes-source faidx needs samtools")
	}
	if store == nil && !cfg.DryRun {
		return nil, errors.New("pipeline: state store required")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if runner == nil {
		runner = &toolrun.Runner{Log: log}
	}
	runner.DryRun = cfg.DryRun
	return &Pipeline{
		cfg:    cfg,
		tools:  tools,
		runner: runner,
		store:  store,
		log:    log,
		layout: layout.New(cfg.Out),
		wigs:   map[string]string{},
		sizes:  map[string]string{},
	}, nil
}

// Config returns the effective configuration (defaults applied).
func (p *Pipeline) Config() Config { return p.cfg }

func kTarget(g layout.Genome, k int) string { return g.Base + "/k" + strconv.Itoa(k) }

// Run executes every stage for the FASTA files and streams step reports to
// report (called from one goroutine at a time).
func (p *Pipeline) Run(ctx context.Context, fastas []string, report func(StepReport) error) error {
	if len(fastas) == 0 {
		return errors.New("pipeline: no FASTA inputs")
	}
	if err := p.layout.CheckUnique(fastas); err != nil {
		return err
	}
	genomes := make([]layout.Genome, len(fastas))
	for i, f := range fastas {
		genomes[i] = p.layout.Genome(f)
	}
	p.infof("run %s: %d genome(s), k=%v, errors=%d", p.cfg.RunID, len(genomes), p.cfg.Kmers, p.cfg.Errors)

	stages := []struct {
		name  string
		tasks []task
	}{
		{StepIndex, p.perGenome(genomes, p.index)},
		{StepMap, p.perKmer(genomes, p.mapK)},
		{StepLocate, p.perKmer(genomes, p.locate)},
		{StepSizes, p.perGenome(genomes, p.chromSizes)},
		{StepConvert, p.perKmer(genomes, p.convert)},
	}
	for _, st := range stages {
		start := time.Now()
		if err := runStage(ctx, p.cfg.Jobs, st.tasks, report); err != nil {
			return err
		}
		p.debugf("stage %s done in %s", st.name, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func (p *Pipeline) perGenome(gs []layout.Genome, fn func(context.Context, layout.Genome) (StepReport, error)) []task {
	out := make([]task, 0, len(gs))
	for _, g := range gs {
		g := g
		out = append(out, task{name: g.Base, run: func(ctx context.Context) (StepReport, error) { return fn(ctx, g) }})
	}
	return out
}

func (p *Pipeline) perKmer(gs []layout.Genome, fn func(context.Context, layout.Genome, int) (StepReport, error)) []task {
	out := make([]task, 0, len(gs)*len(p.cfg.Kmers))
	for _, g := range gs {
		for _, k := range p.cfg.Kmers {
			g, k := g, k
			out = append(out, task{name: kTarget(g, k), run: func(ctx context.Context) (StepReport, error) { return fn(ctx, g, k) }})
		}
	}
	return out
}

// stepSpec describes a stamped step.
type stepSpec struct {
	name, target string
	args         []string        // part of the fingerprint
	inputs       []string        // fingerprinted files or dirs
	outputs      func() []string // nil when missing
	command      string          // shown in reports
	run          func(context.Context) error
}

// step applies the skip rule, runs ss and stamps its outputs.
func (p *Pipeline) step(ctx context.Context, ss stepSpec) (StepReport, error) {
	rep := StepReport{Step: ss.name, Target: ss.target, Command: ss.command}
	key := ss.name + "/" + ss.target

	fp, fpErr := state.Fingerprint(ss.args, ss.inputs...)
	if fpErr != nil && !p.cfg.DryRun {
		return rep, fmt.Errorf("%s %s: %w", ss.name, ss.target, fpErr)
	}

	if outs := ss.outputs(); fpErr == nil && !p.cfg.Force && p.store != nil && state.OutputsExist(outs) {
		st, ok, err := p.store.Get(key)
		if err != nil {
			return rep, err
		}
		if ok && st.Fingerprint == fp {
			rep.Status = Skipped
			rep.Outputs = outs
			p.infof("%s %s: up to date, skipping", ss.name, ss.target)
			return rep, nil
		}
	}

	if p.cfg.DryRun {
		rep.Status = Planned
		rep.Outputs = ss.outputs()
		if ss.command != "" {
			p.infof("[dry-run] %s %s: %s", ss.name, ss.target, ss.command)
		} else {
			p.infof("[dry-run] %s %s", ss.name, ss.target)
		}
		return rep, nil
	}

	// A task picked up after cancellation must not touch its outputs.
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	p.infof("%s %s", ss.name, ss.target)
	start := time.Now()
	if err := ss.run(ctx); err != nil {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		return rep, fmt.Errorf("%s %s: %w", ss.name, ss.target, err)
	}
	rep.Duration = time.Since(start)
	rep.Status = Ran
	rep.Outputs = ss.outputs()
	if !state.OutputsExist(rep.Outputs) {
		return rep, fmt.Errorf("%s %s: expected outputs missing after run", ss.name, ss.target)
	}
	err := p.store.Put(key, state.Stamp{
		Fingerprint: fp,
		Outputs:     rep.Outputs,
		RunID:       p.cfg.RunID,
		Finished:    time.Now().UTC(),
	})
	return rep, err
}

func (p *Pipeline) setWig(g layout.Genome, k int, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wigs[kTarget(g, k)] = path
}

func (p *Pipeline) wig(g layout.Genome, k int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wigs[kTarget(g, k)]
}

func (p *Pipeline) setSizes(g layout.Genome, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sizes[g.Base] = path
}

func (p *Pipeline) sizesFor(g layout.Genome) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sizes[g.Base]
}

func (p *Pipeline) infof(format string, a ...any) {
	if p.log != nil {
		p.log.Infof(format, a...)
	}
}

func (p *Pipeline) warnf(format string, a ...any) {
	if p.log != nil {
		p.log.Warningf(format, a...)
	}
}

func (p *Pipeline) debugf(format string, a ...any) {
	if p.log != nil {
		p.log.Debugf(format, a...)
	}
}

// existing returns path as a one-element list when it exists.
func existing(path string) []string {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return []string{path}
}

func ensureDir(dir string) error { return os.MkdirAll(dir, 0o755) }

// replaceFile renames tmp over dst, removing tmp on failure.
func replaceFile(tmp, dst string) error {
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func tempBeside(dst string) (*os.File, error) {
	if err := ensureDir(filepath.Dir(dst)); err != nil {
		return nil, err
	}
	return os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
}
