package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"maptrack-core/bigwig"

	"maptrack/internal/layout"
	"maptrack/internal/state"
	"maptrack/internal/toolrun"
)

const fakeGenmap = `#!/bin/sh
echo "$1" >> "$CALLS"
cmd=$1; shift
while [ $# -gt 0 ]; do
  case "$1" in
    -I) idx=$2; shift ;;
    -O) out=$2; shift ;;
  esac
  shift
done
case "$cmd" in
  index)
    if [ -e "$idx" ]; then echo "index dir exists" >&2; exit 1; fi
    [ -n "$FAIL_INDEX" ] && { echo "boom" >&2; exit 2; }
    mkdir -p "$idx" && echo idx > "$idx/index.info"
    ;;
  map)
    [ -d "$idx" ] || { echo "no index" >&2; exit 1; }
    printf 'track type=wiggle_0\nfixedStep chrom=chr1 start=1 step=1\n1\n1\n0.5\n0.5\n1\n0.25\n1\n1\n' > "$out/genome.genmap.wig"
    [ -n "$NO_SIZES" ] || printf 'chr1\t8\n' > "$out/genome.genmap.chrom.sizes"
    ;;
esac
`

type fixture struct {
	dir   string
	fasta string
	calls string
	tools Tools
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(p, body string, mode os.FileMode) {
		if err := os.WriteFile(p, []byte(body), mode); err != nil {
			t.Fatal(err)
		}
	}
	f := fixture{dir: dir, fasta: filepath.Join(dir, "genome.fa"), calls: filepath.Join(dir, "calls")}
	write(f.fasta, ">chr1 test\nACGT\nACGT\n", 0o644)
	f.tools.Genmap = filepath.Join(bin, "genmap")
	write(f.tools.Genmap, fakeGenmap, 0o755)
	return f
}

func (f fixture) calledTimes(t *testing.T) int {
	t.Helper()
	b, err := os.ReadFile(f.calls)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(b), "\n")
}

func (f fixture) run(t *testing.T, cfg Config, store *state.Store, env ...string) ([]StepReport, error) {
	t.Helper()
	if cfg.Out == "" {
		cfg.Out = filepath.Join(f.dir, "out")
	}
	if cfg.Kmers == nil {
		cfg.Kmers = []int{2, 3}
	}
	runner := &toolrun.Runner{Env: append([]string{"CALLS=" + f.calls}, env...)}
	p, err := New(cfg, f.tools, runner, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var (
		mu   sync.Mutex
		reps []StepReport
	)
	err = p.Run(context.Background(), []string{f.fasta}, func(r StepReport) error {
		mu.Lock()
		defer mu.Unlock()
		reps = append(reps, r)
		return nil
	})
	return reps, err
}

func statuses(reps []StepReport) map[string]map[Status]int {
	out := map[string]map[Status]int{}
	for _, r := range reps {
		if out[r.Step] == nil {
			out[r.Step] = map[Status]int{}
		}
		out[r.Step][r.Status]++
	}
	return out
}

func memStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunNativeThenSkip(t *testing.T) {
	f := newFixture(t)
	store := memStore(t)

	reps, err := f.run(t, Config{Converter: ConvertNative, Jobs: 2}, store)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reps) != 8 {
		t.Fatalf("want 8 reports, got %d: %+v", len(reps), reps)
	}
	for _, r := range reps {
		if r.Status != Ran {
			t.Fatalf("first run: %s %s status %s", r.Step, r.Target, r.Status)
		}
	}
	if n := f.calledTimes(t); n != 3 {
		t.Fatalf("genmap called %d times, want 3", n)
	}

	bw := filepath.Join(f.dir, "out", "genome", "bigwig", "3_genome.bw")
	r, err := bigwig.Open(bw)
	if err != nil {
		t.Fatalf("open bigwig: %v", err)
	}
	defer r.Close()
	vals, err := r.Values("chr1", 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{1, 1, 0.5, 0.5, 1, 0.25, 1, 1}
	for i, v := range vals {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Fatalf("value %d = %v, want %v", i, v, want[i])
		}
	}
	sizes, err := os.ReadFile(filepath.Join(f.dir, "out", "genome", "genome.chrom.sizes"))
	if err != nil || string(sizes) != "chr1\t8\n" {
		t.Fatalf("chrom sizes %q %v", sizes, err)
	}

	reps, err = f.run(t, Config{Converter: ConvertNative}, store)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	st := statuses(reps)
	if st[StepIndex][Skipped] != 1 || st[StepMap][Skipped] != 2 || st[StepSizes][Skipped] != 1 || st[StepConvert][Skipped] != 2 {
		t.Fatalf("rerun statuses %v", st)
	}
	if st[StepLocate][Ran] != 2 {
		t.Fatalf("locate must always run: %v", st)
	}
	if n := f.calledTimes(t); n != 3 {
		t.Fatalf("rerun invoked genmap again (%d calls)", n)
	}

	reps, err = f.run(t, Config{Converter: ConvertNative, Force: true}, store)
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if st := statuses(reps); st[StepIndex][Ran] != 1 || st[StepConvert][Ran] != 2 {
		t.Fatalf("forced statuses %v", st)
	}
	if n := f.calledTimes(t); n != 6 {
		t.Fatalf("forced run: genmap calls %d, want 6", n)
	}
}

func TestChangedArgsRerunStep(t *testing.T) {
	f := newFixture(t)
	store := memStore(t)
	if _, err := f.run(t, Config{Converter: ConvertNative, Kmers: []int{2}}, store); err != nil {
		t.Fatal(err)
	}
	reps, err := f.run(t, Config{Converter: ConvertNative, Kmers: []int{2}, SizesSource: SizesFASTA}, store)
	if err != nil {
		t.Fatal(err)
	}
	st := statuses(reps)
	if st[StepSizes][Ran] != 1 || st[StepIndex][Skipped] != 1 {
		t.Fatalf("statuses %v", st)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	reps, err := f.run(t, Config{DryRun: true}, nil)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(reps) != 8 {
		t.Fatalf("reports %d", len(reps))
	}
	for _, r := range reps {
		if r.Status != Planned {
			t.Fatalf("%s %s: %s", r.Step, r.Target, r.Status)
		}
	}
	if f.calledTimes(t) != 0 {
		t.Fatal("dry run executed genmap")
	}
	if _, err := os.Stat(filepath.Join(f.dir, "out")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dry run created output dir: %v", err)
	}
	if !strings.Contains(reps[0].Command, "genmap") || !strings.Contains(reps[0].Command, "index") {
		t.Fatalf("command %q", reps[0].Command)
	}
}

func TestToolFailureStopsRun(t *testing.T) {
	f := newFixture(t)
	reps, err := f.run(t, Config{Converter: ConvertNative}, memStore(t), "FAIL_INDEX=1")
	var te *toolrun.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("want ToolError, got %v", err)
	}
	if te.ExitCode != 2 || !strings.Contains(te.Stderr, "boom") {
		t.Fatalf("tool error %+v", te)
	}
	if !strings.HasPrefix(err.Error(), "index genome:") {
		t.Fatalf("missing step context: %q", err)
	}
	if len(reps) != 0 {
		t.Fatalf("reports after failure: %+v", reps)
	}
}

func TestSizesFallBackToFASTA(t *testing.T) {
	f := newFixture(t)
	reps, err := f.run(t, Config{Converter: ConvertNative, Kmers: []int{2}}, memStore(t), "NO_SIZES=1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var sizes StepReport
	for _, r := range reps {
		if r.Step == StepSizes {
			sizes = r
		}
	}
	if sizes.Status != Ran || !strings.HasPrefix(sizes.Command, "scan ") {
		t.Fatalf("sizes report %+v", sizes)
	}
}

func TestExternalConverter(t *testing.T) {
	f := newFixture(t)
	w2b := filepath.Join(f.dir, "bin", "wigToBigWig")
	if err := os.WriteFile(w2b, []byte("#!/bin/sh\necho w2b >> \"$CALLS\"\ncp \"$1\" \"$3\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	f.tools.WigToBigWig = w2b
	reps, err := f.run(t, Config{Kmers: []int{2}}, memStore(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, r := range reps {
		if r.Step == StepConvert && !strings.Contains(r.Command, "wigToBigWig") {
			t.Fatalf("convert used %q", r.Command)
		}
	}
	// index + map + w2b
	if n := f.calledTimes(t); n != 3 {
		t.Fatalf("calls %d", n)
	}
}

func TestNewValidates(t *testing.T) {
	tools := Tools{Genmap: "/bin/true"}
	cases := []Config{
		{},
		{Out: "o", Kmers: []int{0}},
		{Out: "o", Kmers: []int{24, 24}},
		{Out: "o", Errors: -1},
		{Out: "o", SizesSource: "bogus"},
		{Out: "o", Converter: "bogus"},
		{Out: "o", Converter: ConvertExternal},
	}
	for i, c := range cases {
		c.DryRun = true
		if _, err := New(c, tools, nil, nil, nil); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
	p, err := New(Config{Out: "o", DryRun: true}, tools, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := p.Config()
	if len(cfg.Kmers) != 4 || cfg.RunID == "" || cfg.Jobs != 1 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestRunStageCancelsOnError(t *testing.T) {
	boom := errors.New("boom")
	var tasks []task
	for i := 0; i < 10; i++ {
		i := i
		tasks = append(tasks, task{name: "t", run: func(ctx context.Context) (StepReport, error) {
			if i == 0 {
				return StepReport{}, boom
			}
			<-ctx.Done()
			return StepReport{}, ctx.Err()
		}})
	}
	if err := runStage(context.Background(), 3, tasks, nil); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

func TestCancelledStepKeepsOutputs(t *testing.T) {
	f := newFixture(t)
	store := memStore(t)
	out := filepath.Join(f.dir, "out")
	if _, err := f.run(t, Config{Out: out, Converter: ConvertNative}, store); err != nil {
		t.Fatalf("run: %v", err)
	}

	p, err := New(Config{Out: out, Kmers: []int{2}, Converter: ConvertNative, Force: true}, f.tools,
		&toolrun.Runner{Env: []string{"CALLS=" + f.calls}}, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	g := layout.New(out).Genome(f.fasta)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := f.calledTimes(t)

	if _, err := p.index(ctx, g); !errors.Is(err, context.Canceled) {
		t.Fatalf("index: want context.Canceled, got %v", err)
	}
	if _, err := p.mapK(ctx, g, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("map: want context.Canceled, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(g.IndexDir(), "index.info")); err != nil {
		t.Fatalf("index dir cleared: %v", err)
	}
	if _, err := layout.FindWig(g.MapDir(2, p.Config().Errors)); err != nil {
		t.Fatalf("map dir cleared: %v", err)
	}
	if n := f.calledTimes(t); n != before {
		t.Fatalf("genmap ran %d times after cancel", n-before)
	}
}
